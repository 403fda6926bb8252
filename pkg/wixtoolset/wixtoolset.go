// Package wixtoolset provisions the wix compiler and linker into a
// per-user cache directory, extracting them once from the archive
// bundled alongside the tool.
package wixtoolset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/kit/fsutil"
	"github.com/pkg/errors"

	"msiwrap/pkg/contexts/ctxlog"
)

const (
	// toolsetDirName mirrors the wix convention of versioned install
	// dirs (C:\wix311 and friends).
	toolsetDirName = "wix311"
	archiveName    = "wix-toolset.tar.gz"
	cacheSubdir    = "msiwrap"

	candleName = "candle.exe"
	lightName  = "light.exe"
)

// ErrToolsetResourceMissing means the bundled toolset archive is not
// where the build shipped it. That's a packaging defect of msiwrap
// itself, not a runtime condition.
var ErrToolsetResourceMissing = errors.New("bundled wix toolset archive not found")

// Toolset holds the resolved compiler and linker paths.
type Toolset struct {
	CandlePath string
	LightPath  string
}

type Provisioner struct {
	cacheDir    string
	archivePath string
}

type Opt func(*Provisioner)

func WithCacheDir(dir string) Opt {
	return func(p *Provisioner) {
		p.cacheDir = dir
	}
}

func WithArchivePath(path string) Opt {
	return func(p *Provisioner) {
		p.archivePath = path
	}
}

func New(opts ...Opt) (*Provisioner, error) {
	p := &Provisioner{}

	for _, opt := range opts {
		opt(p)
	}

	if p.cacheDir == "" {
		userCacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, errors.Wrap(err, "finding user cache dir")
		}
		p.cacheDir = filepath.Join(userCacheDir, cacheSubdir)
	}

	return p, nil
}

// Provision returns the toolset paths, extracting the bundled archive
// on first use. Presence of the toolset directory is the sole
// provisioning check; extraction is staged and published with a
// rename, so a directory that exists is complete.
func (p *Provisioner) Provision(ctx context.Context) (*Toolset, error) {
	logger := ctxlog.FromContext(ctx)

	toolsetDir := filepath.Join(p.cacheDir, toolsetDirName)

	if _, err := os.Stat(toolsetDir); err == nil {
		return toolsetIn(toolsetDir), nil
	}

	archivePath, err := p.locateArchive()
	if err != nil {
		return nil, err
	}

	level.Debug(logger).Log(
		"msg", "extracting wix toolset",
		"archive", archivePath,
		"dest", toolsetDir,
	)

	if err := os.MkdirAll(p.cacheDir, fsutil.DirMode); err != nil {
		return nil, errors.Wrapf(err, "making cache dir %s", p.cacheDir)
	}

	stagingDir := fmt.Sprintf("%s-staging-%d", toolsetDir, time.Now().UnixMicro())
	if err := os.MkdirAll(stagingDir, fsutil.DirMode); err != nil {
		return nil, errors.Wrapf(err, "making staging dir %s", stagingDir)
	}
	defer func() {
		// No-op once the rename has published the staging dir.
		if err := os.RemoveAll(stagingDir); err != nil {
			level.Debug(logger).Log("msg", "could not remove staging dir", "dir", stagingDir, "err", err)
		}
	}()

	// UntarBundle untars into filepath.Dir(destination), so the last
	// path element here is immediately stripped off.
	if err := fsutil.UntarBundle(filepath.Join(stagingDir, "bundle"), archivePath); err != nil {
		return nil, errors.Wrapf(err, "untarring %s", archivePath)
	}

	ts := toolsetIn(stagingDir)
	for _, bin := range []string{ts.CandlePath, ts.LightPath} {
		if _, err := os.Stat(bin); err != nil {
			return nil, errors.Wrapf(err, "extracted toolset is missing %s", filepath.Base(bin))
		}
	}

	if err := os.Rename(stagingDir, toolsetDir); err != nil {
		return nil, errors.Wrapf(err, "publishing toolset to %s", toolsetDir)
	}

	level.Debug(logger).Log("msg", "provisioned wix toolset", "dir", toolsetDir)

	return toolsetIn(toolsetDir), nil
}

// locateArchive finds the bundled toolset archive: an explicit
// override path if one was set, otherwise next to the running
// executable.
func (p *Provisioner) locateArchive() (string, error) {
	if p.archivePath != "" {
		if _, err := os.Stat(p.archivePath); err != nil {
			return "", errors.Wrapf(ErrToolsetResourceMissing, "at %s", p.archivePath)
		}
		return p.archivePath, nil
	}

	self, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "finding own executable")
	}

	archivePath := filepath.Join(filepath.Dir(self), archiveName)
	if _, err := os.Stat(archivePath); err != nil {
		return "", errors.Wrapf(ErrToolsetResourceMissing, "at %s", archivePath)
	}

	return archivePath, nil
}

func toolsetIn(dir string) *Toolset {
	return &Toolset{
		CandlePath: filepath.Join(dir, candleName),
		LightPath:  filepath.Join(dir, lightName),
	}
}
