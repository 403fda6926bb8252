package wixtoolset

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// writeToolsetArchive builds a tar.gz holding the named files, standing
// in for the real bundled toolset.
func writeToolsetArchive(t *testing.T, path string, names ...string) {
	fh, err := os.Create(path)
	require.NoError(t, err)
	defer fh.Close()

	gzw := gzip.NewWriter(fh)
	tw := tar.NewWriter(gzw)

	for _, name := range names {
		contents := []byte("#!/bin/sh\nexit 0\n")
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0755,
			Size: int64(len(contents)),
		}))
		_, err := tw.Write(contents)
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
}

func TestProvisionExtractsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tmp := t.TempDir()
	archivePath := filepath.Join(tmp, archiveName)
	writeToolsetArchive(t, archivePath, candleName, lightName)

	cacheDir := filepath.Join(tmp, "cache")
	p, err := New(WithCacheDir(cacheDir), WithArchivePath(archivePath))
	require.NoError(t, err)

	ts, err := p.Provision(ctx)
	require.NoError(t, err)
	require.FileExists(t, ts.CandlePath)
	require.FileExists(t, ts.LightPath)
	require.Equal(t, filepath.Join(cacheDir, toolsetDirName, candleName), ts.CandlePath)

	// Once provisioned, the archive is never consulted again. Prove
	// it by removing the archive before the second call.
	require.NoError(t, os.Remove(archivePath))

	ts2, err := p.Provision(ctx)
	require.NoError(t, err)
	require.Equal(t, ts, ts2)
}

func TestProvisionMissingArchive(t *testing.T) {
	t.Parallel()

	p, err := New(
		WithCacheDir(t.TempDir()),
		WithArchivePath(filepath.Join(t.TempDir(), "nope.tar.gz")),
	)
	require.NoError(t, err)

	_, err = p.Provision(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrToolsetResourceMissing))
}

func TestProvisionCorruptArchive(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	archivePath := filepath.Join(tmp, archiveName)
	require.NoError(t, os.WriteFile(archivePath, []byte("not a tarball"), 0644))

	cacheDir := filepath.Join(tmp, "cache")
	p, err := New(WithCacheDir(cacheDir), WithArchivePath(archivePath))
	require.NoError(t, err)

	_, err = p.Provision(context.Background())
	require.Error(t, err)

	// A failed extraction must not leave a directory a later run
	// would mistake for a provisioned toolset.
	require.NoDirExists(t, filepath.Join(cacheDir, toolsetDirName))
}

func TestProvisionIncompleteArchive(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	archivePath := filepath.Join(tmp, archiveName)
	writeToolsetArchive(t, archivePath, candleName) // no light.exe

	cacheDir := filepath.Join(tmp, "cache")
	p, err := New(WithCacheDir(cacheDir), WithArchivePath(archivePath))
	require.NoError(t, err)

	_, err = p.Provision(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), lightName)
	require.NoDirExists(t, filepath.Join(cacheDir, toolsetDirName))
}
