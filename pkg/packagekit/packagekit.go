// Package packagekit wraps a standalone executable installer into a
// windows msi package. It renders a wxs manifest for the executable
// and drives the wix toolchain (candle, then light) over it.
package packagekit

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const msiExtension = ".msi"

// Msi versions are four numeric components, eg 1.2.3.4.
var msiVersionRegexp = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)

// InstallerRequest describes a single exe-to-msi build. It is
// constructed once by the caller and passed by value through the
// pipeline.
type InstallerRequest struct {
	ExePath        string // absolute path of the executable to wrap
	ExeArguments   string // arguments the installed executable is launched with
	PackageName    string // package name, held without the .msi suffix
	PackageVersion string // four component version string
}

// NewInstallerRequest normalizes the package name and validates the
// resulting request.
func NewInstallerRequest(exePath, exeArguments, packageName, packageVersion string) (InstallerRequest, error) {
	req := InstallerRequest{
		ExePath:        exePath,
		ExeArguments:   exeArguments,
		PackageName:    NormalizePackageName(packageName),
		PackageVersion: packageVersion,
	}

	return req, req.Validate()
}

func (req InstallerRequest) Validate() error {
	if req.ExePath == "" {
		return errors.New("missing exe path")
	}

	if req.PackageName == "" {
		return errors.New("missing package name")
	}

	if !msiVersionRegexp.MatchString(req.PackageVersion) {
		return errors.Errorf("version %q is not of the form A.B.C.D", req.PackageVersion)
	}

	return nil
}

// MsiFilename re-appends the extension the normalized name is stored
// without.
func (req InstallerRequest) MsiFilename() string {
	return req.PackageName + msiExtension
}

// WorkingDir is where the manifest, the compiled intermediate, and
// the final msi land: alongside the source executable.
func (req InstallerRequest) WorkingDir() string {
	return filepath.Dir(req.ExePath)
}

// NormalizePackageName strips any trailing .msi extension, case
// insensitively. Idempotent: normalizing an already-normalized name
// returns it unchanged.
func NormalizePackageName(name string) string {
	for strings.EqualFold(filepath.Ext(name), msiExtension) {
		name = name[:len(name)-len(msiExtension)]
	}
	return name
}
