package packagekit

import (
	"context"
	"path/filepath"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"msiwrap/pkg/contexts/ctxlog"
	"msiwrap/pkg/execout"
	"msiwrap/pkg/wixtoolset"
)

type runnerFunc func(ctx context.Context, argv0 string, args []string, dir string) error

type provisionFunc func(ctx context.Context) (*wixtoolset.Toolset, error)

type msiOptions struct {
	provision provisionFunc
	run       runnerFunc
}

type MsiOpt func(*msiOptions)

// WithProvisioner overrides how the wix toolset is located. Used by
// tests to avoid touching the real cache directory.
func WithProvisioner(provision provisionFunc) MsiOpt {
	return func(mo *msiOptions) {
		mo.provision = provision
	}
}

// WithRunner overrides how external processes are invoked.
func WithRunner(run runnerFunc) MsiOpt {
	return func(mo *msiOptions) {
		mo.run = run
	}
}

// PackageMSI runs the build pipeline end to end: provision the wix
// toolset, write the wxs manifest next to the source executable,
// compile it with candle, link it with light. The phases run strictly
// in this order and the first failure aborts the build; intermediate
// files are left in the working directory for diagnostics. On success
// the path of the built msi is returned.
func PackageMSI(ctx context.Context, req InstallerRequest, opts ...MsiOpt) (string, error) {
	ctx, span := trace.StartSpan(ctx, "packagekit.PackageMSI")
	defer span.End()

	logger := ctxlog.FromContext(ctx)

	mo := &msiOptions{
		run: execout.New().Run,
	}
	for _, opt := range opts {
		opt(mo)
	}
	if mo.provision == nil {
		provisioner, err := wixtoolset.New()
		if err != nil {
			return "", errors.Wrap(err, "creating toolset provisioner")
		}
		mo.provision = provisioner.Provision
	}

	if err := req.Validate(); err != nil {
		return "", errors.Wrap(err, "invalid installer request")
	}

	workingDir := req.WorkingDir()

	toolset, err := mo.provision(ctx)
	if err != nil {
		return "", errors.Wrap(err, "provisioning wix toolset")
	}

	wxsPath, err := WriteInstallerWXS(ctx, req, workingDir)
	if err != nil {
		return "", errors.Wrap(err, "writing installer manifest")
	}

	level.Debug(logger).Log(
		"msg", "wrote installer manifest",
		"path", wxsPath,
	)

	if err := mo.run(ctx, toolset.CandlePath, []string{"-out", wixObjFilename, InstallerWXSFilename}, workingDir); err != nil {
		return "", errors.Wrap(err, "running candle")
	}

	msiFilename := req.MsiFilename()
	if err := mo.run(ctx, toolset.LightPath, []string{"-out", msiFilename, wixObjFilename}, workingDir); err != nil {
		return "", errors.Wrap(err, "running light")
	}

	artifactPath := filepath.Join(workingDir, msiFilename)

	level.Info(logger).Log(
		"msg", "built msi",
		"path", artifactPath,
	)

	return artifactPath, nil
}
