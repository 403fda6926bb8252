package packagekit

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

// InstallerWXSFilename is the fixed manifest path inside the working
// directory. The compiled intermediate sits next to it.
const (
	InstallerWXSFilename = "setup.wxs"
	wixObjFilename       = "setup.wixobj"
)

//go:embed assets/installer.wxs
var installerWXSTemplate []byte

// RenderInstallerWXS renders the wxs manifest for a request: product
// metadata with a stable upgrade code, the install directory tree
// under program files, the single file component and feature, and the
// deferred asyncNoWait action that launches the wrapped executable on
// fresh installs. The action is fire-and-forget: the installer's own
// completion never waits on the wrapped executable.
//
// The request's path, arguments, and name are externally supplied
// text landing inside an xml document, so every interpolation goes
// through xml escaping.
func RenderInstallerWXS(ctx context.Context, w io.Writer, req InstallerRequest) error {
	_, span := trace.StartSpan(ctx, "packagekit.RenderInstallerWXS")
	defer span.End()

	var data = struct {
		Name          string
		Version       string
		UpgradeCode   string
		ComponentGuid string
		ExePath       string
		ExeArguments  string
	}{
		Name:          req.PackageName,
		Version:       req.PackageVersion,
		UpgradeCode:   StableGuid(req.MsiFilename()),
		ComponentGuid: componentGuid(),
		ExePath:       req.ExePath,
		ExeArguments:  req.ExeArguments,
	}

	funcsMap := template.FuncMap{
		"xml": xmlEscape,
	}

	t, err := template.New("InstallerWXS").Funcs(funcsMap).Parse(string(installerWXSTemplate))
	if err != nil {
		return errors.Wrap(err, "not able to parse installer.wxs template")
	}
	return t.ExecuteTemplate(w, "InstallerWXS", data)
}

// WriteInstallerWXS renders the manifest and writes it to its fixed
// path inside dir, truncating any prior content. The written path is
// returned.
func WriteInstallerWXS(ctx context.Context, req InstallerRequest, dir string) (string, error) {
	wxs := new(bytes.Buffer)
	if err := RenderInstallerWXS(ctx, wxs, req); err != nil {
		return "", errors.Wrap(err, "rendering installer wxs")
	}

	wxsPath := filepath.Join(dir, InstallerWXSFilename)
	if err := os.WriteFile(wxsPath, wxs.Bytes(), 0644); err != nil {
		return "", errors.Wrapf(err, "writing %s", wxsPath)
	}

	return wxsPath, nil
}

func xmlEscape(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", errors.Wrap(err, "escaping for xml")
	}
	return buf.String(), nil
}
