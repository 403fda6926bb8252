package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/kit/env"
	"github.com/kolide/kit/logutil"
	"github.com/peterbourgon/ff/v3"
	"github.com/pkg/errors"

	"msiwrap/pkg/contexts/ctxlog"
	"msiwrap/pkg/packagekit"
)

func main() {
	// only used until options are parsed.
	logger := logutil.NewServerLogger(false)

	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		level.Info(logger).Log("err", err)
		os.Exit(1)
	}

	logger = logutil.NewServerLogger(opts.debug)
	ctx := ctxlog.NewContext(context.Background(), logger)

	artifactPath, err := packagekit.PackageMSI(ctx, opts.request)
	if err != nil {
		logutil.Fatal(logger, "err", err, "msg", "could not build msi")
	}

	level.Info(logger).Log(
		"msg", "created package",
		"msi", artifactPath,
	)
}

type options struct {
	debug   bool
	request packagekit.InstallerRequest
}

func parseOptions(args []string) (*options, error) {
	flagset := flag.NewFlagSet("msiwrap", flag.ExitOnError)
	var (
		flDebug = flagset.Bool(
			"debug",
			env.Bool("DEBUG", false),
			"enable debug logging",
		)
		flExeFilePath = flagset.String(
			"exe-file-path",
			env.String("EXE_FILE_PATH", ""),
			"path to the executable installer to wrap (required)",
		)
		flExeArguments = flagset.String(
			"exe-arguments",
			env.String("EXE_ARGUMENTS", ""),
			"arguments the installed executable is launched with",
		)
		flMsiName = flagset.String(
			"msi-name",
			env.String("MSI_NAME", ""),
			"name for the produced msi package, .msi suffix optional (required)",
		)
		flMsiVersion = flagset.String(
			"msi-version",
			env.String("MSI_VERSION", ""),
			"four component package version, eg 1.2.3.4 (required)",
		)
	)

	flagset.Usage = usageFor(flagset, "msiwrap [flags]")
	if err := ff.Parse(flagset, args, ff.WithEnvVarNoPrefix()); err != nil {
		return nil, err
	}

	if *flExeFilePath == "" {
		return nil, errors.New("--exe-file-path is required")
	}

	if *flMsiName == "" {
		return nil, errors.New("--msi-name is required")
	}

	req, err := packagekit.NewInstallerRequest(
		*flExeFilePath,
		stripSurroundingQuotes(*flExeArguments),
		*flMsiName,
		*flMsiVersion,
	)
	if err != nil {
		return nil, err
	}

	return &options{
		debug:   *flDebug,
		request: req,
	}, nil
}

// stripSurroundingQuotes removes one matched pair of surrounding
// quote characters. Shells on windows tend to hand the argument
// string over still wearing them.
func stripSurroundingQuotes(s string) string {
	if len(s) < 2 {
		return s
	}

	first, last := s[0], s[len(s)-1]
	if first == last && (first == '"' || first == '\'') {
		return s[1 : len(s)-1]
	}

	return s
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		w := tabwriter.NewWriter(os.Stderr, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(w, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		w.Flush()
		fmt.Fprintf(os.Stderr, "\n")
	}
}
