// Package execout runs external commands under supervision, streaming
// their output to the context logger line by line as it arrives.
package execout

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"msiwrap/pkg/contexts/ctxlog"
)

type Runner struct {
	execCC func(context.Context, string, ...string) *exec.Cmd // Allows test overrides
}

func New() *Runner {
	return &Runner{
		execCC: exec.CommandContext,
	}
}

// Run invokes argv0 with args inside dir and waits for it to exit.
// Stdout and stderr are drained on independent readers while the
// process runs, so a chatty child can't deadlock on a full pipe
// buffer; each line is forwarded to the context logger as it arrives.
// A non-zero exit is returned as an error carrying the exit code.
func (r *Runner) Run(ctx context.Context, argv0 string, args []string, dir string) error {
	logger := ctxlog.FromContext(ctx)

	cmd := r.execCC(ctx, argv0, args...)
	cmd.Dir = dir

	level.Debug(logger).Log(
		"msg", "execing",
		"cmd", strings.Join(cmd.Args, " "),
		"dir", dir,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrapf(err, "create stdout pipe for %s", argv0)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrapf(err, "create stderr pipe for %s", argv0)
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "starting %s", argv0)
	}

	var g errgroup.Group
	g.Go(func() error { return forwardLines(stdout, logger, "stdout") })
	g.Go(func() error { return forwardLines(stderr, logger, "stderr") })

	// Both readers must be fully joined before the exit code is
	// inspected. Wait closes the pipes.
	drainErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return errors.Errorf("%s exited with code %d", argv0, exitErr.ExitCode())
		}
		return errors.Wrapf(err, "waiting on %s", argv0)
	}

	if drainErr != nil {
		return errors.Wrapf(drainErr, "reading output of %s", argv0)
	}

	return nil
}

func forwardLines(r io.Reader, logger log.Logger, stream string) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		level.Info(logger).Log(
			"stream", stream,
			"line", scanner.Text(),
		)
	}
	return scanner.Err()
}
