package gitsync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// Result is the outcome of one git invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes git subcommands. An error is returned only when the
// process could not be run at all; a non-zero exit is reported in Result.
type Runner interface {
	Git(ctx context.Context, args ...string) (Result, error)
}

// ExecRunner runs the git binary found on PATH.
type ExecRunner struct {
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Stream copies git's output to the terminal as it runs.
	Stream bool
	// Out and ErrOut default to os.Stdout and os.Stderr when streaming.
	Out    io.Writer
	ErrOut io.Writer
}

// Git runs git with args and waits for it to exit. There is no timeout;
// ctx cancellation is the only way to stop a hung command.
func (r *ExecRunner) Git(ctx context.Context, args ...string) (Result, error) {
	// #nosec G204 -- invoking git with fixed binary name and controlled args
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.Stream {
		cmd.Stdout = io.MultiWriter(&stdout, writerOr(r.Out, os.Stdout))
		cmd.Stderr = io.MultiWriter(&stderr, writerOr(r.ErrOut, os.Stderr))
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.ExitCode = ee.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, err
	}
	return res, nil
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
