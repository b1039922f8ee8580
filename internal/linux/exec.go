package linux

/*
* Wrapper around exec.Cmd.  Objective is to run a binary, collect its
* stdout/err, plus exit values, without blocking past the caller's context.
 */
import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
)

/*
* Collect the results of running a command here.
 */
type RunResult struct {
	Stdout   string // stdout of the executed binary
	Stderr   string // stderr of the executed binary
	Err      error  // error or nil
	ExitCode int    // exit code of the executed binary
}

// Ok is true when the command started and exited zero.
func (r *RunResult) Ok() bool {
	return r.Err == nil && r.ExitCode == 0
}

/*
* Runner is what the resolver backends call; tests substitute a recorder.
 */
type Runner interface {
	Run(ctx context.Context, cmdLine []string) *RunResult
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, cmdLine []string) *RunResult {
	return Run(ctx, cmdLine)
}

/*
* cmdLine[0] is binary and balance of array is arguments.
 */
func Run(ctx context.Context, cmdLine []string) *RunResult {

	r := RunResult{}
	if len(cmdLine) == 0 {
		r.Err = errors.New("empty command line")
		r.ExitCode = -1
		return &r
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdLine[0], cmdLine[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	r.Stdout = stdout.String()
	r.Stderr = stderr.String()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Ran to completion with a non-zero status; not an exec failure.
			r.ExitCode = exitErr.ExitCode()
			slog.Debug("command exited non-zero", "process", cmdLine[0],
				"exit code", r.ExitCode, "stderr", r.Stderr)
			return &r
		}
		r.Err = err
		r.ExitCode = -1
		slog.Warn("exec failed", "process", cmdLine[0], "error", err)
		return &r
	}

	r.ExitCode = cmd.ProcessState.ExitCode()
	return &r
}
