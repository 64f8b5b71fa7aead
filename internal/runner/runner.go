// Package runner invokes the external TEM-simulator binary.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/san-kum/temsim/internal/logging"
)

// stderrTail bounds how much of the tool's stderr is kept for errors.
const stderrTail = 4096

// ErrExternalTool matches every *ExternalToolError through errors.Is.
var ErrExternalTool = errors.New("runner: external tool failed")

// ExternalToolError reports a simulator run that exited non-zero, could not
// be started, or finished without writing the files it was asked for.
type ExternalToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Missing  []string
	Err      error
}

func (e *ExternalToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "runner: %s", e.Tool)
	switch {
	case len(e.Missing) > 0:
		fmt.Fprintf(&b, " did not produce %s", strings.Join(e.Missing, ", "))
	case e.ExitCode >= 0:
		fmt.Fprintf(&b, " exited with status %d", e.ExitCode)
	default:
		b.WriteString(" failed")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, "\nstderr: %s", s)
	}
	return b.String()
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

func (e *ExternalToolError) Is(target error) bool { return target == ErrExternalTool }

// Runner runs Binary with Args followed by the input file path. A single
// Run blocks until the process exits or ctx is done, in which case the
// process is killed.
type Runner struct {
	Binary string
	Args   []string
	// Env entries are appended to the current environment.
	Env    []string
	Dir    string
	Stdout io.Writer
	Logger *slog.Logger
}

func New(binary string, args ...string) *Runner {
	return &Runner{Binary: binary, Args: args}
}

// Run executes the simulator on inputFile and checks that every path in
// expected exists afterwards. Relative paths are resolved against Dir.
func (r *Runner) Run(ctx context.Context, inputFile string, expected []string) error {
	logger := r.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	args := append(append([]string{}, r.Args...), inputFile)
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr
	if r.Stdout != nil {
		cmd.Stdout = r.Stdout
	}

	logger.Debug("starting simulator", "binary", r.Binary, "input", inputFile)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		toolErr := &ExternalToolError{
			Tool:     r.Binary,
			Args:     args,
			ExitCode: -1,
			Stderr:   stderr.String(),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			toolErr.Err = ctxErr
		}
		logger.Error("simulator failed", "binary", r.Binary, "exit_code", toolErr.ExitCode, "elapsed", elapsed)
		return toolErr
	}

	if missing := r.missing(expected); len(missing) > 0 {
		logger.Error("simulator outputs missing", "binary", r.Binary, "missing", missing)
		return &ExternalToolError{
			Tool:     r.Binary,
			Args:     args,
			ExitCode: 0,
			Stderr:   stderr.String(),
			Missing:  missing,
		}
	}

	logger.Info("simulator finished", "binary", r.Binary, "elapsed", elapsed, "outputs", len(expected))
	return nil
}

func (r *Runner) missing(paths []string) []string {
	var out []string
	for _, p := range paths {
		full := p
		if r.Dir != "" && !filepath.IsAbs(p) {
			full = filepath.Join(r.Dir, p)
		}
		if _, err := os.Stat(full); err != nil {
			out = append(out, p)
		}
	}
	return out
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string { return t.buf.String() }
