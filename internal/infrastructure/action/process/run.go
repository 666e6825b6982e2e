package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
	"unicode/utf8"
)

const defaultGracePeriod = 5 * time.Second

// Command configures a subprocess to execute.
type Command struct {
	Binary string
	Args   []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is appended to os.Environ.
	Env []string
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	GracePeriod time.Duration
}

type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Run executes a subprocess in its own process group and waits for it. If ctx
// is cancelled the group gets SIGTERM, then SIGKILL after the grace period.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, errors.New("process: binary is required")
	}
	grace := cmd.GracePeriod
	if grace == 0 {
		grace = defaultGracePeriod
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // running configured stage commands is the point
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = grace

	start := time.Now()
	err := c.Run()
	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if c.ProcessState != nil {
		result.ExitCode = c.ProcessState.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("process: killed by context: %w", ctx.Err())
		}
		return result, fmt.Errorf("process: exit code %d: %w", result.ExitCode, err)
	}
	return result, nil
}

// truncatedMarker prefixes a diagnostic whose head was dropped.
const truncatedMarker = "…"

// Diagnostic joins stdout and stderr and keeps at most the last limit bytes,
// starting at a rune boundary. A shortened diagnostic starts with
// truncatedMarker.
func (r *Result) Diagnostic(limit int) string {
	if r == nil {
		return ""
	}
	out := bytes.TrimSpace(r.Stdout)
	errOut := bytes.TrimSpace(r.Stderr)
	var combined []byte
	switch {
	case len(out) > 0 && len(errOut) > 0:
		combined = append(append(append(combined, out...), '\n'), errOut...)
	case len(errOut) > 0:
		combined = errOut
	default:
		combined = out
	}
	if limit > 0 && len(combined) > limit {
		cut := len(combined) - limit
		for cut < len(combined) && !utf8.RuneStart(combined[cut]) {
			cut++
		}
		return truncatedMarker + string(combined[cut:])
	}
	return string(combined)
}
