// Package command runs an object detector as a subprocess per image.
//
// The detector receives the image path as its last argument and prints a
// JSON array of {"label", "score"} objects on stdout.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/infrastructure/action/process"
)

const stderrLimit = 2 << 10

type Labeler struct {
	binary  string
	args    []string
	timeout time.Duration
}

// New splits commandLine on whitespace and resolves its binary in PATH.
func New(commandLine string, timeout time.Duration) (*Labeler, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "labeler command", errors.New("command is empty"))
	}
	binary, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, domain.WrapError(domain.ErrExternalAction, "labeler command", fmt.Errorf("%s not found in PATH: %w", fields[0], err))
	}
	return &Labeler{binary: binary, args: fields[1:], timeout: timeout}, nil
}

func (l *Labeler) Label(ctx context.Context, path string) ([]domain.Label, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), l.args...), path)
	result, err := process.Run(ctx, process.Command{Binary: l.binary, Args: args})
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, err
		}
		stderr := ""
		if result != nil {
			stderr = tail(bytes.TrimSpace(result.Stderr), stderrLimit)
		}
		return nil, domain.WrapError(domain.ErrExternalAction, "detect "+path, fmt.Errorf("%w: %s", err, stderr))
	}

	var labels []domain.Label
	if err := json.Unmarshal(bytes.TrimSpace(result.Stdout), &labels); err != nil {
		return nil, domain.WrapError(domain.ErrExternalAction, "decode detections", err)
	}
	return labels, nil
}

func tail(b []byte, limit int) string {
	if len(b) > limit {
		b = b[len(b)-limit:]
	}
	return string(b)
}
