package process

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/pipeline"
)

const diagnosticLimit = 8 << 10

// CommandAction runs an interpreter on a script, the way the acquire stage
// drives the scraper.
type CommandAction struct {
	cfg pipeline.CommandConfig
}

func NewCommandAction(cfg pipeline.CommandConfig) *CommandAction {
	return &CommandAction{cfg: cfg}
}

func (a *CommandAction) Invoke(ctx context.Context) (string, error) {
	script, err := filepath.Abs(a.cfg.ScriptPath)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve script path", err)
	}
	dir := a.cfg.WorkDir
	if dir == "" {
		dir = filepath.Dir(script)
	}

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	result, err := Run(ctx, Command{
		Binary: a.cfg.Interpreter,
		Args:   append([]string{script}, a.cfg.Args...),
		Dir:    dir,
		Env:    envList(a.cfg.Env),
	})
	diagnostic := result.Diagnostic(diagnosticLimit)
	if err != nil {
		return diagnostic, domain.WrapError(domain.ErrExternalAction, "run "+filepath.Base(script), err)
	}
	return diagnostic, nil
}

// DbtAction runs the analytical transformation tool in its project directory.
type DbtAction struct {
	cfg      pipeline.DbtConfig
	lookPath func(string) (string, error)
}

func NewDbtAction(cfg pipeline.DbtConfig) *DbtAction {
	return &DbtAction{cfg: cfg, lookPath: exec.LookPath}
}

func (a *DbtAction) Invoke(ctx context.Context) (string, error) {
	binary, err := a.lookPath(a.cfg.Binary)
	if err != nil {
		return "", domain.WrapError(domain.ErrExternalAction, "locate dbt", fmt.Errorf("%s not found in PATH: %w", a.cfg.Binary, err))
	}

	// Relative paths are resolved against the caller's working directory.
	project, err := filepath.Abs(a.cfg.ProjectDir)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve dbt project dir", err)
	}
	args := []string{a.cfg.Command, "--project-dir", project}
	if a.cfg.ProfilesDir != "" {
		profiles, err := filepath.Abs(a.cfg.ProfilesDir)
		if err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "resolve dbt profiles dir", err)
		}
		args = append(args, "--profiles-dir", profiles)
	}
	if a.cfg.Target != "" {
		args = append(args, "--target", a.cfg.Target)
	}

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	result, err := Run(ctx, Command{Binary: binary, Args: args, Dir: project})
	diagnostic := result.Diagnostic(diagnosticLimit)
	if err != nil {
		return diagnostic, domain.WrapError(domain.ErrExternalAction, "dbt "+a.cfg.Command, err)
	}
	return diagnostic, nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
