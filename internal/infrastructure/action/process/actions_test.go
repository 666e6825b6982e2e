package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/pipeline"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stage.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCommandActionRunsInScriptDirectory(t *testing.T) {
	requireShell(t)
	script := writeScript(t, "pwd\necho \"arg=$1 env=$ETL_STAGE\"\n")

	action := NewCommandAction(pipeline.CommandConfig{
		ScriptPath:  script,
		Interpreter: "sh",
		Args:        []string{"2025-07-14"},
		Env:         map[string]string{"ETL_STAGE": "acquire"},
	})
	diagnostic, err := action.Invoke(context.Background())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	dir, _ := filepath.EvalSymlinks(filepath.Dir(script))
	if !strings.Contains(diagnostic, dir) && !strings.Contains(diagnostic, filepath.Dir(script)) {
		t.Fatalf("expected script directory as cwd, got %q", diagnostic)
	}
	if !strings.Contains(diagnostic, "arg=2025-07-14 env=acquire") {
		t.Fatalf("unexpected diagnostic %q", diagnostic)
	}
}

func TestCommandActionFailureKeepsDiagnostic(t *testing.T) {
	requireShell(t)
	script := writeScript(t, "echo 'Traceback: login failed' >&2\nexit 3\n")

	diagnostic, err := NewCommandAction(pipeline.CommandConfig{ScriptPath: script, Interpreter: "sh"}).Invoke(context.Background())
	if !domain.IsKind(err, domain.ErrExternalAction) {
		t.Fatalf("expected ErrExternalAction, got %v", err)
	}
	if !strings.Contains(err.Error(), "exit code 3") {
		t.Fatalf("expected exit code in error, got %v", err)
	}
	if diagnostic != "Traceback: login failed" {
		t.Fatalf("unexpected diagnostic %q", diagnostic)
	}
}

func TestCommandActionTimeout(t *testing.T) {
	requireShell(t)
	script := writeScript(t, "sleep 5\n")

	start := time.Now()
	_, err := NewCommandAction(pipeline.CommandConfig{
		ScriptPath:  script,
		Interpreter: "sh",
		Timeout:     100 * time.Millisecond,
	}).Invoke(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatal("process group was not terminated")
	}
}

func TestDbtActionMissingBinary(t *testing.T) {
	action := NewDbtAction(pipeline.DbtConfig{ProjectDir: t.TempDir(), Binary: "dbt", Command: "run"})
	action.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	_, err := action.Invoke(context.Background())
	if !domain.IsKind(err, domain.ErrExternalAction) || !strings.Contains(err.Error(), "dbt not found in PATH") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDbtActionPassesProjectArguments(t *testing.T) {
	requireShell(t)
	fake := writeScript(t, "#!/bin/sh\necho \"$@\"\n")
	project := t.TempDir()
	action := NewDbtAction(pipeline.DbtConfig{ProjectDir: project, Binary: "dbt", Command: "run", Target: "prod"})
	action.lookPath = func(string) (string, error) { return fake, nil }

	diagnostic, err := action.Invoke(context.Background())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if diagnostic != "run --project-dir "+project+" --target prod" {
		t.Fatalf("unexpected arguments %q", diagnostic)
	}
}

func TestDbtActionResolvesRelativeProjectDir(t *testing.T) {
	requireShell(t)
	fake := writeScript(t, "#!/bin/sh\n"+
		"[ -f \"$3/dbt_project.yml\" ] || { echo \"no project at $3\" >&2; exit 2; }\n"+
		"[ -d \"$5\" ] || { echo \"no profiles at $5\" >&2; exit 2; }\n"+
		"echo \"cwd=$(pwd)\"\n")

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "medical_warehouse", "profiles"), 0o755); err != nil {
		t.Fatalf("mkdir project: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "medical_warehouse", "dbt_project.yml"), []byte("name: medical\n"), 0o644); err != nil {
		t.Fatalf("write project: %v", err)
	}
	prevDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(root); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prevDir) })

	action := NewDbtAction(pipeline.DbtConfig{
		ProjectDir:  "medical_warehouse",
		ProfilesDir: "medical_warehouse/profiles",
		Binary:      "dbt",
		Command:     "run",
	})
	action.lookPath = func(string) (string, error) { return fake, nil }

	diagnostic, err := action.Invoke(context.Background())
	if err != nil {
		t.Fatalf("Invoke() error = %v, diagnostic %q", err, diagnostic)
	}
	if !strings.HasPrefix(diagnostic, "cwd=") || !strings.HasSuffix(diagnostic, "medical_warehouse") {
		t.Fatalf("expected the project as working directory, got %q", diagnostic)
	}
}

func TestResultDiagnosticKeepsTail(t *testing.T) {
	r := &Result{Stdout: []byte("  hello  "), Stderr: []byte("world\n")}
	if got := r.Diagnostic(0); got != "hello\nworld" {
		t.Fatalf("Diagnostic() = %q", got)
	}
	if got := r.Diagnostic(5); got != truncatedMarker+"world" {
		t.Fatalf("Diagnostic(5) = %q", got)
	}
	if got := r.Diagnostic(11); got != "hello\nworld" {
		t.Fatalf("Diagnostic(11) = %q", got)
	}

	multi := &Result{Stderr: []byte("ошибка")}
	if got := multi.Diagnostic(5); got != truncatedMarker+"ка" {
		t.Fatalf("expected cut at a rune boundary, got %q", got)
	}
}
