package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := cmd.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", filepath.Join(t.TempDir(), "etl.db"))
	t.Setenv("SCHEDULE_TIMEZONE", "UTC")
	t.Setenv("NATS_URL", "")
	t.Setenv("LOG_LEVEL", "error")
}

func TestCommandPresence(t *testing.T) {
	root := NewRootCommand()
	for _, path := range [][]string{{"run"}, {"migrate"}, {"load"}, {"enrich"}, {"unprocessed"}, {"status"}, {"artifacts", "requeue"}, {"validate"}} {
		sub, _, err := root.Find(path)
		if err != nil || sub.Name() != path[len(path)-1] {
			t.Fatalf("command %v not found: %v", path, err)
		}
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	if _, err := execute(t, "validate", "--format", "yaml"); err == nil || !strings.Contains(err.Error(), "invalid format") {
		t.Fatalf("expected invalid format error, got %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	definition := `
name: telegram_medical
stages:
  - name: acquire
    kind: command
    config: {script_path: scrape.py}
  - name: load
    kind: load
    depends_on: [acquire]
    config: {messages_dir: m, images_dir: i}
`
	if err := os.WriteFile(path, []byte(definition), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}

	out, err := execute(t, "validate", "-f", path, "--format", "json")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	var result struct {
		Valid  bool       `json:"valid"`
		Levels [][]string `json:"levels"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if !result.Valid || len(result.Levels) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	cyclic := strings.Replace(definition, "kind: command", "kind: command\n    depends_on: [load]", 1)
	if err := os.WriteFile(path, []byte(cyclic), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	if _, err := execute(t, "validate", "-f", path); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for cycle, got %v", err)
	}
}

func TestStatusOnFreshStore(t *testing.T) {
	useSQLite(t)
	out, err := execute(t, "status", "--format", "json")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	var stats domain.StoreStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if stats != (domain.StoreStats{}) {
		t.Fatalf("expected empty store, got %+v", stats)
	}
}

func TestLoadAndUnprocessed(t *testing.T) {
	useSQLite(t)
	lake := t.TempDir()
	day := filepath.Join("2025-07-14", "chemed")
	for name, body := range map[string]string{
		filepath.Join(lake, "messages", day, "7.json"):        `{"id": 7, "date": "2025-07-14T10:00:00Z"}`,
		filepath.Join(lake, "images", day, "message_7_3.jpg"): "jpg",
		filepath.Join(lake, "images", day, "message_7_1.png"): "png",
	} {
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(name, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	out, err := execute(t, "load", "--lake-root", lake, "--messages-dir", "messages", "--images-dir", "images")
	if err != nil {
		t.Fatalf("load error = %v", err)
	}
	if !strings.Contains(out, "messages: inserted=1") || !strings.Contains(out, "attachments: inserted=2") {
		t.Fatalf("unexpected load report %q", out)
	}

	out, err = execute(t, "unprocessed")
	if err != nil {
		t.Fatalf("unprocessed error = %v", err)
	}
	want := "7\timages/2025-07-14/chemed/message_7_1.png\n7\timages/2025-07-14/chemed/message_7_3.jpg\n"
	if out != want {
		t.Fatalf("unprocessed output = %q, want %q", out, want)
	}

	out, err = execute(t, "artifacts", "requeue")
	if err != nil || out != "requeued 0 image(s)\n" {
		t.Fatalf("requeue = %q, %v", out, err)
	}
}
