package command

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

func detectorScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "detect.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write detector: %v", err)
	}
	return path
}

func TestLabelParsesDetections(t *testing.T) {
	script := detectorScript(t, `echo "[{\"label\":\"bottle\",\"score\":0.91},{\"label\":\"person\",\"score\":0.4}]"`+"\n")
	labeler, err := New("sh "+script, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	labels, err := labeler.Label(context.Background(), "/lake/images/message_101_9.jpg")
	if err != nil {
		t.Fatalf("Label() error = %v", err)
	}
	if len(labels) != 2 || labels[0].Name != "bottle" || labels[0].Score != 0.91 {
		t.Fatalf("unexpected labels %+v", labels)
	}
}

func TestLabelPassesImagePathLast(t *testing.T) {
	script := detectorScript(t, `case "$1" in *message_7_1.png) echo "[]";; *) echo "unexpected $1" >&2; exit 1;; esac`+"\n")
	labeler, err := New("sh "+script, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	labels, err := labeler.Label(context.Background(), "/lake/message_7_1.png")
	if err != nil || len(labels) != 0 {
		t.Fatalf("Label() = %+v, %v", labels, err)
	}
}

func TestLabelFailureIsExternalAction(t *testing.T) {
	script := detectorScript(t, "echo 'model weights missing' >&2\nexit 2\n")
	labeler, err := New("sh "+script, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = labeler.Label(context.Background(), "/lake/a.jpg")
	if !domain.IsKind(err, domain.ErrExternalAction) {
		t.Fatalf("expected ErrExternalAction, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatal("a detector failure must not abort the run")
	}
	if !strings.Contains(err.Error(), "model weights missing") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestLabelRejectsGarbageOutput(t *testing.T) {
	script := detectorScript(t, "echo 'loading model...'\n")
	labeler, err := New("sh "+script, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := labeler.Label(context.Background(), "/lake/a.jpg"); !domain.IsKind(err, domain.ErrExternalAction) {
		t.Fatalf("expected ErrExternalAction, got %v", err)
	}
}

func TestNewRejectsMissingBinary(t *testing.T) {
	if _, err := New("", 0); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := New("definitely-not-a-detector-binary model.pt", 0); !domain.IsKind(err, domain.ErrExternalAction) {
		t.Fatalf("expected ErrExternalAction, got %v", err)
	}
}
