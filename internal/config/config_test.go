package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SCHEDULE_CRON", "SCHEDULE_TIMEZONE", "SCHEDULE_OVERLAP", "PIPELINE_MAX_PARALLEL", "DB_DRIVER", "NATS_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.ScheduleCron != "0 2 * * *" {
		t.Fatalf("expected daily 02:00 schedule, got %q", cfg.ScheduleCron)
	}
	if cfg.ScheduleTimezone != "Africa/Addis_Ababa" {
		t.Fatalf("unexpected timezone %q", cfg.ScheduleTimezone)
	}
	if cfg.ScheduleOverlap != "skip" {
		t.Fatalf("unexpected overlap policy %q", cfg.ScheduleOverlap)
	}
	if cfg.PipelineMaxParallel != 1 {
		t.Fatalf("expected sequential stages by default, got %d", cfg.PipelineMaxParallel)
	}
	if cfg.DBDriver != "postgres" {
		t.Fatalf("unexpected driver %q", cfg.DBDriver)
	}
	if cfg.NATSURL != "" {
		t.Fatalf("NATS should be disabled by default, got %q", cfg.NATSURL)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("PIPELINE_MAX_PARALLEL", "3")
	t.Setenv("LABELER_RPS", "2.5")
	t.Setenv("RUN_TIMEOUT_MINUTES", "not-a-number")

	cfg := Load()
	if cfg.PipelineMaxParallel != 3 {
		t.Fatalf("expected 3, got %d", cfg.PipelineMaxParallel)
	}
	if cfg.LabelerRPS != 2.5 {
		t.Fatalf("expected 2.5, got %v", cfg.LabelerRPS)
	}
	if cfg.RunTimeoutMinutes != 0 {
		t.Fatalf("invalid integer should fall back, got %d", cfg.RunTimeoutMinutes)
	}
}

func TestLoadDotenvKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "ETL_DOTENV_NEW=from-file\nETL_DOTENV_SET=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	t.Setenv("ETL_DOTENV_SET", "from-env")
	t.Setenv("ETL_DOTENV_NEW", "")
	os.Unsetenv("ETL_DOTENV_NEW")

	if err := LoadDotenv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotenv() error = %v", err)
	}
	if got := os.Getenv("ETL_DOTENV_NEW"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("ETL_DOTENV_SET"); got != "from-env" {
		t.Fatalf("existing variable was overridden: %q", got)
	}
}
