package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRun(w io.Writer, format string, run *domain.PipelineRun) error {
	if format == "json" {
		return writeJSON(w, run)
	}
	fmt.Fprintf(w, "run %s (%s) %s\n", run.ID, run.Trigger, strings.ToUpper(string(run.Status)))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range run.Stages {
		detail := s.Reason
		if detail == "" {
			detail = firstLine(s.Diagnostic)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", s.Name, s.Status, s.Duration().Round(time.Millisecond), detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if run.Status == domain.RunFailed {
		fmt.Fprintf(w, "reason: %s\n", run.Reason)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
