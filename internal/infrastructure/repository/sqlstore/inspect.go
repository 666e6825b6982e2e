package sqlstore

import (
	"context"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

func (s *Store) Ping(ctx context.Context) error {
	return classify("db ping", s.db.PingContext(ctx))
}

// Stats counts rows in every pipeline table.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	var stats domain.StoreStats
	targets := []struct {
		table string
		dst   *int64
	}{
		{"raw_telegram_messages", &stats.SourceRecords},
		{"raw_telegram_images", &stats.Attachments},
		{"image_detections", &stats.Annotations},
		{"missing_artifacts", &stats.ArtifactMiss},
	}
	for _, t := range targets {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t.table).Scan(t.dst); err != nil {
			return domain.StoreStats{}, classify("count "+t.table, err)
		}
	}
	return stats, nil
}
