package sqlstore

import (
	"context"
	"database/sql"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

// selectUnprocessed is the anti-join of attachments against annotated and
// recorded-missing subjects.
const selectUnprocessed = `
SELECT i.message_id, i.image_path
FROM raw_telegram_images i
LEFT JOIN (
	SELECT DISTINCT message_id, image_path FROM image_detections
) d ON d.message_id = i.message_id AND d.image_path = i.image_path
LEFT JOIN missing_artifacts m ON m.message_id = i.message_id AND m.image_path = i.image_path
WHERE d.message_id IS NULL AND m.message_id IS NULL
ORDER BY i.message_id ASC, i.image_path ASC
`

const insertAnnotation = `
INSERT INTO image_detections (message_id, image_path, detected_object_class, confidence_score, detected_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (message_id, image_path, detected_object_class) DO NOTHING
`

const insertArtifactMiss = `
INSERT INTO missing_artifacts (message_id, image_path, reason, recorded_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (message_id, image_path) DO NOTHING
`

// SelectUnprocessed returns attachments with no annotation and no recorded
// miss, ascending by message id. It keeps no state between calls.
func (s *Store) SelectUnprocessed(ctx context.Context) ([]domain.WorkUnit, error) {
	rows, err := s.db.QueryContext(ctx, selectUnprocessed)
	if err != nil {
		return nil, classify("select unprocessed", err)
	}
	defer rows.Close()

	units := make([]domain.WorkUnit, 0)
	for rows.Next() {
		var unit domain.WorkUnit
		if err := rows.Scan(&unit.SubjectKey, &unit.SubjectLocation); err != nil {
			return nil, classify("scan unprocessed", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate unprocessed", err)
	}
	return units, nil
}

func (s *Store) WriteAnnotations(ctx context.Context, annotations []domain.Annotation) (int64, error) {
	if len(annotations) == 0 {
		return 0, nil
	}
	var inserted int64
	err := s.inTx(ctx, "write annotations", func(tx *sql.Tx) error {
		n, err := s.insertEach(ctx, tx, insertAnnotation, len(annotations), func(i int) []any {
			a := annotations[i]
			return []any{a.SubjectKey, a.SubjectLocation, a.Label, a.Score, a.ProducedAt.UTC()}
		})
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) RecordArtifactMiss(ctx context.Context, miss domain.ArtifactMiss) (int64, error) {
	recordedAt := miss.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.now()
	}
	var inserted int64
	err := s.inTx(ctx, "record artifact miss", func(tx *sql.Tx) error {
		n, err := s.insertEach(ctx, tx, insertArtifactMiss, 1, func(int) []any {
			return []any{miss.SubjectKey, miss.SubjectLocation, miss.Reason, recordedAt.UTC()}
		})
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// RequeueArtifactMisses forgets every recorded miss so those subjects are
// selected again.
func (s *Store) RequeueArtifactMisses(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM missing_artifacts`)
	if err != nil {
		return 0, classify("requeue artifact misses", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("requeue artifact misses", err)
	}
	return n, nil
}
