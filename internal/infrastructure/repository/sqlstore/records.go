package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

const ownerLookupChunk = 500

const insertSourceRecord = `
INSERT INTO raw_telegram_messages (message_id, channel, message_date, payload, loaded_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (message_id) DO NOTHING
`

const insertAttachment = `
INSERT INTO raw_telegram_images (message_id, channel, image_path, image_date, loaded_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (message_id, image_path) DO NOTHING
`

// WriteSourceRecords inserts records keyed by message id. Existing keys are
// left untouched and do not count as inserted.
func (s *Store) WriteSourceRecords(ctx context.Context, records []domain.SourceRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	loadedAt := s.now()
	var inserted int64
	err := s.inTx(ctx, "write source records", func(tx *sql.Tx) error {
		n, err := s.insertEach(ctx, tx, insertSourceRecord, len(records), func(i int) []any {
			r := records[i]
			return []any{r.NaturalKey, r.Channel, r.CapturedAt.UTC(), string(r.Payload), loadedAt}
		})
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// WriteAttachments inserts attachments keyed by (message id, path). Callers
// must make sure owners exist; a missing owner aborts the whole batch with
// ErrReferentialViolation.
func (s *Store) WriteAttachments(ctx context.Context, attachments []domain.Attachment) (int64, error) {
	if len(attachments) == 0 {
		return 0, nil
	}
	loadedAt := s.now()
	var inserted int64
	err := s.inTx(ctx, "write attachments", func(tx *sql.Tx) error {
		n, err := s.insertEach(ctx, tx, insertAttachment, len(attachments), func(i int) []any {
			a := attachments[i]
			return []any{a.OwnerKey, a.Channel, a.Location, a.CapturedAt.UTC(), loadedAt}
		})
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ExistingSourceKeys reports which of keys are present in the store.
func (s *Store) ExistingSourceKeys(ctx context.Context, keys []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(keys))
	for start := 0; start < len(keys); start += ownerLookupChunk {
		end := min(start+ownerLookupChunk, len(keys))
		chunk := keys[start:end]

		query := fmt.Sprintf(`SELECT message_id FROM raw_telegram_messages WHERE message_id IN (%s)`, placeholders(1, len(chunk)))
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}

		if err := s.collectKeys(ctx, s.dialect.rebind(query), args, out); err != nil {
			return nil, classify("lookup source keys", err)
		}
	}
	return out, nil
}

func (s *Store) collectKeys(ctx context.Context, query string, args []any, out map[int64]bool) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key int64
		if err := rows.Scan(&key); err != nil {
			return err
		}
		out[key] = true
	}
	return rows.Err()
}
