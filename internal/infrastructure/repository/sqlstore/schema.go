package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaLockID = int64(2025071401)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS raw_telegram_messages (
	message_id BIGINT PRIMARY KEY,
	channel TEXT NOT NULL,
	message_date TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL,
	loaded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_telegram_images (
	message_id BIGINT NOT NULL REFERENCES raw_telegram_messages(message_id),
	channel TEXT NOT NULL,
	image_path TEXT NOT NULL,
	image_date TIMESTAMPTZ NOT NULL,
	loaded_at TIMESTAMPTZ NOT NULL,
	UNIQUE (message_id, image_path)
);

CREATE TABLE IF NOT EXISTS image_detections (
	message_id BIGINT NOT NULL,
	image_path TEXT NOT NULL,
	detected_object_class TEXT NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL,
	UNIQUE (message_id, image_path, detected_object_class),
	FOREIGN KEY (message_id, image_path) REFERENCES raw_telegram_images(message_id, image_path)
);

CREATE TABLE IF NOT EXISTS missing_artifacts (
	message_id BIGINT NOT NULL,
	image_path TEXT NOT NULL,
	reason TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	UNIQUE (message_id, image_path)
);

CREATE INDEX IF NOT EXISTS idx_raw_telegram_messages_channel ON raw_telegram_messages(channel);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS raw_telegram_messages (
	message_id INTEGER PRIMARY KEY,
	channel TEXT NOT NULL,
	message_date TIMESTAMP NOT NULL,
	payload TEXT NOT NULL,
	loaded_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_telegram_images (
	message_id INTEGER NOT NULL REFERENCES raw_telegram_messages(message_id),
	channel TEXT NOT NULL,
	image_path TEXT NOT NULL,
	image_date TIMESTAMP NOT NULL,
	loaded_at TIMESTAMP NOT NULL,
	UNIQUE (message_id, image_path)
);

CREATE TABLE IF NOT EXISTS image_detections (
	message_id INTEGER NOT NULL,
	image_path TEXT NOT NULL,
	detected_object_class TEXT NOT NULL,
	confidence_score REAL NOT NULL,
	detected_at TIMESTAMP NOT NULL,
	UNIQUE (message_id, image_path, detected_object_class),
	FOREIGN KEY (message_id, image_path) REFERENCES raw_telegram_images(message_id, image_path)
);

CREATE TABLE IF NOT EXISTS missing_artifacts (
	message_id INTEGER NOT NULL,
	image_path TEXT NOT NULL,
	reason TEXT NOT NULL,
	recorded_at TIMESTAMP NOT NULL,
	UNIQUE (message_id, image_path)
);

CREATE INDEX IF NOT EXISTS idx_raw_telegram_messages_channel ON raw_telegram_messages(channel);
`

// EnsureSchema creates the pipeline tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := postgresSchema
	if s.dialect == DialectSQLite {
		ddl = sqliteSchema
	}

	return s.inTx(ctx, "ensure schema", func(tx *sql.Tx) error {
		if s.dialect == DialectPostgres {
			// Serialize bootstrap DDL across concurrent CLI and scheduler startups.
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
				return fmt.Errorf("acquire schema lock: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("execute schema ddl: %w", err)
		}
		return nil
	})
}
