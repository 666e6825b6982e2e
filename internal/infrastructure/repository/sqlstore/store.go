package sqlstore

import (
	"context"
	"database/sql"
	"time"
)

// Store is the SQL implementation of the record, annotation and inspector
// ports. Every write call runs in its own transaction.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) inTx(ctx context.Context, operation string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(operation+": begin tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return classify(operation, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(operation+": commit tx", err)
	}
	return nil
}

// insertEach executes one prepared insert per row and returns the number of
// rows actually inserted. Conflicting rows report zero affected rows.
func (s *Store) insertEach(ctx context.Context, tx *sql.Tx, query string, n int, args func(i int) []any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(query))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var inserted int64
	for i := 0; i < n; i++ {
		res, err := stmt.ExecContext(ctx, args(i)...)
		if err != nil {
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += affected
	}
	return inserted, nil
}
