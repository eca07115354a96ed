package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS recordable_series (
//   station TEXT NOT NULL,
//   name    TEXT NOT NULL,
//   ts_nano BIGINT NOT NULL,
//   value   DOUBLE PRECISION NOT NULL
// );
//
// CREATE TABLE IF NOT EXISTS applied_samples (
//   commit_id TEXT PRIMARY KEY,
//   station   TEXT NOT NULL,
//   name      TEXT NOT NULL,
//   ts        TIMESTAMPTZ NOT NULL DEFAULT now()
// );
// CREATE INDEX IF NOT EXISTS idx_applied_samples_name ON applied_samples(station, name);
//
// Idempotent insert per sample:
//   INSERT INTO applied_samples(commit_id, station, name) VALUES ($1,$2,$3)
//     ON CONFLICT DO NOTHING;
//   INSERT INTO recordable_series(station, name, ts_nano, value)
//     SELECT $2, $3, $4, $5
//     WHERE NOT EXISTS (SELECT 1 FROM applied_samples WHERE commit_id = $1 AND station <> $2);
// The second insert runs only when the first one inserted a row, so a
// replayed commit_id adds nothing to recordable_series.

// PostgresArchiver applies samples idempotently using the safe pattern above.
type PostgresArchiver struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

// NewPostgresArchiver creates an archiver over an already-configured *sql.DB.
func NewPostgresArchiver(db *sql.DB) *PostgresArchiver {
	return &PostgresArchiver{db: db, defaultTimeout: 10 * time.Second}
}

// ArchiveBatch applies the provided samples within a single transaction.
// Each sample remains idempotent: if its commit_id already exists, the
// insert into recordable_series is skipped.
func (p *PostgresArchiver) ArchiveBatch(ctx context.Context, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, s := range samples {
		if s.CommitID == "" {
			return errors.New("persist: Sample.CommitID must be set")
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO applied_samples(commit_id, station, name) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`,
			s.CommitID, s.Station, s.Name)
		if err != nil {
			return fmt.Errorf("persist: insert applied_samples(%s): %w", s.CommitID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue // commit_id already applied
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recordable_series(station, name, ts_nano, value)
			   SELECT $2, $3, $4, $5
			   WHERE NOT EXISTS (
			     SELECT 1 FROM applied_samples WHERE commit_id = $1 AND station <> $2
			   )`,
			s.CommitID, s.Station, s.Name, s.TimeNano, s.Value); err != nil {
			return fmt.Errorf("persist: insert recordable_series(%s/%s): %w", s.Station, s.Name, err)
		}
	}

	return tx.Commit()
}
