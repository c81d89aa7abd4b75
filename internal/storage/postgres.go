package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a turn does not exist.
var ErrNotFound = errors.New("turn not found")

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id          UUID PRIMARY KEY,
	dataset_id  TEXT NOT NULL DEFAULT '',
	response    TEXT NOT NULL,
	has_code    BOOLEAN NOT NULL,
	scripts     INTEGER NOT NULL,
	rejected    INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS turns_dataset_created ON turns (dataset_id, created_at DESC);

CREATE TABLE IF NOT EXISTS scripts (
	id          UUID PRIMARY KEY,
	turn_id     UUID NOT NULL REFERENCES turns (id) ON DELETE CASCADE,
	idx         INTEGER NOT NULL,
	code        TEXT NOT NULL,
	code_hash   TEXT NOT NULL DEFAULT '',
	safe        BOOLEAN NOT NULL,
	rule        TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	output      TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	figures     INTEGER NOT NULL DEFAULT 0,
	results     JSONB,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (turn_id, idx)
);`

// maxTextColumn bounds stored response, code, output and error text.
const maxTextColumn = 65535

// Options tunes the connection pool. Zero values keep the defaults.
type Options struct {
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

// DB wraps a PostgreSQL connection pool for audit logging.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool and ensures the schema exists.
func New(ctx context.Context, dsn string, opts Options) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
		config.MinConns = min(config.MinConns, opts.MaxConns)
	}
	if opts.ConnMaxLifetime > 0 {
		config.MaxConnLifetime = opts.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// LogTurn inserts a turn and its scripts in one transaction.
func (db *DB) LogTurn(ctx context.Context, rec *TurnRecord) error {
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO turns (id, dataset_id, response, has_code, scripts, rejected,
				failed, succeeded, duration_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rec.ID, rec.DatasetID, truncateForDB(rec.Response, maxTextColumn), rec.HasCode,
			rec.Scripts, rec.Rejected, rec.Failed, rec.Succeeded,
			rec.DurationMS, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting turn: %w", err)
		}

		batch := &pgx.Batch{}
		for _, s := range rec.ScriptRecords {
			results, err := json.Marshal(s.Results)
			if err != nil {
				return fmt.Errorf("encoding results of script %d: %w", s.Index, err)
			}
			batch.Queue(`
				INSERT INTO scripts (id, turn_id, idx, code, code_hash, safe, rule, reason,
					status, output, error, figures, results, duration_ms, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
				s.ID, s.TurnID, s.Index,
				truncateForDB(s.Code, maxTextColumn), s.CodeHash,
				s.Safe, s.Rule, s.Reason, s.Status,
				truncateForDB(s.Output, maxTextColumn),
				truncateForDB(s.Error, maxTextColumn),
				s.Figures, results, s.DurationMS, s.CreatedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting scripts: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("logging turn %s: %w", rec.ID, err)
	}
	return nil
}

// GetTurn retrieves a turn and its scripts by turn ID.
func (db *DB) GetTurn(ctx context.Context, id string) (*TurnRecord, error) {
	var rec TurnRecord
	err := db.pool.QueryRow(ctx, `
		SELECT id, dataset_id, response, has_code, scripts, rejected, failed,
			succeeded, duration_ms, created_at
		FROM turns WHERE id = $1`, id).Scan(
		&rec.ID, &rec.DatasetID, &rec.Response, &rec.HasCode,
		&rec.Scripts, &rec.Rejected, &rec.Failed, &rec.Succeeded,
		&rec.DurationMS, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying turn %s: %w", id, err)
	}

	rows, err := db.pool.Query(ctx, `
		SELECT id, turn_id, idx, code, code_hash, safe, rule, reason, status,
			output, error, figures, results, duration_ms, created_at
		FROM scripts WHERE turn_id = $1 ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("querying scripts of turn %s: %w", id, err)
	}
	defer rows.Close()

	rec.ScriptRecords = []Script{}
	for rows.Next() {
		var (
			s       Script
			results []byte
		)
		if err := rows.Scan(
			&s.ID, &s.TurnID, &s.Index, &s.Code, &s.CodeHash, &s.Safe,
			&s.Rule, &s.Reason, &s.Status, &s.Output, &s.Error,
			&s.Figures, &results, &s.DurationMS, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning script row: %w", err)
		}
		if len(results) > 0 {
			if err := json.Unmarshal(results, &s.Results); err != nil {
				return nil, fmt.Errorf("decoding results of script %s: %w", s.ID, err)
			}
		}
		rec.ScriptRecords = append(rec.ScriptRecords, s)
	}
	return &rec, rows.Err()
}

// ListTurns queries turn summaries with optional filters, newest first.
func (db *DB) ListTurns(ctx context.Context, filter TurnFilter) ([]Turn, error) {
	query := `
		SELECT id, dataset_id, has_code, scripts, rejected, failed, succeeded,
			duration_ms, created_at
		FROM turns
		WHERE ($1 = '' OR dataset_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, query, filter.DatasetID, filter.Since, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var results []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(
			&t.ID, &t.DatasetID, &t.HasCode, &t.Scripts, &t.Rejected,
			&t.Failed, &t.Succeeded, &t.DurationMS, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning turn row: %w", err)
		}
		results = append(results, t)
	}

	return results, rows.Err()
}

func truncateForDB(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
