// Package store persists rover readings into the mqtt_data_log table.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// TableName is the target table the relay writes to. The table is
// provisioned externally; this service never creates or reads it.
const TableName = "mqtt_data_log"

// maxConns is the fixed connection pool size.
const maxConns = 5

// ErrSchemaMissing indicates the target table or one of its required
// columns (device_id, value_payload, mqtt_topic) does not exist.
var ErrSchemaMissing = errors.New("mqtt_data_log table or required columns missing")

// Reading is one message captured from the comms topic, ready to persist.
// The received_at column is assigned by the database at insert time.
type Reading struct {
	DeviceID string
	Payload  string
	Topic    string
}

// Inserter is the write surface the ingestion handler depends on.
type Inserter interface {
	InsertReading(ctx context.Context, r Reading) error
}

// Postgres wraps a pgx connection pool for the reading log.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates the connection pool and verifies connectivity.
// The pool is fixed at 5 connections; one is acquired per insert and
// released when the insert completes, success or failure.
func NewPostgres(ctx context.Context, connString string, logger *zap.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	logger.Info("database connection pool established",
		zap.String("table", TableName),
		zap.Int32("max_conns", maxConns))

	return &Postgres{pool: pool, logger: logger}, nil
}

const insertSQL = `INSERT INTO ` + TableName + `
	(device_id, value_payload, mqtt_topic, received_at)
	VALUES ($1, $2, $3, now())`

// InsertReading writes one reading inside a transaction. received_at is
// server-assigned. Errors are classified so the caller can log a schema
// problem distinctly from a transient failure.
func (p *Postgres) InsertReading(ctx context.Context, r Reading) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	// Rollback is a no-op after a successful Commit.
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, insertSQL, r.DeviceID, r.Payload, r.Topic); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// classify maps undefined_table / undefined_column errors onto
// ErrSchemaMissing so they can be reported distinctly in logs.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01", "42703": // undefined_table, undefined_column
			return fmt.Errorf("%w: %s", ErrSchemaMissing, pgErr.Message)
		}
	}
	return fmt.Errorf("insert into %s: %w", TableName, err)
}
