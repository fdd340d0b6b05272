package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Thangam2001/Utility-App/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS operation_history (
	id              UUID PRIMARY KEY,
	file_name       TEXT NOT NULL,
	operation_type  TEXT NOT NULL,
	original_format TEXT,
	output_format   TEXT,
	file_size       BIGINT NOT NULL DEFAULT 0,
	result_url      TEXT,
	metadata        JSONB NOT NULL DEFAULT '{}'::jsonb,
	performed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS operation_history_performed_at_idx
	ON operation_history (performed_at DESC);
`

// PostgresLedger stores history in the operation_history table
type PostgresLedger struct {
	db     *sql.DB
	limit  int
	logger *logger.Logger
}

// PostgresConfig holds configuration for the Postgres ledger
type PostgresConfig struct {
	Logger *logger.Logger

	// URL is a postgres:// URL or a key=value connection string
	URL string

	// SSL requests an encrypted connection without certificate verification
	SSL bool

	// Limit caps List when no limit is requested
	Limit int
}

// NewPostgresLedger opens the database and verifies the connection
func NewPostgresLedger(ctx context.Context, cfg *PostgresConfig) (*PostgresLedger, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	dsn, err := connString(cfg.URL, cfg.SSL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	log.WithFields("ssl", cfg.SSL).Info("Connected to history database")
	return &PostgresLedger{db: db, limit: limit, logger: log}, nil
}

// Migrate creates the history table if it does not exist
func (p *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate history schema: %w", err)
	}
	return nil
}

// Append inserts entry
func (p *PostgresLedger) Append(ctx context.Context, entry Entry) (*Entry, error) {
	entry = stamp(entry)

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO operation_history (
			id, file_name, operation_type, original_format, output_format,
			file_size, result_url, metadata, performed_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), $8::jsonb, $9)`,
		entry.ID,
		entry.FileName,
		entry.OperationType,
		entry.OriginalFormat,
		entry.OutputFormat,
		entry.FileSize,
		entry.ResultURL,
		string(metadata),
		entry.PerformedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record operation (id=%s, type=%s): %w", entry.ID, entry.OperationType, describePQ(err))
	}

	return &entry, nil
}

// List returns up to limit entries, newest first
func (p *PostgresLedger) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, file_name, operation_type, original_format, output_format,
			file_size, result_url, metadata, performed_at
		FROM operation_history
		ORDER BY performed_at DESC
		LIMIT $1`, effectiveLimit(limit, p.limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", describePQ(err))
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e                            Entry
			originalFormat, outputFormat sql.NullString
			resultURL                    sql.NullString
			metadata                     []byte
		)
		if err := rows.Scan(&e.ID, &e.FileName, &e.OperationType, &originalFormat, &outputFormat,
			&e.FileSize, &resultURL, &metadata, &e.PerformedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.OriginalFormat = originalFormat.String
		e.OutputFormat = outputFormat.String
		e.ResultURL = resultURL.String

		e.Metadata = map[string]interface{}{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}

// Close closes the database handle
func (p *PostgresLedger) Close() error {
	return p.db.Close()
}

// connString normalizes a URL or key=value DSN and sets sslmode unless the
// caller already chose one.
func connString(raw string, ssl bool) (string, error) {
	dsn := strings.TrimSpace(raw)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		parsed, err := pq.ParseURL(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid database URL: %w", err)
		}
		dsn = parsed
	}

	if strings.Contains(dsn, "sslmode=") {
		return dsn, nil
	}

	mode := "disable"
	if ssl {
		mode = "require"
	}
	if dsn == "" {
		return "sslmode=" + mode, nil
	}
	return dsn + " sslmode=" + mode, nil
}

// describePQ adds the server's error code to Postgres errors
func describePQ(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s (%s): %w", pqErr.Message, pqErr.Code, err)
	}
	return err
}
