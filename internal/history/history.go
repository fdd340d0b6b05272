// Package history keeps the log of completed operations shown by the
// history endpoint and command.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Thangam2001/Utility-App/internal/config"
	"github.com/Thangam2001/Utility-App/internal/logger"
	"github.com/Thangam2001/Utility-App/internal/ocr"
	"github.com/Thangam2001/Utility-App/internal/record"
)

// TextOutputFormat is the output format recorded for recognition entries
const TextOutputFormat = "text/plain"

// DefaultLimit is the number of entries kept and listed when none is configured
const DefaultLimit = 50

// Entry is one completed operation
type Entry struct {
	// ID is assigned on append
	ID string `json:"id" yaml:"id"`

	// FileName is the uploaded file's name
	FileName string `json:"file_name" yaml:"file_name"`

	// OperationType is resize, crop, convert, compress or ocr
	OperationType string `json:"operation_type" yaml:"operation_type"`

	// OriginalFormat is the format or mime type of the input
	OriginalFormat string `json:"original_format" yaml:"original_format"`

	// OutputFormat is the format or mime type of the output
	OutputFormat string `json:"output_format" yaml:"output_format"`

	// FileSize is the output size in bytes
	FileSize int `json:"file_size" yaml:"file_size"`

	// ResultURL is where the output can be downloaded
	ResultURL string `json:"result_url" yaml:"result_url"`

	// Metadata holds the operation record or recognition summary
	Metadata map[string]interface{} `json:"metadata" yaml:"metadata"`

	// PerformedAt is set on append when zero
	PerformedAt time.Time `json:"performed_at" yaml:"performed_at"`
}

// Ledger is an append-only, newest-first operation log
type Ledger interface {
	Append(ctx context.Context, entry Entry) (*Entry, error)
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// FromRecord builds the entry for a completed transformation. The output
// size and formats come from the record's result descriptor.
func FromRecord(fileName string, rec record.Record, resultURL string) Entry {
	return Entry{
		FileName:       fileName,
		OperationType:  string(rec.Operation),
		OriginalFormat: string(rec.Original.Format),
		OutputFormat:   string(rec.Result.Format),
		FileSize:       rec.Result.Size,
		ResultURL:      resultURL,
		Metadata: map[string]interface{}{
			"original": rec.Original,
			"result":   rec.Result,
			"params":   rec.Params,
		},
	}
}

// FromRecognition builds the entry for a completed recognition. Unlike
// transformations, the recorded size and format are those of the input.
func FromRecognition(fileName, mimeType string, inputSize int, res *ocr.Result, resultURL string) Entry {
	return Entry{
		FileName:       fileName,
		OperationType:  string(record.KindOCR),
		OriginalFormat: mimeType,
		OutputFormat:   TextOutputFormat,
		FileSize:       inputSize,
		ResultURL:      resultURL,
		Metadata: map[string]interface{}{
			"confidence": res.Confidence,
			"durationMs": res.DurationMs,
			"words":      res.WordCount,
			"provider":   res.Provider,
		},
	}
}

// stamp fills in the fields the ledger owns.
func stamp(entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = time.Now().UTC()
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]interface{}{}
	}
	return entry
}

// effectiveLimit resolves a requested listing size against the ledger's cap
func effectiveLimit(requested, max int) int {
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}

// NewFromConfig opens the Postgres ledger when a database URL is configured
// and the in-memory ledger otherwise.
func NewFromConfig(ctx context.Context, cfg *config.HistoryConfig, log *logger.Logger) (Ledger, error) {
	if log == nil {
		log = logger.Get()
	}

	if cfg.DatabaseURL != "" {
		ledger, err := NewPostgresLedger(ctx, &PostgresConfig{
			Logger: log,
			URL:    cfg.DatabaseURL,
			SSL:    cfg.DatabaseSSL,
			Limit:  cfg.Limit,
		})
		if err != nil {
			return nil, err
		}
		if err := ledger.Migrate(ctx); err != nil {
			ledger.Close()
			return nil, err
		}
		return ledger, nil
	}

	log.Debug("DATABASE_URL not set, using in-memory history")
	return NewMemoryLedger(&MemoryConfig{
		Logger: log,
		Limit:  cfg.Limit,
		File:   cfg.File,
	})
}
