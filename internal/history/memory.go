package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Thangam2001/Utility-App/internal/logger"
)

// SnapshotVersion is the format version of the history snapshot file
const SnapshotVersion = 1

type snapshot struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// MemoryLedger keeps at most limit entries in memory, newest first. With a
// file configured, every append rewrites a JSON snapshot so the log survives
// restarts of the CLI.
type MemoryLedger struct {
	entries  []Entry
	limit    int
	filePath string
	logger   *logger.Logger
	mu       sync.RWMutex
}

// MemoryConfig holds configuration for the in-memory ledger
type MemoryConfig struct {
	Logger *logger.Logger
	Limit  int
	File   string
}

// NewMemoryLedger creates a ledger and loads its snapshot file if present
func NewMemoryLedger(cfg *MemoryConfig) (*MemoryLedger, error) {
	if cfg == nil {
		cfg = &MemoryConfig{}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	m := &MemoryLedger{
		entries:  make([]Entry, 0),
		limit:    limit,
		filePath: cfg.File,
		logger:   log,
	}

	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// load reads the snapshot file. A missing file is an empty ledger.
func (m *MemoryLedger) load() error {
	if m.filePath == "" {
		return nil
	}

	data, err := os.ReadFile(m.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse history file: %w", err)
	}

	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported history file version %d (expected %d)", snap.Version, SnapshotVersion)
	}

	if len(snap.Entries) > m.limit {
		snap.Entries = snap.Entries[:m.limit]
	}
	m.entries = snap.Entries
	m.logger.WithFields("entries", len(m.entries), "file", m.filePath).Debug("Loaded history")
	return nil
}

// Append stores entry at the head of the log, dropping the oldest entry
// once the limit is reached.
func (m *MemoryLedger) Append(ctx context.Context, entry Entry) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry = stamp(entry)

	m.mu.Lock()
	defer m.mu.Unlock()

	next := append([]Entry{entry}, m.entries...)
	if len(next) > m.limit {
		next = next[:m.limit]
	}

	// the log only changes once the snapshot holds the entry
	if err := m.save(next); err != nil {
		return nil, err
	}
	m.entries = next
	return &entry, nil
}

// List returns up to limit entries, newest first. limit <= 0 selects the
// ledger's limit.
func (m *MemoryLedger) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := effectiveLimit(limit, m.limit)
	if n > len(m.entries) {
		n = len(m.entries)
	}

	out := make([]Entry, n)
	copy(out, m.entries[:n])
	return out, nil
}

// Len returns the number of entries held
func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op; snapshots are written on every append
func (m *MemoryLedger) Close() error {
	return nil
}

// save writes entries as the snapshot atomically. Caller holds the lock.
func (m *MemoryLedger) save(entries []Entry) error {
	if m.filePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(snapshot{Version: SnapshotVersion, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmpFile := m.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp history file: %w", err)
	}

	if err := os.Rename(tmpFile, m.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp history file: %w", err)
	}

	return nil
}
