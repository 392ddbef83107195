package crawler

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/svanlent/seller-scraper/internal/models"
)

// Ledger tracks which seller IDs were already processed and with what
// outcome. A seen ID is never refetched, whatever its stored status. Mark is
// in-memory; Flush makes the marks durable.
type Ledger interface {
	Seen(sellerID int64) bool
	Mark(sellerID int64, status models.CrawlStatus, errMsg string) error
	Flush(ctx context.Context) error
	Stats() map[string]int
}

// ProgressLedger is the file-backed Ledger. The whole entry map is serialized
// on every flush and swapped in through a temp file rename, so a crash leaves
// either the old snapshot or the new one, never a torn file.
type ProgressLedger struct {
	mu       sync.RWMutex
	entries  map[int64]*models.ProgressEntry
	filename string
}

// NewProgressLedger opens (or starts) the ledger at filename. A missing file
// is a fresh crawl, not an error.
func NewProgressLedger(filename string) (*ProgressLedger, error) {
	pl := &ProgressLedger{
		entries:  make(map[int64]*models.ProgressEntry),
		filename: filename,
	}

	if err := pl.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return pl, nil
}

func (pl *ProgressLedger) Seen(sellerID int64) bool {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	_, exists := pl.entries[sellerID]
	return exists
}

func (pl *ProgressLedger) Get(sellerID int64) (*models.ProgressEntry, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	entry, exists := pl.entries[sellerID]
	return entry, exists
}

// Mark records the terminal outcome for sellerID in memory. Durability comes
// from Flush.
func (pl *ProgressLedger) Mark(sellerID int64, status models.CrawlStatus, errMsg string) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	pl.entries[sellerID] = &models.ProgressEntry{
		Status:    status,
		Error:     errMsg,
		UpdatedAt: time.Now(),
	}
	return nil
}

// Flush writes the full snapshot to disk atomically.
func (pl *ProgressLedger) Flush(_ context.Context) error {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	data, err := json.MarshalIndent(pl.entries, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := pl.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, pl.filename)
}

func (pl *ProgressLedger) Load() error {
	data, err := os.ReadFile(pl.filename)
	if err != nil {
		return err
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()
	return json.Unmarshal(data, &pl.entries)
}

func (pl *ProgressLedger) Stats() map[string]int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	stats := make(map[string]int)
	for _, entry := range pl.entries {
		stats[string(entry.Status)]++
	}
	stats["total"] = len(pl.entries)
	return stats
}

func (pl *ProgressLedger) Len() int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return len(pl.entries)
}
