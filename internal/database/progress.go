package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/svanlent/seller-scraper/internal/models"
)

const upsertProgressQuery = `
	INSERT INTO crawl_progress (seller_id, status, error, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (seller_id) DO UPDATE SET
		status = EXCLUDED.status,
		error = EXCLUDED.error,
		updated_at = EXCLUDED.updated_at`

// PgLedger is the database-backed crawl ledger. The full crawl_progress table
// loads into memory at construction; Mark only touches memory and Flush
// writes the rows dirtied since the previous flush in one transaction.
type PgLedger struct {
	db      *DB
	mu      sync.RWMutex
	entries map[int64]*models.ProgressEntry
	dirty   map[int64]struct{}
}

func NewPgLedger(ctx context.Context, db *DB) (*PgLedger, error) {
	l := &PgLedger{
		db:      db,
		entries: make(map[int64]*models.ProgressEntry),
		dirty:   make(map[int64]struct{}),
	}

	if err := l.load(ctx); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *PgLedger) load(ctx context.Context) error {
	rows, err := l.db.pool.Query(ctx,
		"SELECT seller_id, status, error, updated_at FROM crawl_progress")
	if err != nil {
		return fmt.Errorf("failed to load crawl progress: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sellerID int64
		entry := &models.ProgressEntry{}
		if err := rows.Scan(&sellerID, &entry.Status, &entry.Error, &entry.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan progress row: %w", err)
		}
		l.entries[sellerID] = entry
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating progress rows: %w", err)
	}

	return nil
}

func (l *PgLedger) Seen(sellerID int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, exists := l.entries[sellerID]
	return exists
}

func (l *PgLedger) Get(sellerID int64) (*models.ProgressEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, exists := l.entries[sellerID]
	return entry, exists
}

// Mark records the terminal outcome for sellerID in memory and queues it for
// the next Flush.
func (l *PgLedger) Mark(sellerID int64, status models.CrawlStatus, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[sellerID] = &models.ProgressEntry{
		Status:    status,
		Error:     errMsg,
		UpdatedAt: time.Now(),
	}
	l.dirty[sellerID] = struct{}{}
	return nil
}

// Flush upserts every dirty entry in a single transaction. Rows stay dirty
// on failure and get retried by the next flush.
func (l *PgLedger) Flush(ctx context.Context) error {
	l.mu.RLock()
	batch := make(map[int64]models.ProgressEntry, len(l.dirty))
	for sellerID := range l.dirty {
		if entry := l.entries[sellerID]; entry != nil {
			batch[sellerID] = *entry
		}
	}
	l.mu.RUnlock()

	if len(batch) == 0 {
		return nil
	}

	err := l.db.Transaction(ctx, func(tx pgx.Tx) error {
		for sellerID, entry := range batch {
			_, err := tx.Exec(ctx, upsertProgressQuery,
				sellerID, entry.Status, entry.Error, entry.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to upsert progress for seller %d: %w", sellerID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	for sellerID, written := range batch {
		// A concurrent re-mark keeps the row dirty.
		if cur := l.entries[sellerID]; cur != nil && cur.UpdatedAt.Equal(written.UpdatedAt) {
			delete(l.dirty, sellerID)
		}
	}
	l.mu.Unlock()

	return nil
}

func (l *PgLedger) Stats() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]int)
	for _, entry := range l.entries {
		stats[string(entry.Status)]++
	}
	stats["total"] = len(l.entries)
	return stats
}

func (l *PgLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
