package models

import "time"

// CrawlStatus is the terminal state recorded for a processed seller ID.
type CrawlStatus string

const (
	// StatusOK means a record was produced and stored.
	StatusOK CrawlStatus = "ok"
	// StatusEmpty means the page was fetched but contained no seller.
	StatusEmpty CrawlStatus = "empty"
	// StatusError means all fetch attempts failed.
	StatusError CrawlStatus = "error"
)

// ProgressEntry is the ledger value for one seller ID. Entries are terminal:
// once written, the ID is never reprocessed within the same ledger.
type ProgressEntry struct {
	Status    CrawlStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}
