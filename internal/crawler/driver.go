package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/svanlent/seller-scraper/internal/fetcher"
	"github.com/svanlent/seller-scraper/internal/metrics"
	"github.com/svanlent/seller-scraper/internal/models"
	"github.com/svanlent/seller-scraper/internal/parser"
	"github.com/svanlent/seller-scraper/internal/ratelimit"
	"github.com/svanlent/seller-scraper/internal/sink"
)

// Deps are the collaborators a Driver works through. Fetcher, Parser, Ledger
// and Sink are required; Pacer and Metrics may be nil.
type Deps struct {
	Fetcher fetcher.Fetcher
	Parser  *parser.SellerParser
	Ledger  Ledger
	Sink    sink.RecordSink
	Pacer   ratelimit.Pacer
	Metrics *metrics.Metrics
}

// Options tune the per-ID retry and flush behavior.
type Options struct {
	// MaxAttempts is the fetch budget per seller ID.
	MaxAttempts int
	// BackoffBase scales the linear backoff: the sleep before attempt N is
	// (N-1) times this value.
	BackoffBase time.Duration
	// FlushEvery is the ledger flush cadence in marked IDs.
	FlushEvery int
}

// Summary tallies one crawl run.
type Summary struct {
	Processed int
	OK        int
	Empty     int
	Errors    int
	Skipped   int
}

// Driver walks a list of seller IDs strictly in order, one request at a
// time. Every input ID ends in exactly one terminal ledger state; a crash or
// cancellation between flushes loses at most the unflushed marks.
type Driver struct {
	fetcher fetcher.Fetcher
	parser  *parser.SellerParser
	ledger  Ledger
	sink    sink.RecordSink
	pacer   ratelimit.Pacer
	metrics *metrics.Metrics
	logger  zerolog.Logger

	maxAttempts int
	backoffBase time.Duration
	flushEvery  int

	sleep    func(ctx context.Context, d time.Duration) error
	progress func(sellerID int64, status string)
}

func NewDriver(deps Deps, opts Options, logger zerolog.Logger) (*Driver, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 5 * time.Second
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 25
	}

	return &Driver{
		fetcher:     deps.Fetcher,
		parser:      deps.Parser,
		ledger:      deps.Ledger,
		sink:        deps.Sink,
		pacer:       deps.Pacer,
		metrics:     deps.Metrics,
		logger:      logger.With().Str("component", "crawler").Logger(),
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		flushEvery:  opts.FlushEvery,
		sleep:       sleepContext,
	}, nil
}

// OnProgress registers a callback invoked once per input ID with its outcome
// ("skipped" included). Used for CLI progress reporting.
func (d *Driver) OnProgress(fn func(sellerID int64, status string)) {
	d.progress = fn
}

// Run processes the given IDs in order and returns the tally. The returned
// error is run-level (cancellation, final flush failure); per-ID failures
// land in the ledger and the summary instead.
func (d *Driver) Run(ctx context.Context, sellerIDs []int64) (*Summary, error) {
	summary := &Summary{}
	fetched := 0
	sinceFlush := 0

	d.logger.Info().Int("ids", len(sellerIDs)).Msg("starting crawl")

	for _, sellerID := range sellerIDs {
		if err := ctx.Err(); err != nil {
			return summary, d.finish(summary, err)
		}

		if d.ledger.Seen(sellerID) {
			summary.Skipped++
			d.metrics.IncOutcome("skipped")
			d.notifyProgress(sellerID, "skipped")
			continue
		}

		// Space out requests; the ID after a skip run starts immediately.
		if fetched > 0 && d.pacer != nil {
			if err := d.pacer.Wait(ctx); err != nil {
				return summary, d.finish(summary, err)
			}
		}
		fetched++

		status, errMsg, err := d.processOne(ctx, sellerID)
		if err != nil {
			return summary, d.finish(summary, err)
		}

		if err := d.ledger.Mark(sellerID, status, errMsg); err != nil {
			d.logger.Error().Int64("seller_id", sellerID).Err(err).Msg("ledger mark failed")
		}
		summary.Processed++
		d.tally(summary, status)
		d.metrics.IncOutcome(string(status))
		d.notifyProgress(sellerID, string(status))

		sinceFlush++
		if sinceFlush >= d.flushEvery {
			if err := d.ledger.Flush(ctx); err != nil {
				d.logger.Error().Err(err).Msg("ledger flush failed")
			}
			sinceFlush = 0
		}
	}

	if err := d.ledger.Flush(ctx); err != nil {
		return summary, fmt.Errorf("final ledger flush: %w", err)
	}

	d.logger.Info().
		Int("processed", summary.Processed).
		Int("ok", summary.OK).
		Int("empty", summary.Empty).
		Int("errors", summary.Errors).
		Int("skipped", summary.Skipped).
		Msg("crawl finished")
	return summary, nil
}

// processOne drives the fetch/parse/store sequence for a single seller. The
// returned error is non-nil only for run-level aborts; per-ID failures come
// back as a terminal status plus description.
func (d *Driver) processOne(ctx context.Context, sellerID int64) (models.CrawlStatus, string, error) {
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			d.metrics.IncRetry()
			if err := d.sleep(ctx, time.Duration(attempt-1)*d.backoffBase); err != nil {
				return "", "", err
			}
		}

		start := time.Now()
		page, err := d.fetcher.FetchProfile(ctx, sellerID)
		d.metrics.ObserveFetchDuration(time.Since(start))

		if err != nil {
			if fetcher.IsNotFound(err) {
				// Definitive absence, retrying cannot change it.
				d.metrics.IncFetch("not_found")
				return models.StatusEmpty, "", nil
			}
			if ctx.Err() != nil {
				return "", "", ctx.Err()
			}
			lastErr = err
			d.metrics.IncFetch(fetcher.TypeLabel(err))
			d.logger.Warn().
				Int64("seller_id", sellerID).
				Int("attempt", attempt).
				Str("category", fetcher.TypeLabel(err)).
				Err(err).
				Msg("fetch attempt failed")
			continue
		}
		d.metrics.IncFetch("ok")

		record, err := d.parser.Parse(page.Body, sellerID)
		if err != nil {
			// Parsing is deterministic; a retry would fail identically.
			return models.StatusError, fmt.Sprintf("parse: %v", err), nil
		}

		if record.IsEmpty() {
			return models.StatusEmpty, "", nil
		}

		if err := d.sink.Append(ctx, record); err != nil {
			return models.StatusError, fmt.Sprintf("store: %v", err), nil
		}

		d.logger.Debug().Int64("seller_id", sellerID).Str("business_name", record.BusinessName).Msg("stored seller record")
		return models.StatusOK, "", nil
	}

	return models.StatusError, lastErr.Error(), nil
}

// finish flushes the ledger on an aborted run so completed marks survive.
// The run context is usually the abort cause, so the flush gets its own
// short deadline.
func (d *Driver) finish(summary *Summary, cause error) error {
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.ledger.Flush(flushCtx); err != nil {
		d.logger.Error().Err(err).Msg("ledger flush on abort failed")
	}
	d.logger.Warn().Int("processed", summary.Processed).Err(cause).Msg("crawl aborted")
	return cause
}

func (d *Driver) tally(summary *Summary, status models.CrawlStatus) {
	switch status {
	case models.StatusOK:
		summary.OK++
	case models.StatusEmpty:
		summary.Empty++
	case models.StatusError:
		summary.Errors++
	}
}

func (d *Driver) notifyProgress(sellerID int64, status string) {
	if d.progress != nil {
		d.progress(sellerID, status)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
