package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/svanlent/seller-scraper/internal/cache"
	"github.com/svanlent/seller-scraper/internal/fetcher"
	"github.com/svanlent/seller-scraper/internal/metrics"
	"github.com/svanlent/seller-scraper/internal/models"
	"github.com/svanlent/seller-scraper/internal/parser"
	"github.com/svanlent/seller-scraper/internal/sink"
)

var (
	ErrInvalidSellerID = errors.New("seller id must be positive")
	ErrSellerNotFound  = errors.New("seller profile not found")
	ErrEmptySeller     = errors.New("seller profile has no business data")
)

// RecordStore is the durable read side of a lookup. *database.DB satisfies it.
type RecordStore interface {
	GetSellerRecord(ctx context.Context, sellerID int64) (*models.SellerRecord, error)
}

// Deps are the collaborators a Service works through. Fetcher and Parser are
// required; Cache, Store, Sink and Metrics may be nil. Writes go through a
// sink so records stored from lookups publish the same events as crawled ones.
type Deps struct {
	Fetcher fetcher.Fetcher
	Parser  *parser.SellerParser
	Cache   *cache.RecordCache
	Store   RecordStore
	Sink    sink.RecordSink
	Metrics *metrics.Metrics
}

// Service answers on-demand seller lookups: cache first, then the durable
// store, then a single live fetch. Unlike the bulk crawler it never retries;
// a failed fetch surfaces immediately as a typed error the caller can map.
type Service struct {
	fetcher fetcher.Fetcher
	parser  *parser.SellerParser
	cache   *cache.RecordCache
	store   RecordStore
	sink    sink.RecordSink
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewService(deps Deps, logger zerolog.Logger) (*Service, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}

	return &Service{
		fetcher: deps.Fetcher,
		parser:  deps.Parser,
		cache:   deps.Cache,
		store:   deps.Store,
		sink:    deps.Sink,
		metrics: deps.Metrics,
		logger:  logger.With().Str("component", "lookup_service").Logger(),
	}, nil
}

// Lookup resolves one seller record. Cached and stored records are served
// as-is; bulk re-crawls are what refresh them. A live fetch that succeeds is
// persisted through the sink and cached before returning.
func (s *Service) Lookup(ctx context.Context, sellerID int64) (*models.SellerRecord, error) {
	if sellerID <= 0 {
		return nil, ErrInvalidSellerID
	}

	if s.cache != nil {
		if record, ok := s.cache.Get(sellerID); ok {
			s.metrics.IncLookup("cache")
			return record, nil
		}
	}

	if s.store != nil {
		record, err := s.store.GetSellerRecord(ctx, sellerID)
		if err != nil {
			// A broken store should not take lookups down with it.
			s.logger.Warn().Int64("seller_id", sellerID).Err(err).Msg("store read failed, fetching live")
		} else if record != nil {
			if s.cache != nil {
				s.cache.Put(record)
			}
			s.metrics.IncLookup("store")
			return record, nil
		}
	}

	record, err := s.fetchAndParse(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	if s.sink != nil {
		if err := s.sink.Append(ctx, record); err != nil {
			// The caller still gets the record; only durability is lost.
			s.logger.Error().Int64("seller_id", sellerID).Err(err).Msg("failed to store looked-up record")
		}
	}
	if s.cache != nil {
		s.cache.Put(record)
	}

	s.metrics.IncLookup("ok")
	s.logger.Info().Int64("seller_id", sellerID).Str("business_name", record.BusinessName).Msg("seller looked up")
	return record, nil
}

func (s *Service) fetchAndParse(ctx context.Context, sellerID int64) (*models.SellerRecord, error) {
	page, err := s.fetcher.FetchProfile(ctx, sellerID)
	if err != nil {
		if fetcher.IsNotFound(err) {
			s.metrics.IncLookup("not_found")
			return nil, fmt.Errorf("seller %d: %w", sellerID, ErrSellerNotFound)
		}
		if fetcher.IsTimeout(err) {
			s.metrics.IncLookup("timeout")
		} else {
			s.metrics.IncLookup("error")
		}
		return nil, fmt.Errorf("fetch seller %d: %w", sellerID, err)
	}

	record, err := s.parser.Parse(page.Body, sellerID)
	if err != nil {
		s.metrics.IncLookup("error")
		return nil, fmt.Errorf("parse seller %d: %w", sellerID, err)
	}

	if record.IsEmpty() {
		s.metrics.IncLookup("empty")
		return nil, fmt.Errorf("seller %d: %w", sellerID, ErrEmptySeller)
	}
	return record, nil
}

// BatchItem is one per-ID outcome of a batch lookup.
type BatchItem struct {
	SellerID int64
	Record   *models.SellerRecord
	Err      error
}

// LookupBatch resolves the given IDs sequentially, preserving input order.
// Each ID fails or succeeds on its own; cancellation fails the remainder.
func (s *Service) LookupBatch(ctx context.Context, sellerIDs []int64) []BatchItem {
	items := make([]BatchItem, 0, len(sellerIDs))

	for _, sellerID := range sellerIDs {
		if err := ctx.Err(); err != nil {
			items = append(items, BatchItem{SellerID: sellerID, Err: err})
			continue
		}
		record, err := s.Lookup(ctx, sellerID)
		items = append(items, BatchItem{SellerID: sellerID, Record: record, Err: err})
	}
	return items
}
