package sink

import (
	"context"

	"github.com/svanlent/seller-scraper/internal/models"
)

// RecordSink receives parsed seller records. Append is called once per
// stored record; Close releases whatever the sink holds open.
type RecordSink interface {
	Append(ctx context.Context, record *models.SellerRecord) error
	Close() error
}

// MultiSink fans each record out to several sinks in order. The first append
// failure aborts the fanout so the crawl driver sees exactly one error per
// record.
type MultiSink struct {
	sinks []RecordSink
}

func NewMultiSink(sinks ...RecordSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Append(ctx context.Context, record *models.SellerRecord) error {
	for _, s := range m.sinks {
		if err := s.Append(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and reports the first failure.
func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
