package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/svanlent/seller-scraper/internal/database"
	"github.com/svanlent/seller-scraper/internal/events"
	"github.com/svanlent/seller-scraper/internal/metrics"
	"github.com/svanlent/seller-scraper/internal/models"
)

// DatabaseSink upserts seller records into Postgres. With a publisher
// attached, the record and its outbox event commit in one transaction, so
// every stored record has exactly one stream event and vice versa.
type DatabaseSink struct {
	db        *database.DB
	publisher *events.Publisher
	metrics   *metrics.Metrics
}

// NewDatabaseSink creates the sink. publisher may be nil when events are not
// configured.
func NewDatabaseSink(db *database.DB, publisher *events.Publisher, m *metrics.Metrics) *DatabaseSink {
	return &DatabaseSink{
		db:        db,
		publisher: publisher,
		metrics:   m,
	}
}

func (ds *DatabaseSink) Append(ctx context.Context, record *models.SellerRecord) error {
	if ds.publisher == nil {
		if err := ds.db.UpsertSellerRecord(ctx, record); err != nil {
			return err
		}
		ds.metrics.IncStored("database")
		return nil
	}

	err := ds.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := ds.db.UpsertSellerRecordTx(ctx, tx, record); err != nil {
			return err
		}
		return ds.publisher.InsertRecordParsedTx(ctx, tx, record)
	})
	if err != nil {
		return fmt.Errorf("store record with event: %w", err)
	}

	ds.metrics.IncStored("database")
	return nil
}

// Close is a no-op; the pool lifecycle belongs to the caller.
func (ds *DatabaseSink) Close() error {
	return nil
}
