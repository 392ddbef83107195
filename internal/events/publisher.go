package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/svanlent/seller-scraper/internal/database"
	"github.com/svanlent/seller-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeSellerRecordParsed is published when a profile page yields a
	// seller record
	EventTypeSellerRecordParsed EventType = "SELLER_RECORD_PARSED"
)

// SellerRecordParsedPayload is the payload for SELLER_RECORD_PARSED events.
// Field names match the record's JSON shape so stream consumers and API
// clients read the same document.
type SellerRecordParsedPayload struct {
	EventID      string            `json:"event_id"`
	EventType    string            `json:"event_type"`
	Timestamp    time.Time         `json:"timestamp"`
	SellerID     int64             `json:"sellerId"`
	BusinessName string            `json:"businessName"`
	Email        string            `json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	CompanyName  string            `json:"companyName,omitempty"`
	Address      string            `json:"address,omitempty"`
	ZipCode      string            `json:"zipCode,omitempty"`
	City         string            `json:"city,omitempty"`
	KvkNumber    string            `json:"kvkNumber,omitempty"`
	VatNumber    string            `json:"vatNumber,omitempty"`
	Rating       *float64          `json:"rating,omitempty"`
	RatingOutOf  *float64          `json:"ratingOutOf,omitempty"`
	ReviewCount  *int              `json:"reviewCount,omitempty"`
	Extras       map[string]string `json:"extras,omitempty"`
	Source       string            `json:"source"`
}

// PayloadFromRecord builds a fully populated event payload for a parsed
// record, stamping event ID, type, time and source.
func PayloadFromRecord(record *models.SellerRecord) *SellerRecordParsedPayload {
	return &SellerRecordParsedPayload{
		EventID:      uuid.New().String(),
		EventType:    string(EventTypeSellerRecordParsed),
		Timestamp:    time.Now(),
		SellerID:     record.SellerID,
		BusinessName: record.BusinessName,
		Email:        record.Email,
		Phone:        record.Phone,
		CompanyName:  record.CompanyName,
		Address:      record.Address,
		ZipCode:      record.ZipCode,
		City:         record.City,
		KvkNumber:    record.KvkNumber,
		VatNumber:    record.VatNumber,
		Rating:       record.Rating,
		RatingOutOf:  record.RatingOutOf,
		ReviewCount:  record.ReviewCount,
		Extras:       record.Extras,
		Source:       "seller-scraper",
	}
}

// Publisher handles event publishing using the transactional outbox pattern
type Publisher struct {
	db     *database.DB
	outbox *database.OutboxRepository
	logger zerolog.Logger
}

// NewPublisher creates a new event publisher with database connection
func NewPublisher(db *database.DB, logger zerolog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

// InsertRecordParsedTx writes a SELLER_RECORD_PARSED event inside the
// caller's transaction, so the event commits together with the record upsert
// it describes.
func (p *Publisher) InsertRecordParsedTx(ctx context.Context, tx pgx.Tx, record *models.SellerRecord) error {
	payload := PayloadFromRecord(record)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: "seller",
		AggregateID:   strconv.FormatInt(record.SellerID, 10),
		EventType:     string(EventTypeSellerRecordParsed),
		Payload:       data,
	}

	if err := p.outbox.InsertWithTx(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", payload.EventID).
		Int64("seller_id", record.SellerID).
		Str("outbox_id", outboxEvent.ID.String()).
		Msg("event queued in outbox")

	return nil
}

// PublishSellerRecordParsed publishes a SELLER_RECORD_PARSED event in its own
// transaction. Use InsertRecordParsedTx when the event should ride along with
// other writes.
func (p *Publisher) PublishSellerRecordParsed(ctx context.Context, record *models.SellerRecord) error {
	err := p.db.Transaction(ctx, func(tx pgx.Tx) error {
		return p.InsertRecordParsedTx(ctx, tx, record)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info().
		Str("type", string(EventTypeSellerRecordParsed)).
		Int64("seller_id", record.SellerID).
		Msg("event published to outbox")

	return nil
}
