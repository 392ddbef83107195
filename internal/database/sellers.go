package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/svanlent/seller-scraper/internal/models"
)

const upsertSellerQuery = `
	INSERT INTO seller_records (
		seller_id, business_name, email, phone,
		company_name, address, zip_code, city,
		kvk_number, vat_number,
		rating, rating_out_of, review_count, extras
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
	)
	ON CONFLICT (seller_id) DO UPDATE SET
		business_name = EXCLUDED.business_name,
		email = EXCLUDED.email,
		phone = EXCLUDED.phone,
		company_name = EXCLUDED.company_name,
		address = EXCLUDED.address,
		zip_code = EXCLUDED.zip_code,
		city = EXCLUDED.city,
		kvk_number = EXCLUDED.kvk_number,
		vat_number = EXCLUDED.vat_number,
		rating = EXCLUDED.rating,
		rating_out_of = EXCLUDED.rating_out_of,
		review_count = EXCLUDED.review_count,
		extras = EXCLUDED.extras,
		updated_at = NOW()`

func sellerUpsertArgs(record *models.SellerRecord) ([]interface{}, error) {
	extras := record.Extras
	if extras == nil {
		extras = map[string]string{}
	}
	extrasJSON, err := json.Marshal(extras)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extras: %w", err)
	}

	return []interface{}{
		record.SellerID, record.BusinessName, record.Email, record.Phone,
		record.CompanyName, record.Address, record.ZipCode, record.City,
		record.KvkNumber, record.VatNumber,
		record.Rating, record.RatingOutOf, record.ReviewCount, extrasJSON,
	}, nil
}

// UpsertSellerRecord inserts a seller record or replaces the stored one.
// Re-crawls always win: the latest parse is the truth.
func (db *DB) UpsertSellerRecord(ctx context.Context, record *models.SellerRecord) error {
	args, err := sellerUpsertArgs(record)
	if err != nil {
		return err
	}

	if _, err := db.pool.Exec(ctx, upsertSellerQuery, args...); err != nil {
		return fmt.Errorf("failed to upsert seller record: %w", err)
	}

	return nil
}

// UpsertSellerRecordTx is UpsertSellerRecord inside a caller-owned transaction,
// so the record and its outbox event commit together.
func (db *DB) UpsertSellerRecordTx(ctx context.Context, tx pgx.Tx, record *models.SellerRecord) error {
	args, err := sellerUpsertArgs(record)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, upsertSellerQuery, args...); err != nil {
		return fmt.Errorf("failed to upsert seller record: %w", err)
	}

	return nil
}

// GetSellerRecord retrieves a single seller record by ID. Returns (nil, nil)
// when the seller has not been stored.
func (db *DB) GetSellerRecord(ctx context.Context, sellerID int64) (*models.SellerRecord, error) {
	query := `
		SELECT seller_id, business_name, email, phone,
			   company_name, address, zip_code, city,
			   kvk_number, vat_number,
			   rating, rating_out_of, review_count, extras
		FROM seller_records
		WHERE seller_id = $1`

	record := &models.SellerRecord{}
	var extrasJSON []byte
	err := db.pool.QueryRow(ctx, query, sellerID).Scan(
		&record.SellerID, &record.BusinessName, &record.Email, &record.Phone,
		&record.CompanyName, &record.Address, &record.ZipCode, &record.City,
		&record.KvkNumber, &record.VatNumber,
		&record.Rating, &record.RatingOutOf, &record.ReviewCount, &extrasJSON,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seller record: %w", err)
	}

	record.Extras = map[string]string{}
	if len(extrasJSON) > 0 {
		if err := json.Unmarshal(extrasJSON, &record.Extras); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extras: %w", err)
		}
	}

	return record, nil
}

// CountSellerRecords returns the number of stored seller records.
func (db *DB) CountSellerRecords(ctx context.Context) (int64, error) {
	var count int64
	err := db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM seller_records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count seller records: %w", err)
	}
	return count, nil
}
