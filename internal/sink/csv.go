package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/svanlent/seller-scraper/internal/metrics"
	"github.com/svanlent/seller-scraper/internal/models"
)

// csvHeader is the fixed column layout. Downstream imports depend on this
// exact order.
var csvHeader = []string{
	"sellerId", "businessName", "email", "phone",
	"rating", "ratingOutOf", "reviewCount",
	"companyName", "address", "zipCode", "city",
	"kvkNumber", "vatNumber", "extras",
}

// headerRowSize is the byte length of the header row as the csv writer emits
// it. Header fields contain no quoting-sensitive characters, so this is exact.
func headerRowSize() int64 {
	size := len(csvHeader) // one separator or newline per field
	for _, column := range csvHeader {
		size += len(column)
	}
	return int64(size)
}

// CSVSink appends one row per seller record to a CSV file, header first.
// Rows flush on every append so a crash loses at most the record in flight.
type CSVSink struct {
	file       *os.File
	writer     *csv.Writer
	metrics    *metrics.Metrics
	headerSize int64
	mu         sync.Mutex
}

// NewCSVSink opens the output file (and its directory) for appending,
// writing the header row only when the file is new or empty. Records from an
// interrupted run survive the resumed one; the ledger guarantees they are
// never re-emitted.
func NewCSVSink(filename string, m *metrics.Metrics) (*CSVSink, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return &CSVSink{
		file:       f,
		writer:     writer,
		metrics:    m,
		headerSize: headerRowSize(),
	}, nil
}

func (cs *CSVSink) Append(_ context.Context, record *models.SellerRecord) error {
	row, err := recordRow(record)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := cs.writer.Write(row); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	cs.writer.Flush()
	if err := cs.writer.Error(); err != nil {
		return fmt.Errorf("flush csv record: %w", err)
	}

	cs.metrics.IncStored("csv")
	return nil
}

// recordRow renders a record in the csvHeader column order. Absent optional
// numbers become empty cells; extras serialize to JSON, or an empty cell when
// there are none.
func recordRow(record *models.SellerRecord) ([]string, error) {
	extras := ""
	if len(record.Extras) > 0 {
		data, err := json.Marshal(record.Extras)
		if err != nil {
			return nil, fmt.Errorf("marshal extras: %w", err)
		}
		extras = string(data)
	}

	return []string{
		strconv.FormatInt(record.SellerID, 10),
		record.BusinessName,
		record.Email,
		record.Phone,
		formatOptFloat(record.Rating),
		formatOptFloat(record.RatingOutOf),
		formatOptInt(record.ReviewCount),
		record.CompanyName,
		record.Address,
		record.ZipCode,
		record.City,
		record.KvkNumber,
		record.VatNumber,
		extras,
	}, nil
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatOptInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// Close flushes and closes the file handle.
func (cs *CSVSink) Close() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.writer.Flush()
	if err := cs.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cs.file.Close()
}

// Validate ensures the file has content besides the header.
func (cs *CSVSink) Validate() error {
	info, err := cs.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= cs.headerSize {
		return fmt.Errorf("csv file has no records")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
