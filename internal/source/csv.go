package source

import (
	"context"
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	appErrors "github.com/callforge/dialer-backend/internal/errors"
)

// phoneColumn must be present in the header; rows without a value in it are
// skipped rather than failing the whole sync.
const phoneColumn = "phone_number"

// Fetcher retrieves the raw bytes behind a locator: a local path, an HTTP
// URL or an object-storage key depending on the source type.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (io.ReadCloser, error)
}

// CSVReader parses tabular contact files. The first record is the header;
// every following record becomes one contact payload keyed by
// csv_{md5(locator)[:8]}_row_{n}, which keeps re-syncs idempotent.
type CSVReader struct {
	Fetcher Fetcher
	Type    string
}

func NewCSVReader(f Fetcher, sourceType string) *CSVReader {
	return &CSVReader{Fetcher: f, Type: sourceType}
}

func (r *CSVReader) ReadRows(ctx context.Context, locator string) ([]Contact, error) {
	body, err := r.Fetcher.Fetch(ctx, locator)
	if err != nil {
		return nil, appErrors.NewSourceRead(r.Type, locator, err)
	}
	defer body.Close()

	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.NewSourceRead(r.Type, locator, fmt.Errorf("reading header: %w", err))
	}
	if !contains(header, phoneColumn) {
		return nil, appErrors.NewSourceRead(r.Type, locator, fmt.Errorf("missing required column %q", phoneColumn))
	}

	sum := md5.Sum([]byte(locator))
	prefix := hex.EncodeToString(sum[:])[:8]

	contacts := []Contact{}
	for idx := 1; ; idx++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErrors.NewSourceRead(r.Type, locator, fmt.Errorf("row %d: %w", idx, err))
		}

		payload := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				payload[name] = record[i]
			} else {
				payload[name] = ""
			}
		}
		if payload[phoneColumn] == "" {
			log.Debug().Int("row", idx).Str("locator", locator).Msg("skipping row without phone number")
			continue
		}

		contacts = append(contacts, Contact{
			Key:     fmt.Sprintf("csv_%s_row_%d", prefix, idx),
			Payload: payload,
		})
	}
	return contacts, nil
}

func contains(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}

// FileFetcher serves locators from the local filesystem.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	return os.Open(locator)
}

var _ Reader = (*CSVReader)(nil)
