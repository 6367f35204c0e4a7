package source_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	appErrors "github.com/callforge/dialer-backend/internal/errors"
	"github.com/callforge/dialer-backend/internal/source"
)

// stringFetcher serves a fixed body for every locator.
type stringFetcher struct {
	body string
	err  error
}

func (f stringFetcher) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func TestCSVReaderParsesContacts(t *testing.T) {
	body := "phone_number,first_name,city\n+100,Ada,London\n+101,Grace,New York\n"
	r := source.NewCSVReader(stringFetcher{body: body}, "csv")

	contacts, err := r.ReadRows(context.Background(), "leads.csv")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2", len(contacts))
	}

	sum := md5.Sum([]byte("leads.csv"))
	prefix := hex.EncodeToString(sum[:])[:8]
	wantKey := fmt.Sprintf("csv_%s_row_1", prefix)
	if contacts[0].Key != wantKey {
		t.Errorf("got key %q, want %q", contacts[0].Key, wantKey)
	}
	if contacts[0].Payload["phone_number"] != "+100" || contacts[0].Payload["city"] != "London" {
		t.Errorf("unexpected payload %v", contacts[0].Payload)
	}
}

// The same locator must produce the same keys on every sync, so re-syncing
// never duplicates rows.
func TestCSVReaderKeysStableAcrossReads(t *testing.T) {
	body := "phone_number\n+100\n+101\n"
	r := source.NewCSVReader(stringFetcher{body: body}, "csv")

	first, err := r.ReadRows(context.Background(), "same.csv")
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := r.ReadRows(context.Background(), "same.csv")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	for i := range first {
		if first[i].Key != second[i].Key {
			t.Errorf("row %d: keys differ across reads: %q vs %q", i, first[i].Key, second[i].Key)
		}
	}

	other, err := r.ReadRows(context.Background(), "other.csv")
	if err != nil {
		t.Fatalf("other read: %v", err)
	}
	if other[0].Key == first[0].Key {
		t.Error("different locators must not share keys")
	}
}

func TestCSVReaderSkipsRowsWithoutPhone(t *testing.T) {
	body := "phone_number,name\n+100,Ada\n,NoPhone\n+102,Grace\n"
	r := source.NewCSVReader(stringFetcher{body: body}, "csv")

	contacts, err := r.ReadRows(context.Background(), "leads.csv")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2", len(contacts))
	}
	// Skipped rows still consume their index so keys stay positional.
	if !strings.HasSuffix(contacts[1].Key, "_row_3") {
		t.Errorf("got key %q, want row index 3", contacts[1].Key)
	}
}

func TestCSVReaderPadsShortRecords(t *testing.T) {
	body := "phone_number,name,city\n+100,Ada\n"
	r := source.NewCSVReader(stringFetcher{body: body}, "csv")

	contacts, err := r.ReadRows(context.Background(), "leads.csv")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(contacts) != 1 {
		t.Fatalf("got %d contacts, want 1", len(contacts))
	}
	if city, ok := contacts[0].Payload["city"]; !ok || city != "" {
		t.Errorf("missing column must be present and empty, got %v", contacts[0].Payload)
	}
}

func TestCSVReaderRejectsMissingPhoneColumn(t *testing.T) {
	body := "name,city\nAda,London\n"
	r := source.NewCSVReader(stringFetcher{body: body}, "csv")

	_, err := r.ReadRows(context.Background(), "leads.csv")
	var srcErr *appErrors.ErrSourceRead
	if !errors.As(err, &srcErr) {
		t.Fatalf("got %v, want source read error", err)
	}
}

func TestCSVReaderWrapsFetchError(t *testing.T) {
	fetchErr := errors.New("bucket unreachable")
	r := source.NewCSVReader(stringFetcher{err: fetchErr}, "csv_s3")

	_, err := r.ReadRows(context.Background(), "s3://leads.csv")
	var srcErr *appErrors.ErrSourceRead
	if !errors.As(err, &srcErr) {
		t.Fatalf("got %v, want source read error", err)
	}
	if !errors.Is(err, fetchErr) {
		t.Error("source read error must wrap the fetch error")
	}
}
