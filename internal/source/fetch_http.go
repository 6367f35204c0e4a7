package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPFetcher downloads a contact file from a URL, typically a signed
// object-storage link handed over by the uploader.
type HTTPFetcher struct {
	client *resty.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: resty.New().SetTimeout(2 * time.Minute),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	resp, err := f.client.R().SetContext(ctx).Get(locator)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download failed with %s", resp.Status())
	}
	return io.NopCloser(bytes.NewReader(resp.Body())), nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
