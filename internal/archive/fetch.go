package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bannerbuildr/internal/retry"
)

// maxFetchedArchive bounds the size of one fetched archive.
const maxFetchedArchive = 256 << 20

// HTTPFetcher downloads served archives from the full-archive route.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
	retry   retry.RetryConfig
}

// NewHTTPFetcher creates a fetcher for archives at baseURL + "/" + sourceID,
// for example "http://localhost:8888/api/v1/download".
func NewHTTPFetcher(baseURL string, client *http.Client, cfg retry.RetryConfig) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPFetcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		retry:   cfg,
	}
}

// FetchArchive implements ArchiveFetcher.
func (f *HTTPFetcher) FetchArchive(ctx context.Context, sourceID string) ([]byte, error) {
	target := f.baseURL + "/" + url.PathEscape(sourceID)

	var data []byte
	result := retry.RetryWithBackoff(ctx, f.retry, func() error {
		b, err := f.fetchOnce(ctx, target)
		if err != nil {
			return err
		}
		data = b
		return nil
	}, nil)
	if !result.Success {
		return nil, fmt.Errorf("failed to fetch archive %s: %w", sourceID, result.LastError)
	}
	return data, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/zip")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("archive download returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchedArchive+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	if len(data) > maxFetchedArchive {
		return nil, fmt.Errorf("archive exceeds %d bytes", maxFetchedArchive)
	}
	return data, nil
}
