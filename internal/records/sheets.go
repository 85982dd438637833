package records

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/bannerbuildr/internal/retry"
)

// DefaultExportURL is the public CSV export endpoint of a Google Sheets tab.
// {id} and {sheet} are substituted per request.
const DefaultExportURL = "https://docs.google.com/spreadsheets/d/{id}/gviz/tq?tqx=out:csv&sheet={sheet}"

const maxExportBytes = 32 << 20

// ErrSheetNotPublic is returned when the export endpoint answers with an HTML
// page instead of CSV, which is what Google does for sheets that are not
// shared publicly.
var ErrSheetNotPublic = errors.New("sheet is not publicly readable")

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)
var bareIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{20,}$`)

// SpreadsheetID extracts the spreadsheet id from a sheet URL or accepts a bare
// id.
func SpreadsheetID(sourceID string) (string, error) {
	sourceID = strings.TrimSpace(sourceID)
	if m := spreadsheetIDPattern.FindStringSubmatch(sourceID); m != nil {
		return m[1], nil
	}
	if bareIDPattern.MatchString(sourceID) {
		return sourceID, nil
	}
	return "", fmt.Errorf("invalid Google Sheets URL or id: %q", sourceID)
}

// IsSheetReference reports whether sourceID names a Google spreadsheet.
func IsSheetReference(sourceID string) bool {
	_, err := SpreadsheetID(sourceID)
	return err == nil
}

// SheetSourceConfig configures a SheetSource.
type SheetSourceConfig struct {
	ExportURL         string
	RequestsPerSecond float64
	Timeout           time.Duration
	Retry             retry.RetryConfig
}

// SheetSource fetches tabs of publicly shared Google spreadsheets through the
// CSV export endpoint.
type SheetSource struct {
	client    *http.Client
	exportURL string
	limiter   *rate.Limiter
	retry     retry.RetryConfig
}

// NewSheetSource creates a sheet source. A nil client gets one with the
// configured timeout.
func NewSheetSource(cfg SheetSourceConfig, client *http.Client) *SheetSource {
	if cfg.ExportURL == "" {
		cfg.ExportURL = DefaultExportURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.BaseDelay == 0 {
		cfg.Retry = retry.FetchRetryConfig()
	}
	return &SheetSource{
		client:    client,
		exportURL: cfg.ExportURL,
		limiter:   rate.NewLimiter(limit, 1),
		retry:     cfg.Retry,
	}
}

// ExportURL builds the CSV export URL for one tab.
func (s *SheetSource) ExportURL(spreadsheetID, sheet string) string {
	return strings.NewReplacer(
		"{id}", url.PathEscape(spreadsheetID),
		"{sheet}", url.QueryEscape(sheet),
	).Replace(s.exportURL)
}

// Fetch downloads and parses one tab.
func (s *SheetSource) Fetch(ctx context.Context, sourceID, subset string) (*Table, error) {
	id, err := SpreadsheetID(sourceID)
	if err != nil {
		return nil, err
	}
	exportURL := s.ExportURL(id, subset)

	var table *Table
	result := retry.RetryWithBackoff(ctx, s.retry, func() error {
		t, err := s.fetchOnce(ctx, exportURL, subset)
		if err != nil {
			return err
		}
		table = t
		return nil
	}, nil)
	if !result.Success {
		return nil, fmt.Errorf("failed to fetch sheet %s tab %q: %w", id, subset, result.LastError)
	}

	log.Debug().
		Str("spreadsheet", id).
		Str("tab", subset).
		Int("rows", len(table.Rows)).
		Int("attempts", result.Attempts).
		Msg("Fetched sheet tab")
	return table, nil
}

func (s *SheetSource) fetchOnce(ctx context.Context, exportURL, subset string) (*Table, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sheet export returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "text/html" {
		return nil, ErrSheetNotPublic
	}
	return ParseCSV(subset, io.LimitReader(resp.Body, maxExportBytes))
}
