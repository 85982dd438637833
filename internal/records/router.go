package records

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Router dispatches a source id to the matching concrete source: workbook
// paths to Workbooks, csv paths and directories to CSVFiles, anything that
// names a spreadsheet to Sheets.
type Router struct {
	Sheets    Source
	Workbooks Source
	CSVFiles  Source
}

// Fetch implements Source.
func (r *Router) Fetch(ctx context.Context, sourceID, subset string) (*Table, error) {
	src := r.route(sourceID)
	if src == nil {
		return nil, fmt.Errorf("no data source configured for %q", sourceID)
	}
	return src.Fetch(ctx, sourceID, subset)
}

func (r *Router) route(sourceID string) Source {
	sourceID = strings.TrimSpace(sourceID)
	switch ext := strings.ToLower(filepath.Ext(sourceID)); {
	case strings.HasPrefix(sourceID, "http://") || strings.HasPrefix(sourceID, "https://"):
		return r.Sheets
	case ext == ".xlsx" || ext == ".xlsm":
		return r.Workbooks
	case ext == ".csv":
		return r.CSVFiles
	case IsSheetReference(sourceID):
		return r.Sheets
	default:
		return r.CSVFiles
	}
}

// Cache memoizes fetched tables per (source, subset) and collapses concurrent
// fetches of the same subset.
type Cache struct {
	src    Source
	group  singleflight.Group
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewCache wraps src.
func NewCache(src Source) *Cache {
	return &Cache{src: src, tables: make(map[string]*Table)}
}

func cacheKey(sourceID, subset string) string {
	return strings.TrimSpace(sourceID) + "\x00" + subset
}

// Fetch implements Source.
func (c *Cache) Fetch(ctx context.Context, sourceID, subset string) (*Table, error) {
	key := cacheKey(sourceID, subset)
	c.mu.RLock()
	t, ok := c.tables[key]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.tables[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		t, err := c.src.Fetch(ctx, sourceID, subset)
		if err != nil {
			return nil, err
		}
		c.Put(sourceID, subset, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

// Put stores a table.
func (c *Cache) Put(sourceID, subset string, t *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[cacheKey(sourceID, subset)] = t
}

// Invalidate drops every cached subset of sourceID.
func (c *Cache) Invalidate(sourceID string) {
	prefix := strings.TrimSpace(sourceID) + "\x00"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.tables {
		if strings.HasPrefix(k, prefix) {
			delete(c.tables, k)
		}
	}
}

// Refresh drops the cached subsets of sourceID and loads them again.
func (c *Cache) Refresh(ctx context.Context, sourceID string, subsets []string, parallel int) FetchResult {
	c.Invalidate(sourceID)
	return FetchAll(ctx, c, sourceID, subsets, parallel)
}

// FetchResult holds the subsets that loaded and the ones that failed.
type FetchResult struct {
	Tables   []*Table          `json:"tables"`
	Failures map[string]string `json:"failures,omitempty"`
}

// FetchAll loads several subsets of one source concurrently. A subset that
// fails is logged and reported; the others still load. Tables keep the order
// of subsets.
func FetchAll(ctx context.Context, src Source, sourceID string, subsets []string, parallel int) FetchResult {
	if parallel <= 0 {
		parallel = 4
	}
	tables := make([]*Table, len(subsets))
	errs := make([]error, len(subsets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, subset := range subsets {
		g.Go(func() error {
			tables[i], errs[i] = src.Fetch(gctx, sourceID, subset)
			return nil
		})
	}
	_ = g.Wait()

	result := FetchResult{}
	for i, subset := range subsets {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Str("source", sourceID).Str("subset", subset).Msg("Could not fetch subset")
			if result.Failures == nil {
				result.Failures = make(map[string]string)
			}
			result.Failures[subset] = errs[i].Error()
			continue
		}
		result.Tables = append(result.Tables, tables[i])
	}
	return result
}
