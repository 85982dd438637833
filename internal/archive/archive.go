// Package archive packages bundles into zip archives for download, one
// bundle flat or many variations in per-variation folders.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"

	"github.com/bannerbuildr/internal/batch"
	"github.com/bannerbuildr/internal/bundle"
)

// ErrArchiveBuild marks a variation whose files could not be packaged.
var ErrArchiveBuild = errors.New("archive build failed")

// Failure reports one variation left out of a batch archive.
type Failure struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%v for %q: %v", ErrArchiveBuild, f.Name, f.Err)
}

func (f Failure) Unwrap() []error {
	return []error{ErrArchiveBuild, f.Err}
}

// ArchiveFetcher returns the complete archive of a server-retained bundle.
type ArchiveFetcher interface {
	FetchArchive(ctx context.Context, sourceID string) ([]byte, error)
}

// Item is one variation to package in a batch.
type Item struct {
	Name     string
	SourceID string
	Bundle   *bundle.Bundle
}

// BatchReport describes what a batch archive contains.
type BatchReport struct {
	Folders  []string  `json:"folders"`
	Failures []Failure `json:"failures"`
}

// FailedNames returns the names of the failed variations.
func (r *BatchReport) FailedNames() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Name
	}
	return out
}

// Packager writes zip archives. Every archive uses flattened basenames with
// "-N" suffixes on collisions.
type Packager struct {
	fetcher ArchiveFetcher
	cfg     batch.Config
	now     func() time.Time
}

// NewPackager creates a packager. fetcher may be nil, in which case batch
// items are always packaged from their in-memory bundle.
func NewPackager(fetcher ArchiveFetcher, cfg batch.Config) *Packager {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = batch.DefaultConfig().MaxWorkers
	}
	return &Packager{fetcher: fetcher, cfg: cfg, now: time.Now}
}

// Package writes b to w, every file under its flat name.
func (p *Packager) Package(w io.Writer, b *bundle.Bundle) error {
	zw := zip.NewWriter(w)
	if err := p.writeFiles(zw, "", flatten(b)); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// PackageBytes is Package into memory.
func (p *Packager) PackageBytes(b *bundle.Bundle) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Package(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PackageBatch writes one folder per item to w. Items are resolved
// concurrently; an item that cannot be resolved is logged, reported in the
// returned BatchReport and left out. The error is non-nil only when the
// archive itself cannot be written.
func (p *Packager) PackageBatch(ctx context.Context, w io.Writer, items []Item) (*BatchReport, error) {
	folders := FolderNames(items)

	queue := batch.ConfigureTaskQueue[[]bundle.File](p.cfg)
	for i, item := range items {
		queue.AddTask(batch.TaskFunc[[]bundle.File]{
			TaskID:  folders[i],
			Retries: -1,
			Fn: func(ctx context.Context) ([]bundle.File, error) {
				return p.resolve(ctx, item)
			},
		})
	}
	results := queue.ProcessAll(ctx)

	report := &BatchReport{}
	zw := zip.NewWriter(w)
	for i, item := range items {
		res := results[folders[i]]
		if res == nil || res.Error != nil {
			var err error = errors.New("not processed")
			if res != nil {
				err = res.Error
			}
			log.Warn().Err(err).Str("variation", item.Name).Str("source_id", item.SourceID).Msg("Skipping variation in batch archive")
			report.Failures = append(report.Failures, Failure{Name: item.Name, Err: err})
			continue
		}
		if err := p.writeFiles(zw, folders[i]+"/", res.Result); err != nil {
			zw.Close()
			return report, err
		}
		report.Folders = append(report.Folders, folders[i])
	}
	if err := zw.Close(); err != nil {
		return report, fmt.Errorf("failed to finalize archive: %w", err)
	}

	log.Info().Int("folders", len(report.Folders)).Int("failures", len(report.Failures)).Msg("Batch archive built")
	return report, nil
}

// resolve returns the flattened files of one item, fetched from the served
// archive when the item has a source id and a fetcher is configured.
func (p *Packager) resolve(ctx context.Context, item Item) ([]bundle.File, error) {
	if item.SourceID != "" && p.fetcher != nil {
		data, err := p.fetcher.FetchArchive(ctx, item.SourceID)
		if err != nil {
			return nil, err
		}
		files, err := bundle.ReadZip(data)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, errors.New("fetched archive is empty")
		}
		return flatten(bundle.New(files)), nil
	}
	if item.Bundle == nil {
		return nil, errors.New("variation has no files")
	}
	return flatten(item.Bundle), nil
}

func flatten(b *bundle.Bundle) []bundle.File {
	names := b.FlatNames()
	files := b.Files()
	out := make([]bundle.File, len(files))
	for i, f := range files {
		out[i] = bundle.File{Path: names[i].Name, Content: f.Content}
	}
	return out
}

func (p *Packager) writeFiles(zw *zip.Writer, prefix string, files []bundle.File) error {
	modified := p.now()
	for _, f := range files {
		hdr := &zip.FileHeader{
			Name:     prefix + f.Path,
			Method:   zip.Deflate,
			Modified: modified,
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", hdr.Name, err)
		}
		if _, err := fw.Write(f.Content); err != nil {
			return fmt.Errorf("failed to write %s: %w", hdr.Name, err)
		}
	}
	return nil
}

var unsafeFolderChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FolderNames returns the folder of every item: its sanitized name, suffixed
// "-2", "-3", ... when an earlier item already took it.
func FolderNames(items []Item) []string {
	taken := make(map[string]bool, len(items))
	out := make([]string, len(items))
	for i, item := range items {
		name := strings.Trim(unsafeFolderChars.ReplaceAllString(item.Name, "-"), "-.")
		if name == "" {
			name = "variation"
		}
		out[i] = uniqueFolder(name, taken)
	}
	return out
}

func uniqueFolder(name string, taken map[string]bool) string {
	candidate := name
	for n := 2; taken[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s-%d", name, n)
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}
