// Package binder turns a template bundle plus data records into banner
// variations by rewriting the literals of the configuration script.
package binder

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bannerbuildr/internal/bundle"
	"github.com/bannerbuildr/internal/mapping"
	"github.com/bannerbuildr/internal/records"
	"github.com/bannerbuildr/pkg/models"
)

// ErrMappingIncomplete is attached to variations in which no mapped field
// could be applied. The variation is still usable and renders the template
// defaults.
var ErrMappingIncomplete = errors.New("mapping incomplete")

// DefaultDimensions is used when the entry document does not declare a size.
var DefaultDimensions = models.Dimensions{Width: 300, Height: 250}

// Variation is one generated banner.
type Variation struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Bundle     *bundle.Bundle      `json:"-"`
	Dimensions models.Dimensions   `json:"dimensions"`
	SourceID   string              `json:"source_id,omitempty"`
	TemplateID string              `json:"template_id,omitempty"`
	Tier       models.Tier         `json:"tier,omitempty"`
	Roles      []models.RoleRecord `json:"roles"`
	Applied    []mapping.Pair      `json:"applied"`
	Warnings   []string            `json:"warnings,omitempty"`
	Incomplete bool                `json:"incomplete"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Warning returns ErrMappingIncomplete (wrapped with detail) when the
// variation fell back to template defaults, nil otherwise.
func (v *Variation) Warning() error {
	if !v.Incomplete {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMappingIncomplete, strings.Join(v.Warnings, "; "))
}

// Options configures a Binder.
type Options struct {
	// BaseFolderPath prefixes string values that are relative image file
	// names.
	BaseFolderPath    string
	DefaultDimensions models.Dimensions
	Now               func() time.Time
}

// Binder produces variations from a source bundle.
type Binder struct {
	opts Options
}

// New creates a Binder.
func New(opts Options) *Binder {
	if opts.DefaultDimensions.IsZero() {
		opts.DefaultDimensions = DefaultDimensions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Binder{opts: opts}
}

// Request carries per-variation settings.
type Request struct {
	// Name overrides the generated variation name.
	Name       string
	Label      string
	Tier       models.Tier
	SourceID   string
	TemplateID string
	// BaseFolderPath overrides Options.BaseFolderPath when set.
	BaseFolderPath string
}

// MergeRecords merges role records into one. Earlier records win: the
// primary first, then auxiliaries in order. An absent (nil) value never hides
// a present one.
func MergeRecords(roles []models.RoleRecord) models.DataRecord {
	merged := make(models.DataRecord)
	for _, role := range roles {
		for k, v := range role.Record {
			if existing, ok := merged[k]; ok && existing != nil {
				continue
			}
			merged[k] = v
		}
	}
	return merged
}

// Bind applies mapping to the configuration script of src with values from
// the merged role records and returns the new variation. src is never
// modified; every file except the configuration script is shared.
func (b *Binder) Bind(src *bundle.Bundle, m mapping.FieldMapping, roles []models.RoleRecord, req Request) (*Variation, error) {
	if src == nil {
		return nil, errors.New("bind: nil bundle")
	}

	v := &Variation{
		ID:         uuid.NewString(),
		Name:       req.Name,
		SourceID:   req.SourceID,
		TemplateID: req.TemplateID,
		Tier:       req.Tier,
		Roles:      roles,
		Applied:    []mapping.Pair{},
		CreatedAt:  b.opts.Now(),
	}
	if v.Name == "" {
		v.Name = VariationName(req.Label, roles, req.Tier)
	}
	if markup, ok := src.EntryMarkup(); ok {
		v.Dimensions = ParseDimensions(markup)
	}
	v.Dimensions = v.Dimensions.WithDefaults(b.opts.DefaultDimensions)

	script, ok := src.ConfigText()
	if !ok {
		v.Bundle = src
		v.Incomplete = true
		v.Warnings = append(v.Warnings, fmt.Sprintf("configuration script %s not found", src.Options().ConfigName))
		b.logIncomplete(v)
		return v, nil
	}
	if f, _ := src.File(src.ConfigPath()); !f.IsText() {
		v.Bundle = src
		v.Incomplete = true
		v.Warnings = append(v.Warnings, fmt.Sprintf("configuration script %s is not text", f.Path))
		b.logIncomplete(v)
		return v, nil
	}

	base := b.opts.BaseFolderPath
	if req.BaseFolderPath != "" {
		base = req.BaseFolderPath
	}

	merged := MergeRecords(roles)
	for _, pair := range m.Pairs() {
		value, present := merged[pair.Field]
		if !present || value == nil {
			continue
		}
		value = withBaseFolder(value, base)

		next, n := Substitute(script, pair.Variable, value)
		if n == 0 {
			v.Warnings = append(v.Warnings, fmt.Sprintf("variable %s (field %s) has no literal assignment", pair.Variable, pair.Field))
			continue
		}
		script = next
		v.Applied = append(v.Applied, pair)
	}

	if len(v.Applied) == 0 {
		v.Bundle = src
		v.Incomplete = true
		v.Warnings = append(v.Warnings, "no mapped field could be applied; template defaults kept")
		b.logIncomplete(v)
		return v, nil
	}

	v.Bundle = src.WithFile(src.ConfigPath(), []byte(script))
	log.Debug().
		Str("variation_id", v.ID).
		Str("name", v.Name).
		Int("applied", len(v.Applied)).
		Msg("Variation bound")
	return v, nil
}

// BindRequests looks the role records up and binds them. A missing record
// fails the whole request with records.ErrRecordNotFound.
func (b *Binder) BindRequests(ctx context.Context, src *bundle.Bundle, m mapping.FieldMapping, source records.Source, reqs []records.RoleRequest, req Request) (*Variation, error) {
	roles, err := records.Lookup(ctx, source, reqs)
	if err != nil {
		return nil, err
	}
	return b.Bind(src, m, roles, req)
}

func (b *Binder) logIncomplete(v *Variation) {
	log.Warn().
		Str("variation_id", v.ID).
		Str("name", v.Name).
		Strs("warnings", v.Warnings).
		Msg("Variation uses template defaults")
}

func withBaseFolder(value any, base string) any {
	s, ok := value.(string)
	base = strings.TrimSpace(base)
	if !ok || base == "" {
		return value
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || bundle.Classify(trimmed) != bundle.ClassImage || strings.Contains(trimmed, "://") ||
		strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "data:") {
		return value
	}
	prefix := strings.TrimSuffix(base, "/") + "/"
	if strings.HasPrefix(trimmed, prefix) {
		return trimmed
	}
	return prefix + path.Clean(strings.TrimPrefix(trimmed, "./"))
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// VariationName builds "<label>_<id1>_<id2>..._<tier>" from role identifiers.
func VariationName(label string, roles []models.RoleRecord, tier models.Tier) string {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "banner"
	}
	parts := []string{label}
	for _, r := range roles {
		if id := strings.TrimSpace(r.ID); id != "" {
			parts = append(parts, id)
		}
	}
	if tier != "" {
		parts = append(parts, string(tier))
	}
	for i, p := range parts {
		parts[i] = strings.Trim(unsafeNameChars.ReplaceAllString(p, "-"), "-")
	}
	return strings.Join(parts, "_")
}

var (
	metaTagPattern  = regexp.MustCompile(`(?is)<meta\b[^>]*>`)
	metaAttrPattern = regexp.MustCompile(`(?is)\b(name|content)\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	sizePattern     = regexp.MustCompile(`(?i)(width|height)\s*=\s*(\d+)`)
)

// ParseDimensions reads <meta name="ad.size" content="width=W,height=H">.
// Missing sides are zero.
func ParseDimensions(markup string) models.Dimensions {
	var d models.Dimensions
	for _, tag := range metaTagPattern.FindAllString(markup, -1) {
		var name, content string
		for _, attr := range metaAttrPattern.FindAllStringSubmatch(tag, -1) {
			val := strings.Trim(attr[2], `"'`)
			switch strings.ToLower(attr[1]) {
			case "name":
				name = val
			case "content":
				content = val
			}
		}
		if !strings.EqualFold(strings.TrimSpace(name), "ad.size") {
			continue
		}
		for _, m := range sizePattern.FindAllStringSubmatch(content, -1) {
			n, _ := strconv.Atoi(m[2])
			if strings.EqualFold(m[1], "width") {
				d.Width = n
			} else {
				d.Height = n
			}
		}
		return d
	}
	return d
}
