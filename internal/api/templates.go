package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/bannerbuildr/internal/binder"
	"github.com/bannerbuildr/internal/bundle"
	"github.com/bannerbuildr/internal/mapping"
	"github.com/bannerbuildr/internal/records"
	"github.com/bannerbuildr/pkg/models"
)

// uploadTemplate ingests a multipart "file" zip and returns the template,
// including its configuration script text.
func (s *Server) uploadTemplate(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return respondError(c, badRequest("multipart field \"file\" is required"))
	}
	if fh.Size > s.deps.MaxUploadBytes {
		return respondError(c, badRequest(fmt.Sprintf("archive exceeds %d bytes", s.deps.MaxUploadBytes)))
	}
	f, err := fh.Open()
	if err != nil {
		return respondError(c, fmt.Errorf("failed to open upload: %w", err))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.deps.MaxUploadBytes+1))
	if err != nil {
		return respondError(c, fmt.Errorf("failed to read upload: %w", err))
	}
	b, err := bundle.FromZip(data, s.deps.BundleOptions...)
	if err != nil {
		return respondError(c, badRequest(err.Error()))
	}
	if b.Len() == 0 {
		return respondError(c, badRequest("archive contains no files"))
	}

	tpl := s.deps.Store.AddTemplate(fh.Filename, b)
	if !b.HasEntry() {
		log.Warn().Str("template_id", tpl.ID).Msg("Template has no entry document")
	}
	return c.JSON(http.StatusCreated, tpl)
}

func (s *Server) getTemplate(c echo.Context) error {
	tpl, err := s.deps.Store.Template(c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, tpl)
}

// MappingRequest either asks for inference over Fields or sets Mapping
// directly.
type MappingRequest struct {
	Fields  []string              `json:"fields"`
	Mapping *mapping.FieldMapping `json:"mapping,omitempty"`
}

// MappingResponse is the stored mapping of a template.
type MappingResponse struct {
	TemplateID string               `json:"template_id"`
	Mapping    mapping.FieldMapping `json:"mapping"`
	Unmapped   []string             `json:"unmapped"`
}

func (s *Server) mapTemplate(c echo.Context) error {
	tpl, err := s.deps.Store.Template(c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	var req MappingRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, badRequest("invalid request body"))
	}

	var m mapping.FieldMapping
	switch {
	case req.Mapping != nil:
		m = *req.Mapping
	case len(req.Fields) > 0:
		if s.deps.Mapper == nil {
			return respondError(c, fmt.Errorf("%w: no inference provider configured", mapping.ErrMappingUnavailable))
		}
		m, err = s.deps.Mapper.Map(c.Request().Context(), tpl.ConfigText, req.Fields)
		if err != nil {
			return respondError(c, err)
		}
	default:
		return respondError(c, badRequest("fields or mapping is required"))
	}

	if err := s.deps.Store.SetMapping(tpl.ID, m); err != nil {
		return respondError(c, err)
	}

	unmapped := []string{}
	for _, f := range mapping.UniqueFields(req.Fields) {
		if _, ok := m.Variable(f); !ok {
			unmapped = append(unmapped, f)
		}
	}
	return c.JSON(http.StatusOK, MappingResponse{TemplateID: tpl.ID, Mapping: m, Unmapped: unmapped})
}

// SheetsFetchRequest loads several subsets of one source.
type SheetsFetchRequest struct {
	SourceID string   `json:"source_id"`
	Subsets  []string `json:"subsets"`
	Parallel int      `json:"parallel"`
}

func (s *Server) fetchSheets(c echo.Context) error {
	var req SheetsFetchRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, badRequest("invalid request body"))
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return respondError(c, badRequest("source_id is required"))
	}
	if len(req.Subsets) == 0 {
		req.Subsets = []string{""}
	}

	src := s.deps.Records
	if cache, ok := src.(*records.Cache); ok {
		return c.JSON(http.StatusOK, cache.Refresh(c.Request().Context(), req.SourceID, req.Subsets, req.Parallel))
	}
	return c.JSON(http.StatusOK, records.FetchAll(c.Request().Context(), src, req.SourceID, req.Subsets, req.Parallel))
}

// VariationSpec describes one variation to generate.
type VariationSpec struct {
	Name           string                `json:"name,omitempty"`
	Label          string                `json:"label,omitempty"`
	Tier           models.Tier           `json:"tier,omitempty"`
	SourceID       string                `json:"source_id,omitempty"`
	BaseFolderPath string                `json:"base_folder_path,omitempty"`
	Records        []records.RoleRequest `json:"records"`
}

// VariationsRequest generates one variation per spec.
type VariationsRequest struct {
	Mapping    *mapping.FieldMapping `json:"mapping,omitempty"`
	Variations []VariationSpec       `json:"variations"`
}

// VariationsResponse lists the generated variations with their warnings.
type VariationsResponse struct {
	Variations []*binder.Variation `json:"variations"`
	Warnings   []string            `json:"warnings,omitempty"`
}

// createVariations binds every spec. A record that cannot be found fails the
// whole request before any variation is stored.
func (s *Server) createVariations(c echo.Context) error {
	tpl, err := s.deps.Store.Template(c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	var req VariationsRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, badRequest("invalid request body"))
	}
	if len(req.Variations) == 0 {
		return respondError(c, badRequest("variations is required"))
	}

	var m mapping.FieldMapping
	switch {
	case req.Mapping != nil:
		m = *req.Mapping
	case tpl.Mapping != nil:
		m = *tpl.Mapping
	default:
		return respondError(c, badRequest("template has no field mapping"))
	}

	resp := VariationsResponse{Variations: make([]*binder.Variation, 0, len(req.Variations))}
	for i, spec := range req.Variations {
		if len(spec.Records) == 0 {
			return respondError(c, badRequest(fmt.Sprintf("variation %d has no records", i)))
		}
		v, err := s.deps.Binder.BindRequests(c.Request().Context(), tpl.Bundle, m, s.deps.Records, spec.Records, binder.Request{
			Name:           spec.Name,
			Label:          spec.Label,
			Tier:           spec.Tier,
			SourceID:       spec.SourceID,
			TemplateID:     tpl.ID,
			BaseFolderPath: spec.BaseFolderPath,
		})
		if err != nil {
			return respondError(c, err)
		}
		if w := v.Warning(); w != nil {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: %v", v.Name, w))
		}
		resp.Variations = append(resp.Variations, v)
	}

	for _, v := range resp.Variations {
		s.deps.Store.AddVariation(v)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) listVariations(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"variations": s.deps.Store.Variations(),
	})
}

func (s *Server) clearVariations(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{
		"removed": s.deps.Store.ClearVariations(),
	})
}
