package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bannerbuildr/internal/binder"
	"github.com/bannerbuildr/internal/preview"
)

// PreviewStatusHeader reports the preview state of the served document.
const PreviewStatusHeader = "X-Bannerbuildr-Preview"

// previewDocument renders the variation unless its current document already
// matches its bundle.
func (s *Server) previewDocument(c echo.Context) (*preview.Document, *binder.Variation, error) {
	v, err := s.deps.Store.Variation(c.Param("id"))
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.deps.Renderer.Ensure(c.Request().Context(), v.ID, v.ID, v.Bundle)
	if err != nil {
		return nil, nil, err
	}
	return doc, v, nil
}

func (s *Server) previewVariation(c echo.Context) error {
	doc, _, err := s.previewDocument(c)
	if err != nil {
		return respondError(c, err)
	}
	setPreviewHeaders(c, doc)
	return c.HTML(http.StatusOK, doc.Markup)
}

func (s *Server) frameVariation(c echo.Context) error {
	doc, v, err := s.previewDocument(c)
	if err != nil {
		return respondError(c, err)
	}
	setPreviewHeaders(c, doc)
	return c.HTML(http.StatusOK, preview.Frame(doc.Markup, preview.FrameOptions{
		Title:      v.Name,
		Dimensions: v.Dimensions,
	}))
}

func setPreviewHeaders(c echo.Context, doc *preview.Document) {
	state := preview.StateReady
	if doc.Placeholder() {
		state = preview.StateError
	}
	h := c.Response().Header()
	h.Set(PreviewStatusHeader, state.String())
	h.Set(echo.HeaderCacheControl, "no-store")
}
