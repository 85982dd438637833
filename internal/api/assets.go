package api

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/blake2b"
)

// etag is the strong validator of an asset: a quoted blake2b-256 hex digest.
func etag(content []byte) string {
	sum := blake2b.Sum256(content)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func notModified(c echo.Context, tag string) bool {
	for _, candidate := range strings.Split(c.Request().Header.Get("If-None-Match"), ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == tag || candidate == "*" {
			return true
		}
	}
	return false
}

// serveAsset serves one file of a variation or template by flat name.
func (s *Server) serveAsset(c echo.Context) error {
	b, err := s.deps.Store.Bundle(c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	name := c.Param("name")
	f, ok := b.ByFlatName(name)
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("asset %q not found", name)})
	}

	tag := etag(f.Content)
	h := c.Response().Header()
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set("ETag", tag)
	if notModified(c, tag) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(http.StatusOK, f.ContentType(), f.Content)
}

// serveHandle serves committed ephemeral handles.
func (s *Server) serveHandle(c echo.Context) error {
	entry, ok := s.deps.Handles.Get(c.Param("token"))
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "handle not found"})
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=3600")
	return c.Blob(http.StatusOK, entry.ContentType, entry.Content)
}
