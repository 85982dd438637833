package api

import (
	"bytes"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bannerbuildr/internal/archive"
)

// FailedHeader lists the variations left out of a batch archive.
const FailedHeader = "X-Bannerbuildr-Failed"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func archiveFilename(name string) string {
	name = strings.TrimSuffix(name, ".zip")
	name = strings.Trim(unsafeFileChars.ReplaceAllString(name, "-"), "-.")
	if name == "" {
		name = "banner"
	}
	return name + ".zip"
}

func attachment(c echo.Context, filename string) {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
}

// downloadOne serves the complete archive of a variation or template.
func (s *Server) downloadOne(c echo.Context) error {
	b, name, err := s.deps.Store.SourceBundle(c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	data, err := s.deps.Packager.PackageBytes(b)
	if err != nil {
		return respondError(c, err)
	}
	attachment(c, archiveFilename(name))
	return c.Blob(http.StatusOK, "application/zip", data)
}

// BatchDownloadRequest selects variations for one archive. No ids means every
// variation of the session.
type BatchDownloadRequest struct {
	IDs  []string `json:"ids"`
	Name string   `json:"name"`
}

// downloadBatch packages several variations into one archive. Variations that
// fail are named in FailedHeader; the archive holds the rest.
func (s *Server) downloadBatch(c echo.Context) error {
	var req BatchDownloadRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, badRequest("invalid request body"))
	}

	var items []archive.Item
	if len(req.IDs) == 0 {
		for _, v := range s.deps.Store.Variations() {
			items = append(items, archive.Item{Name: v.Name, SourceID: v.SourceID, Bundle: v.Bundle})
		}
	} else {
		for _, id := range req.IDs {
			v, err := s.deps.Store.Variation(id)
			if err != nil {
				return respondError(c, err)
			}
			items = append(items, archive.Item{Name: v.Name, SourceID: v.SourceID, Bundle: v.Bundle})
		}
	}
	if len(items) == 0 {
		return respondError(c, badRequest("no variations to download"))
	}

	var buf bytes.Buffer
	report, err := s.deps.Packager.PackageBatch(c.Request().Context(), &buf, items)
	if err != nil {
		return respondError(c, err)
	}
	if len(report.Failures) > 0 {
		c.Response().Header().Set(FailedHeader, strings.Join(report.FailedNames(), ","))
	}
	name := req.Name
	if name == "" {
		name = "banners"
	}
	attachment(c, archiveFilename(name))
	return c.Blob(http.StatusOK, "application/zip", buf.Bytes())
}
