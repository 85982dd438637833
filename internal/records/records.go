// Package records looks data records up by identifier and loads them from
// tabular sources (Google Sheets CSV exports, xlsx workbooks, csv files).
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bannerbuildr/pkg/models"
)

// ErrRecordNotFound is returned when no record matches a requested identifier.
var ErrRecordNotFound = errors.New("record not found")

// NotFoundError names the role, subset and identifier that could not be
// resolved. Cause is set when the subset itself could not be loaded.
type NotFoundError struct {
	Role   string
	Subset string
	ID     string
	Cause  error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("could not find %s data with ID %q", roleLabel(e.Role), e.ID)
	if e.Subset != "" {
		msg += fmt.Sprintf(" in %q", e.Subset)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *NotFoundError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRecordNotFound}
	}
	return []error{ErrRecordNotFound, e.Cause}
}

func roleLabel(role string) string {
	if role == "" {
		return "record"
	}
	return role
}

// Table is one loaded subset (sheet tab, workbook sheet or csv file).
type Table struct {
	Name    string              `json:"name"`
	Columns []string            `json:"columns"`
	Rows    []models.DataRecord `json:"rows"`
}

// Source loads one subset of a data source.
type Source interface {
	Fetch(ctx context.Context, sourceID, subset string) (*Table, error)
}

// IsIdentifierKey reports whether a column name is the identifier column.
func IsIdentifierKey(key string) bool {
	return strings.EqualFold(strings.TrimSpace(key), "id")
}

// FindByID returns the first record whose identifier column, stringified and
// trimmed, equals the trimmed id.
func FindByID(rows []models.DataRecord, id string) (models.DataRecord, bool) {
	want := strings.TrimSpace(id)
	if want == "" {
		return nil, false
	}
	for _, row := range rows {
		for key, value := range row {
			if !IsIdentifierKey(key) || value == nil {
				continue
			}
			if strings.TrimSpace(models.ScalarString(value)) == want {
				return row, true
			}
		}
	}
	return nil, false
}

// RoleRequest asks for the record with identifier ID in one subset of a
// source, bound under Role.
type RoleRequest struct {
	Role     string `json:"role"`
	SourceID string `json:"source_id"`
	Subset   string `json:"subset"`
	ID       string `json:"id"`
}

// Lookup resolves every request in order. Any failure, including a subset that
// could not be loaded, is a *NotFoundError and no partial result is returned.
func Lookup(ctx context.Context, src Source, reqs []RoleRequest) ([]models.RoleRecord, error) {
	out := make([]models.RoleRecord, 0, len(reqs))
	for _, req := range reqs {
		notFound := &NotFoundError{Role: req.Role, Subset: req.Subset, ID: strings.TrimSpace(req.ID)}

		table, err := src.Fetch(ctx, req.SourceID, req.Subset)
		if err != nil {
			notFound.Cause = err
			return nil, notFound
		}
		rec, ok := FindByID(table.Rows, req.ID)
		if !ok {
			return nil, notFound
		}
		out = append(out, models.RoleRecord{Role: req.Role, ID: notFound.ID, Record: rec})
	}
	return out, nil
}
