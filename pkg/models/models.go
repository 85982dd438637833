package models

import (
	"fmt"
	"strconv"
	"strings"
)

// DataRecord is one row of a tabular data source keyed by column name.
// Values are scalars (string, float64, int, int64, bool) or nil when the cell
// is absent.
type DataRecord map[string]any

// Dimensions of a rendered creative in CSS pixels
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether neither side has been set.
func (d Dimensions) IsZero() bool {
	return d.Width == 0 && d.Height == 0
}

// WithDefaults fills missing sides from def.
func (d Dimensions) WithDefaults(def Dimensions) Dimensions {
	if d.Width <= 0 {
		d.Width = def.Width
	}
	if d.Height <= 0 {
		d.Height = def.Height
	}
	return d
}

// RoleRecord pairs a resolved record with the logical role it plays in a
// binding (for example "parent", "creative" or "oms").
type RoleRecord struct {
	Role   string     `json:"role"`
	ID     string     `json:"id"`
	Record DataRecord `json:"record"`
}

// Tier is the campaign tier a variation is generated for.
type Tier string

const (
	TierOne Tier = "T1"
	TierTwo Tier = "T2"
)

// ScalarString renders a record value the way it reads in a spreadsheet cell.
// nil renders as the empty string.
func ScalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return val.String()
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
