// Package mapping infers which data fields feed which configuration-script
// variables.
package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrMappingUnavailable is returned when the inference service fails or
// times out. No mapping is produced in that case.
var ErrMappingUnavailable = errors.New("field mapping unavailable")

// NameInferenceService proposes field -> variable pairs for a configuration
// script. It may omit fields it cannot map.
type NameInferenceService interface {
	Infer(ctx context.Context, scriptText string, fieldNames []string) (map[string]string, error)
}

// InferenceFunc adapts a function to NameInferenceService.
type InferenceFunc func(ctx context.Context, scriptText string, fieldNames []string) (map[string]string, error)

// Infer implements NameInferenceService.
func (f InferenceFunc) Infer(ctx context.Context, scriptText string, fieldNames []string) (map[string]string, error) {
	return f(ctx, scriptText, fieldNames)
}

// Pair is one mapped field.
type Pair struct {
	Field    string `json:"field"`
	Variable string `json:"variable"`
}

// FieldMapping is an ordered partial function from field name to variable
// name. Each field maps to at most one variable; several fields may map to
// the same variable.
type FieldMapping struct {
	pairs []Pair
	index map[string]int
}

// NewFieldMapping builds a mapping from pairs. Blank entries are dropped and
// a repeated field keeps its first position with the later variable.
func NewFieldMapping(pairs ...Pair) FieldMapping {
	m := FieldMapping{index: make(map[string]int, len(pairs))}
	for _, p := range pairs {
		m.Set(p.Field, p.Variable)
	}
	return m
}

// Set maps field to variable.
func (m *FieldMapping) Set(field, variable string) {
	field = strings.TrimSpace(field)
	variable = strings.TrimSpace(variable)
	if field == "" || variable == "" {
		return
	}
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[field]; ok {
		m.pairs[i].Variable = variable
		return
	}
	m.index[field] = len(m.pairs)
	m.pairs = append(m.pairs, Pair{Field: field, Variable: variable})
}

// Variable returns the variable a field maps to.
func (m FieldMapping) Variable(field string) (string, bool) {
	i, ok := m.index[field]
	if !ok {
		return "", false
	}
	return m.pairs[i].Variable, true
}

// Pairs returns the mapped fields in order.
func (m FieldMapping) Pairs() []Pair {
	out := make([]Pair, len(m.pairs))
	copy(out, m.pairs)
	return out
}

// Len returns the number of mapped fields.
func (m FieldMapping) Len() int {
	return len(m.pairs)
}

// Map returns the mapping as a plain map.
func (m FieldMapping) Map() map[string]string {
	out := make(map[string]string, len(m.pairs))
	for _, p := range m.pairs {
		out[p.Field] = p.Variable
	}
	return out
}

// MarshalJSON encodes the mapping as an ordered list of pairs.
func (m FieldMapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Pairs())
}

// UnmarshalJSON accepts either a list of pairs or a field -> variable object.
func (m *FieldMapping) UnmarshalJSON(data []byte) error {
	var pairs []Pair
	if err := json.Unmarshal(data, &pairs); err == nil {
		*m = NewFieldMapping(pairs...)
		return nil
	}
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("field mapping must be a list of pairs or an object: %w", err)
	}
	*m = FromMap(obj, nil)
	return nil
}

// FromMap builds a mapping from a plain map, ordered by order when given and
// by key otherwise. Keys missing from order are appended sorted.
func FromMap(obj map[string]string, order []string) FieldMapping {
	m := NewFieldMapping()
	seen := make(map[string]bool, len(obj))
	for _, field := range order {
		if v, ok := obj[field]; ok && !seen[field] {
			seen[field] = true
			m.Set(field, v)
		}
	}
	rest := make([]string, 0, len(obj))
	for field := range obj {
		if !seen[field] {
			rest = append(rest, field)
		}
	}
	slices.Sort(rest)
	for _, field := range rest {
		m.Set(field, obj[field])
	}
	return m
}

// Mapper turns a configuration script and field names into a FieldMapping
// through a NameInferenceService.
type Mapper struct {
	service         NameInferenceService
	verifyVariables bool
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithVerifyVariables controls whether variable names that do not occur in
// the script are dropped. On by default.
func WithVerifyVariables(verify bool) Option {
	return func(m *Mapper) {
		m.verifyVariables = verify
	}
}

// NewMapper creates a mapper over service.
func NewMapper(service NameInferenceService, opts ...Option) *Mapper {
	m := &Mapper{service: service, verifyVariables: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UniqueFields trims field names and removes blanks and duplicates, keeping
// first occurrences.
func UniqueFields(fieldNames []string) []string {
	out := make([]string, 0, len(fieldNames))
	seen := make(map[string]bool, len(fieldNames))
	for _, f := range fieldNames {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Map asks the inference service once and normalizes its answer: unknown
// fields and empty variables are dropped and the result follows the order of
// fieldNames. Omitted fields are not retried.
func (m *Mapper) Map(ctx context.Context, scriptText string, fieldNames []string) (FieldMapping, error) {
	fields := UniqueFields(fieldNames)
	if len(fields) == 0 {
		return NewFieldMapping(), nil
	}

	proposed, err := m.service.Infer(ctx, scriptText, fields)
	if err != nil {
		return FieldMapping{}, fmt.Errorf("%w: %w", ErrMappingUnavailable, err)
	}

	mapping := NewFieldMapping()
	var dropped []string
	for _, field := range fields {
		variable := strings.TrimSpace(proposed[field])
		if variable == "" {
			continue
		}
		if m.verifyVariables && !ScriptMentions(scriptText, variable) {
			dropped = append(dropped, field)
			continue
		}
		mapping.Set(field, variable)
	}

	log.Debug().
		Int("fields", len(fields)).
		Int("mapped", mapping.Len()).
		Strs("dropped_unknown_variables", dropped).
		Msg("Field mapping inferred")
	return mapping, nil
}

// ScriptMentions reports whether name occurs in script as a whole
// identifier.
func ScriptMentions(script, name string) bool {
	if name == "" {
		return false
	}
	re, err := regexp.Compile(`(^|[^\w$])` + regexp.QuoteMeta(name) + `($|[^\w$])`)
	if err != nil {
		return false
	}
	return re.MatchString(script)
}
