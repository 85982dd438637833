package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const script = `var headline = "X";
var ctaText = 'Shop now';
var price = 9.99;
var config = { logoImage: "logo.png" };`

type stubService struct {
	answer   map[string]string
	err      error
	gotField []string
	calls    int
}

func (s *stubService) Infer(ctx context.Context, scriptText string, fieldNames []string) (map[string]string, error) {
	s.calls++
	s.gotField = fieldNames
	return s.answer, s.err
}

func TestMapper_Normalizes(t *testing.T) {
	svc := &stubService{answer: map[string]string{
		"Price":    " price ",
		"Headline": "headline",
		"Unknown":  "ghost",
		"Extra":    "headline",
		"CTA":      "",
		"Logo":     "logoImage",
	}}
	m := NewMapper(svc)

	got, err := m.Map(context.Background(), script, []string{"Headline", " CTA", "Price", "", "Headline", "Logo", "Unknown"})
	require.NoError(t, err)

	assert.Equal(t, 1, svc.calls)
	assert.Equal(t, []string{"Headline", "CTA", "Price", "Logo", "Unknown"}, svc.gotField)

	want := []Pair{
		{Field: "Headline", Variable: "headline"},
		{Field: "Price", Variable: "price"},
		{Field: "Logo", Variable: "logoImage"},
	}
	if diff := cmp.Diff(want, got.Pairs()); diff != "" {
		t.Errorf("mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestMapper_VerifyDisabled(t *testing.T) {
	svc := &stubService{answer: map[string]string{"Unknown": "ghost"}}
	got, err := NewMapper(svc, WithVerifyVariables(false)).Map(context.Background(), script, []string{"Unknown"})
	require.NoError(t, err)
	v, ok := got.Variable("Unknown")
	assert.True(t, ok)
	assert.Equal(t, "ghost", v)
}

func TestMapper_ServiceFailure(t *testing.T) {
	svc := &stubService{err: context.DeadlineExceeded}
	_, err := NewMapper(svc).Map(context.Background(), script, []string{"Headline"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMappingUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMapper_NoFieldsSkipsService(t *testing.T) {
	svc := &stubService{err: errors.New("should not be called")}
	got, err := NewMapper(svc).Map(context.Background(), script, []string{" ", ""})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, 0, svc.calls)
}

func TestFieldMapping_JSON(t *testing.T) {
	m := NewFieldMapping(Pair{"B", "b"}, Pair{"A", "a"}, Pair{"B", "b2"})
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"field":"B","variable":"b2"},{"field":"A","variable":"a"}]`, string(data))

	var back FieldMapping
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.Pairs(), back.Pairs())

	var fromObj FieldMapping
	require.NoError(t, json.Unmarshal([]byte(`{"Z":"z","A":"a"}`), &fromObj))
	assert.Equal(t, []Pair{{"A", "a"}, {"Z", "z"}}, fromObj.Pairs())

	assert.Error(t, json.Unmarshal([]byte(`42`), &fromObj))
}

func TestFromMap_Order(t *testing.T) {
	m := FromMap(map[string]string{"c": "1", "a": "2", "b": "3"}, []string{"b", "missing", "c"})
	assert.Equal(t, []Pair{{"b", "3"}, {"c", "1"}, {"a", "2"}}, m.Pairs())
}

func TestScriptMentions(t *testing.T) {
	assert.True(t, ScriptMentions(script, "headline"))
	assert.True(t, ScriptMentions(script, "logoImage"))
	assert.False(t, ScriptMentions(script, "head"))
	assert.False(t, ScriptMentions(script, "Text"))
	assert.False(t, ScriptMentions(script, ""))
}
