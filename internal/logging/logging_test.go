package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_InvalidLevel(t *testing.T) {
	err := Setup("loud", "json", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestOperationLogger_TagsLines(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf).Level(zerolog.InfoLevel)

	op := StartOperationWith(base, "batch", "op-1")
	op.Log("packaged %d variations", 3)
	op.LogError("fetch", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "batch", first["operation"])
	assert.Equal(t, "op-1", first["operation_id"])
	assert.Equal(t, "packaged 3 variations", first["message"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "boom", second["error"])
	assert.Equal(t, "fetch", second["context"])
}

func TestOperationLogger_NilIsSafe(t *testing.T) {
	var op *OperationLogger
	op.Log("ignored")
	op.LogSection("ignored")
	op.LogRequest("m", "p")
	op.LogResponse("r")
	op.LogError("c", errors.New("x"))
	op.Close()
	assert.Equal(t, "", op.ID())
	assert.NotNil(t, op.Zerolog())
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("  abc ", 5))
	assert.Equal(t, "ab...", truncateString("abcdef", 2))
}
