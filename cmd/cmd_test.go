package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannerbuildr/internal/records"
)

func TestParseEnvLine(t *testing.T) {
	tests := []struct {
		line      string
		key, val  string
		ok, isErr bool
	}{
		{line: "", ok: false},
		{line: "  # comment", ok: false},
		{line: "BANNERBUILDR_AI_PROVIDER=openai", key: "BANNERBUILDR_AI_PROVIDER", val: "openai", ok: true},
		{line: "export BANNERBUILDR_AI_API_KEY=\"sk-123\"", key: "BANNERBUILDR_AI_API_KEY", val: "sk-123", ok: true},
		{line: "A='single'", key: "A", val: "single", ok: true},
		{line: "A=\"mismatched'", key: "A", val: "\"mismatched'", ok: true},
		{line: "EMPTY=", key: "EMPTY", val: "", ok: true},
		{line: "no equals sign", isErr: true},
		{line: "=value", isErr: true},
	}
	for _, tt := range tests {
		key, val, ok, err := parseEnvLine(tt.line)
		if tt.isErr {
			assert.Error(t, err, tt.line)
			continue
		}
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.key, key, tt.line)
		assert.Equal(t, tt.val, val, tt.line)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# local overrides\nexport BANNERBUILDR_TEST_PORT=9999\n"), 0644))
	t.Setenv("BANNERBUILDR_TEST_PORT", "1")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "9999", os.Getenv("BANNERBUILDR_TEST_PORT"))

	bad := filepath.Join(t.TempDir(), "bad.env")
	require.NoError(t, os.WriteFile(bad, []byte("OK=1\nbroken\n"), 0644))
	err := LoadEnvFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(unset)", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "sk****yz", maskSecret("sk-abcdefxyz"))
}

func TestParseRecordFlag(t *testing.T) {
	req, err := parseRecordFlag("sheet-1", "creative:Creatives:C-7")
	require.NoError(t, err)
	assert.Equal(t, records.RoleRequest{Role: "creative", SourceID: "sheet-1", Subset: "Creatives", ID: "C-7"}, req)

	_, err = parseRecordFlag("sheet-1", "creative:Creatives")
	assert.Error(t, err)
	_, err = parseRecordFlag("sheet-1", "creative:Creatives: ")
	assert.Error(t, err)
}
