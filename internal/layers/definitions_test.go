package layers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDefinitions(t *testing.T) {
	defs := DefaultDefinitions()
	require.Len(t, defs, 7)

	names := make([]string, len(defs))
	for i, d := range defs {
		require.NoError(t, d.Validate())
		names[i] = d.Name
	}
	assert.Equal(t, []string{
		"herttoniemi_morning", "herttoniemi_afternoon",
		"steissi_morning", "steissi_afternoon",
		"vuosaari", "pajamaki", "tapanila",
	}, names)
	assert.Equal(t, []int64{257, 256, 255, 254}, defs[0].Stations)
	assert.Equal(t, EveningTimes, defs[1].Times)
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(dir, t.Name()+".json")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("empty path uses defaults", func(t *testing.T) {
		defs, err := LoadDefinitions("")
		require.NoError(t, err)
		assert.Equal(t, DefaultDefinitions(), defs)
	})

	t.Run("reads a definitions file", func(t *testing.T) {
		path := write(t, `[{"name": "kallio", "stations": [130, 131], "times": ["07:00:00"]}]`)
		defs, err := LoadDefinitions(path)
		require.NoError(t, err)
		assert.Equal(t, []Definition{{Name: "kallio", Stations: []int64{130, 131}, Times: []string{"07:00:00"}}}, defs)
	})

	tests := []struct {
		name    string
		content string
	}{
		{"rejects invalid json", `{"name":`},
		{"rejects empty list", `[]`},
		{"rejects unsafe names", `[{"name": "../etc"}]`},
		{"rejects bad times", `[{"name": "x", "times": ["7am"]}]`},
		{"rejects negative station ids", `[{"name": "x", "stations": [-1]}]`},
		{"rejects duplicate names", `[{"name": "x"}, {"name": "x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDefinitions(write(t, tt.content))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDefinitions(filepath.Join(dir, "missing.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
