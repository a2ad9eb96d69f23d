package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONAtomic_ReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "restaurants.json")

	require.NoError(t, WriteJSONAtomic(path, []string{"Chez Lili"}))
	require.NoError(t, WriteJSONAtomic(path, []string{"Chez Lili", "Le Fémina"}))

	var got []string
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, []string{"Chez Lili", "Le Fémina"}, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Le Fémina", "non-ASCII must be written as is")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not survive")
	assert.Equal(t, "restaurants.json", entries[0].Name())
}

func TestReadJSON_Missing(t *testing.T) {
	var v any
	err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &v)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
