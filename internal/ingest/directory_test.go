package ingest

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNaturalLess(t *testing.T) {
	names := []string{"page_10.png", "page_2.png", "page_1.png", "cover.png", "page_02b.png", "page_9.jpg"}
	sort.Slice(names, func(i, j int) bool { return NaturalLess(names[i], names[j]) })
	assert.Equal(t, []string{"cover.png", "page_1.png", "page_2.png", "page_02b.png", "page_9.jpg", "page_10.png"}, names)

	assert.False(t, NaturalLess("page_2.png", "page_2.png"))
	assert.True(t, NaturalLess("page_02.png", "page_2.png"), "ties fall back to byte order")
}

func TestListPages(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"page_10.PNG", "page_2.jpg", "notes.txt", ".DS_Store.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "annexe"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "annexe", "page_1.webp"), []byte("xy"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cache"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".cache", "page_3.png"), []byte("x"), 0o644))

	pages, stats, err := ListPages(root, true, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	var names []string
	for _, p := range pages {
		names = append(names, p.Filename)
	}
	assert.Equal(t, []string{"annexe/page_1.webp", "page_2.jpg", "page_10.PNG"}, names)
	assert.Equal(t, "png", pages[2].Ext)
	assert.Equal(t, int64(2), pages[0].Size)
	assert.Equal(t, uint32(3), stats.Matched)

	_, _, err = ListPages(filepath.Join(root, "missing"), true, nil)
	assert.Error(t, err)
	_, _, err = ListPages("  ", true, nil)
	assert.Error(t, err)
}
