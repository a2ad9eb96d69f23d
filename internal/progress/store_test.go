package progress

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kousskous/menu-extractor/constants"
	"github.com/kousskous/menu-extractor/internal/entity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRestaurants() []entity.Restaurant {
	phone := "04 91 00 00 00"
	return []entity.Restaurant{{
		Name:    "Chez Lili",
		Address: "12 rue d'Aubagne",
		Phone:   &phone,
		Dishes: []entity.Dish{{
			Name:     "Couscous",
			Price:    "15 €",
			Dates:    []entity.Date{{Day: 22, Month: 8}},
			Services: []string{"midi"},
		}},
		SourceFile: "page_1.png",
	}}
}

func TestStore_CommitLookupAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output", "progress.json")
	s, err := Open(path, discardLogger())
	require.NoError(t, err)

	_, ok := s.Lookup("page_1.png", "abc")
	assert.False(t, ok)

	require.NoError(t, s.Commit("page_1.png", "abc", CommitInput{
		Restaurants: sampleRestaurants(),
		Attempts:    2,
		Elapsed:     1500 * time.Millisecond,
	}))
	require.NoError(t, s.MarkFailed("page_2.png", "def", "extraction failed", 3))

	e, ok := s.Lookup("page_1.png", "abc")
	require.True(t, ok)
	assert.Equal(t, constants.FileStatusCommitted, e.Status)
	assert.Equal(t, sampleRestaurants(), e.Restaurants)

	_, ok = s.Lookup("page_1.png", "other-digest")
	assert.False(t, ok, "stale fingerprint must miss")
	_, ok = s.Lookup("page_2.png", "def")
	assert.False(t, ok, "failed entries are not cache hits")

	st := s.Stats()
	assert.Equal(t, 1, st.Committed)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.Restaurants)
	assert.Equal(t, 1, st.Dishes)
	require.NoError(t, s.Close())

	reopened, err := Open(path, discardLogger())
	require.NoError(t, err)
	defer reopened.Close()
	e, ok = reopened.Lookup("page_1.png", "abc")
	require.True(t, ok)
	assert.Equal(t, sampleRestaurants(), e.Restaurants)
	assert.Equal(t, 2, e.Attempts)
	failed, ok := reopened.Get("page_2.png")
	require.True(t, ok)
	assert.Equal(t, "extraction failed", failed.Reason)
	assert.Equal(t, []string{"page_1.png", "page_2.png"}, reopened.Filenames())
}

func TestStore_CommitOverwritesFailure(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "progress.json"), discardLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.MarkFailed("p.png", "d1", "boom", 3))
	require.NoError(t, s.Commit("p.png", "d1", CommitInput{Restaurants: sampleRestaurants()}))

	_, ok := s.Lookup("p.png", "d1")
	assert.True(t, ok)
	assert.Equal(t, 0, s.Stats().Failed)
}

func TestStore_LookupReturnsCopies(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "progress.json"), discardLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Commit("p.png", "d", CommitInput{Restaurants: sampleRestaurants()}))
	e, _ := s.Lookup("p.png", "d")
	e.Restaurants[0].Name = "mutated"
	e.Restaurants[0].Dishes[0].Services[0] = "soir"

	again, _ := s.Lookup("p.png", "d")
	assert.Equal(t, "Chez Lili", again.Restaurants[0].Name)
	assert.Equal(t, []string{"midi"}, again.Restaurants[0].Dishes[0].Services)
}

func TestStore_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 1, "files": {`), 0o644))

	s, err := Open(path, discardLogger())
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.Filenames())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var quarantined bool
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "progress.json.corrupt-") {
			quarantined = true
		}
	}
	assert.True(t, quarantined, "corrupt file should be moved aside")

	require.NoError(t, s.Commit("p.png", "d", CommitInput{Restaurants: sampleRestaurants()}))
	_, ok := s.Lookup("p.png", "d")
	assert.True(t, ok)
}

func TestStore_UnknownVersionStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "files": {}}`), 0o644))

	s, err := Open(path, discardLogger())
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.Filenames())
}

func TestStore_SecondWriterIsLockedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	first, err := Open(path, discardLogger())
	require.NoError(t, err)

	_, err = Open(path, discardLogger())
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Close())
	second, err := Open(path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestFingerprint_ContentOnly(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(a, []byte("same bytes"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("same bytes"), 0o644))

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	require.NoError(t, os.WriteFile(b, []byte("other bytes"), 0o644))
	fb, err = Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)

	_, err = Fingerprint(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}
