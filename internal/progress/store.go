package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kousskous/menu-extractor/constants"
	"github.com/kousskous/menu-extractor/internal/common"
	"github.com/kousskous/menu-extractor/internal/entity"
	"github.com/kousskous/menu-extractor/internal/utils"
)

// ErrLocked means another process holds the progress file.
var ErrLocked = errors.New("progress file is locked by another run")

const stateVersion = 1

// Entry is the cache record for one page, keyed by filename.
type Entry struct {
	Fingerprint string               `json:"fingerprint"`
	Status      constants.FileStatus `json:"status"`
	Restaurants []entity.Restaurant  `json:"restaurants,omitempty"`
	Rejections  []entity.Rejection   `json:"rejections,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Attempts    int                  `json:"attempts,omitempty"`
	ElapsedMS   int64                `json:"elapsed_ms,omitempty"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Stats are running aggregates over the whole state.
type Stats struct {
	Committed        int   `json:"committed"`
	Failed           int   `json:"failed"`
	Restaurants      int   `json:"restaurants"`
	Dishes           int   `json:"dishes"`
	ExtractionMillis int64 `json:"extraction_ms"`
}

// State is the persisted document.
type State struct {
	Version int               `json:"version"`
	Files   map[string]*Entry `json:"files"`
	Stats   Stats             `json:"stats"`
}

// Store is the content-addressed cache plus progress checkpoint. Every Commit
// and MarkFailed is flushed before it returns.
type Store struct {
	mu     sync.Mutex
	path   string
	state  State
	lock   *flock.Flock
	logger *slog.Logger
	now    func() time.Time
}

// Open takes the single-writer lock and loads the state. A missing file starts
// empty; an unreadable or corrupt one is moved aside and also starts empty.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, common.PersistError("create progress dir", err)
	}
	fl := flock.New(path + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, common.PersistError("lock progress file", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	s := &Store{path: path, lock: fl, logger: logger, now: time.Now}
	s.state = s.load()
	return s, nil
}

func (s *Store) load() State {
	empty := State{Version: stateVersion, Files: map[string]*Entry{}}

	var st State
	err := utils.ReadJSON(s.path, &st)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.logger.Info("progress.load.empty", "path", s.path)
		return empty
	case err != nil:
		s.quarantine(err)
		return empty
	case st.Version != stateVersion || st.Files == nil:
		s.quarantine(fmt.Errorf("unexpected version %d or missing files", st.Version))
		return empty
	}
	for name, e := range st.Files {
		if e == nil || e.Fingerprint == "" {
			delete(st.Files, name)
		}
	}
	st.Stats = computeStats(st.Files)
	s.logger.Info("progress.load.ok", "path", s.path, "files", len(st.Files), "committed", st.Stats.Committed)
	return st
}

func (s *Store) quarantine(cause error) {
	aside := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		aside = ""
	}
	s.logger.Warn("progress.load.corrupt", "path", s.path, "moved_to", aside, "error", cause)
}

// Close releases the lock file.
func (s *Store) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

// Path returns the progress file location.
func (s *Store) Path() string { return s.path }

// Fingerprint is the SHA-256 of the file bytes; names and mtimes play no part.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Lookup returns the committed entry for filename only when its fingerprint
// equals digest. Failed entries and stale fingerprints are misses.
func (s *Store) Lookup(filename, digest string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.state.Files[filename]
	if !ok || e.Status != constants.FileStatusCommitted || e.Fingerprint != digest {
		return Entry{}, false
	}
	return cloneEntry(e), true
}

// CommitInput is what the orchestrator knows about a successfully extracted page.
type CommitInput struct {
	Restaurants []entity.Restaurant
	Rejections  []entity.Rejection
	Attempts    int
	Elapsed     time.Duration
}

// Commit records a successful page and flushes the state.
func (s *Store) Commit(filename, digest string, in CommitInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	restaurants := make([]entity.Restaurant, len(in.Restaurants))
	for i, r := range in.Restaurants {
		restaurants[i] = r.Clone()
	}
	s.state.Files[filename] = &Entry{
		Fingerprint: digest,
		Status:      constants.FileStatusCommitted,
		Restaurants: restaurants,
		Rejections:  append([]entity.Rejection(nil), in.Rejections...),
		Attempts:    in.Attempts,
		ElapsedMS:   in.Elapsed.Milliseconds(),
		UpdatedAt:   s.now().UTC(),
	}
	return s.flushLocked()
}

// MarkFailed records a page that produced nothing and flushes the state.
func (s *Store) MarkFailed(filename, digest, reason string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Files[filename] = &Entry{
		Fingerprint: digest,
		Status:      constants.FileStatusFailed,
		Reason:      reason,
		Attempts:    attempts,
		UpdatedAt:   s.now().UTC(),
	}
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	s.state.Stats = computeStats(s.state.Files)
	if err := utils.WriteJSONAtomic(s.path, s.state); err != nil {
		return common.PersistError("write progress file", err)
	}
	return nil
}

// Stats returns the running aggregates.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Stats
}

// Filenames returns every known filename, sorted.
func (s *Store) Filenames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.state.Files))
	for name := range s.state.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the entry for filename regardless of status.
func (s *Store) Get(filename string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.state.Files[filename]
	if !ok {
		return Entry{}, false
	}
	return cloneEntry(e), true
}

func computeStats(files map[string]*Entry) Stats {
	var st Stats
	for _, e := range files {
		switch e.Status {
		case constants.FileStatusCommitted:
			st.Committed++
			st.Restaurants += len(e.Restaurants)
			for _, r := range e.Restaurants {
				st.Dishes += len(r.Dishes)
			}
		case constants.FileStatusFailed:
			st.Failed++
		}
		st.ExtractionMillis += e.ElapsedMS
	}
	return st
}

func cloneEntry(e *Entry) Entry {
	out := *e
	if e.Restaurants != nil {
		out.Restaurants = make([]entity.Restaurant, len(e.Restaurants))
		for i, r := range e.Restaurants {
			out.Restaurants[i] = r.Clone()
		}
	}
	out.Rejections = append([]entity.Rejection(nil), e.Rejections...)
	return out
}
