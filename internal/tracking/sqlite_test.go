package tracking

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kousskous/menu-extractor/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "output", "tracking.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRun_ParamsMetricsAndCalls(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run, err := s.StartRun(ctx, "extraction")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	run.LogParams(ctx, map[string]string{"model": "google/gemini-2.5-flash", "total_files": "10"})
	run.LogParams(ctx, map[string]string{"total_files": "11"})
	params, err := run.Params(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"model": "google/gemini-2.5-flash", "total_files": "11"}, params)

	run.LogMetric(ctx, "file_dishes", 3, 1)
	run.LogMetric(ctx, "file_dishes", 5, 2)
	v, ok, err := run.LatestMetric(ctx, "file_dishes")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5.0, v)

	_, ok, err = run.LatestMetric(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 0; i < 2; i++ {
		run.LogCall(ctx, llm.CallRecord{
			RequestID:  "req-" + string(rune('a'+i)),
			Timestamp:  time.Now().UTC(),
			Filename:   "page_1.png",
			Attempt:    i + 1,
			Model:      "m",
			PromptHash: "abcd1234",
			Prompt:     "prompt",
			Response:   "{}",
			Elapsed:    250 * time.Millisecond,
		})
	}
	calls, ok, err := run.LatestMetric(ctx, "total_llm_calls")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0, calls)

	run.LogArtifact(ctx, "restaurants", "output/restaurants.json")
	run.End(ctx, "FINISHED")

	runs, err := s.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, "FINISHED", runs[0].Status)
	assert.Equal(t, 2, runs[0].Calls)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestStore_ReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tracking.db")

	s, err := Open(ctx, path, discardLogger())
	require.NoError(t, err)
	_, err = s.StartRun(ctx, "geocoding")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, discardLogger())
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.RecentRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "RUNNING", runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)
}
