package transcript

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ambient/internal/apperr"
	"github.com/starford/ambient/internal/lane"
	"github.com/starford/ambient/internal/models"
	"github.com/starford/ambient/internal/sqlitedb"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "transcripts.db"), opts...)
	require.True(t, s.Available())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSearchFindsMeetingByWord(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec, err := s.Append(ctx, "meeting about roadmap Q3", 4.2, "/tmp/a.wav")
	require.NoError(t, err)

	got, err := s.Search(ctx, "roadmap", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, "meeting about roadmap Q3", got[0].Text)
	assert.Equal(t, "/tmp/a.wav", got[0].AudioPath)
	assert.InDelta(t, 4.2, got[0].Duration, 1e-9)
}

func TestSaveAssignsIncreasingIDs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		s.Save("utterance", float64(i), "")
	}
	// Append is queued behind every Save on the same lane.
	last, err := s.Append(ctx, "final", 0, "")
	require.NoError(t, err)

	recent, err := s.Recent(ctx, 100)
	require.NoError(t, err)
	require.Len(t, recent, 21)
	assert.Equal(t, last.ID, recent[0].ID)
	for i := 1; i < len(recent); i++ {
		assert.Greater(t, recent[i-1].ID, recent[i].ID)
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, txt := range []string{"one", "two", "three"} {
		_, err := s.Append(ctx, txt, 1, "")
		require.NoError(t, err)
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].Text)
	assert.Equal(t, "two", got[1].Text)
}

func TestSearchMatchesExactSubstrings(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	texts := []string{
		"call the dentist tomorrow morning",
		"the quarterly budget review slipped",
		"Kubernetes upgrade needs a maintenance window",
		"pick up groceries: eggs, milk & bread",
	}
	ids := make(map[string]int64)
	for _, txt := range texts {
		rec, err := s.Append(ctx, txt, 1, "")
		require.NoError(t, err)
		ids[txt] = rec.ID
	}

	cases := map[string]string{
		"dentist tom":    texts[0],
		"quarterly":      texts[1],
		"ernetes":        texts[2],
		"maintenance":    texts[2],
		"eggs, milk":     texts[3],
		"milk & bread":   texts[3],
		"budget review":  texts[1],
		"DENTIST":        texts[0],
		"up groceries:":  texts[3],
		"a maintenance":  texts[2],
		"the quarterly ": texts[1],
	}
	for q, want := range cases {
		got, err := s.Search(ctx, q, 10)
		require.NoError(t, err, q)
		found := false
		for _, r := range got {
			if r.ID == ids[want] {
				found = true
			}
		}
		assert.True(t, found, "query %q should find %q", q, want)
	}
}

func TestSearchOrdersNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, "standup notes", 1, "")
		require.NoError(t, err)
	}
	got, err := s.Search(ctx, "standup", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Greater(t, got[0].ID, got[1].ID)
	assert.Greater(t, got[1].ID, got[2].ID)
}

func TestSearchToleratesMalformedQueries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, `he said "hello" (twice) AND left`, 1, "")
	require.NoError(t, err)

	for _, q := range []string{`"hello`, `(twice`, `AND`, `NOT OR`, `*`, `a:b`, `hello"`, `%`, `_`} {
		_, err := s.Search(ctx, q, 10)
		assert.NoError(t, err, q)
	}

	got, err := s.Search(ctx, `"hello"`, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.Search(ctx, `%`, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchShortTermsUseSubstringScan(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "ship Q3 plan", 1, "")
	require.NoError(t, err)

	got, err := s.Search(ctx, "Q3", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSearchBlankQueryIsEmpty(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "anything", 1, "")
	require.NoError(t, err)

	got, err := s.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSearchNoMatchIsEmptyNotError(t *testing.T) {
	s := newStore(t)
	got, err := s.Search(context.Background(), "nonexistent", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBetweenIsHalfOpenAndAscending(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	s := newStore(t, WithClock(clock))
	ctx := context.Background()

	start := clock()
	_, err := s.Append(ctx, "first", 1, "")
	require.NoError(t, err)
	advance(time.Hour)
	_, err = s.Append(ctx, "second", 1, "")
	require.NoError(t, err)
	advance(time.Hour)
	_, err = s.Append(ctx, "third", 1, "")
	require.NoError(t, err)

	got, err := s.Between(ctx, start, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
	assert.True(t, got[0].CreatedAt.Equal(start))

	got, err = s.Between(ctx, start.Add(time.Hour), start)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCountAndOnSave(t *testing.T) {
	var (
		mu    sync.Mutex
		saved []models.TranscriptRecord
	)
	s := newStore(t, WithOnSave(func(r models.TranscriptRecord) {
		mu.Lock()
		saved = append(saved, r)
		mu.Unlock()
	}))
	ctx := context.Background()

	s.Save("alpha", 1, "")
	s.Save("beta", 1, "")
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, saved, 2)
	assert.Equal(t, "alpha", saved[0].Text)
	assert.Less(t, saved[0].ID, saved[1].ID)
}

func TestReopenKeepsDataAndIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcripts.db")
	ctx := context.Background()

	s := New(path)
	require.True(t, s.Available())
	s.Save("persisted across restarts", 1, "")
	require.NoError(t, s.Close())

	s = New(path)
	require.True(t, s.Available())
	defer s.Close()

	got, err := s.Search(ctx, "restarts", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFTSBackfillsRowsWrittenWithoutIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcripts.db")
	ctx := context.Background()

	db, err := sqlitedb.Open(path, sqlitedb.Options{})
	require.NoError(t, err)
	require.NoError(t, sqlitedb.Migrate(ctx, db, migrations, nil))
	_, err = db.Exec(`INSERT INTO transcripts (created_at, duration, text, audio_path) VALUES (?, 1, 'legacy planning row', '')`,
		time.Now().UTC().Format(timeLayout))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s := New(path)
	require.True(t, s.Available())
	defer s.Close()
	require.True(t, s.FullText())

	got, err := s.Search(ctx, "planning", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestUnavailableStore(t *testing.T) {
	// The parent "directory" is a regular file, so the database cannot be created.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	path := filepath.Join(blocker, "transcripts.db")

	s := New(path)
	assert.False(t, s.Available())

	ctx := context.Background()
	s.Save("dropped", 1, "")

	_, err := s.Search(ctx, "dropped", 10)
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))
	_, err = s.Recent(ctx, 10)
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))
	_, err = s.Append(ctx, "x", 1, "")
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))
	_, err = s.Count(ctx)
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))
	assert.NoError(t, s.Close())
}

func TestMatchExprQuotesTerms(t *testing.T) {
	assert.Equal(t, `"foo" "b""ar"`, matchExpr([]string{"foo", `b"ar`}))
}

// blockLane occupies the worker until the returned func is called.
func blockLane(t *testing.T, l *lane.Lane) func() {
	t.Helper()
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, l.Submit(func() { close(started); <-release }))
	<-started
	return func() { close(release) }
}

func TestAppendCompletesWhenCancelledAfterQueued(t *testing.T) {
	s := newStore(t)
	release := blockLane(t, s.lane)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		rec models.TranscriptRecord
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := s.Append(ctx, "queued before cancel", 1, "")
		done <- result{rec, err}
	}()

	require.Eventually(t, func() bool { return s.lane.Pending() == 1 }, time.Second, time.Millisecond)
	cancel()
	release()

	res := <-done
	require.NoError(t, res.err)
	assert.NotZero(t, res.rec.ID)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "transcripts.db"))
	require.True(t, s.Available())
	require.NoError(t, s.Close())

	_, err := s.Recent(context.Background(), 5)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	_, err = s.Append(context.Background(), "late", 1, "")
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	s.Save("dropped quietly", 1, "")
}
