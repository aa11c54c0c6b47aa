package capture

import (
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ambient/internal/models"
)

var pngStub = []byte("\x89PNG\r\n\x1a\nstub")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newIndex(t *testing.T, opts ...Option) *Index {
	t.Helper()
	x, err := New(filepath.Join(t.TempDir(), "captures"), opts...)
	require.NoError(t, err)
	return x
}

func register(t *testing.T, x *Index, session string) models.Capture {
	t.Helper()
	c, ok := x.RegisterImageData(pngStub, models.KindScreenshot, session, "image/png", "png")
	require.True(t, ok)
	return *c
}

func ids(cs []models.Capture) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestRegisterWritesNamedFile(t *testing.T) {
	clock := newFakeClock()
	clock.Advance(123 * time.Millisecond)
	x := newIndex(t, WithClock(clock.Now))

	c := register(t, x, "s1")

	assert.True(t, filepath.IsAbs(c.FilePath))
	assert.Equal(t, x.Dir(), filepath.Dir(c.FilePath))
	want := "20260504-100000123-" + c.ID[:8] + ".png"
	assert.Equal(t, want, filepath.Base(c.FilePath))

	data, err := os.ReadFile(c.FilePath)
	require.NoError(t, err)
	assert.Equal(t, pngStub, data)
	assert.False(t, c.Attached)
	assert.Equal(t, 1, x.Len())
}

func TestRegisterImageEncodesPNG(t *testing.T) {
	x := newIndex(t)
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	c, ok := x.RegisterImage(img, models.KindClipboardImage, "")
	require.True(t, ok)
	assert.Equal(t, "clipboard-image 4x3", c.Preview)

	att, err := LoadAttachment(c.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "image/png", att.MIMEType)
	assert.True(t, strings.HasPrefix(string(att.Data), "\x89PNG"))
}

func TestRegisterRejectsBadInput(t *testing.T) {
	x := newIndex(t)

	_, ok := x.RegisterImageData(nil, models.KindScreenshot, "", "image/png", "png")
	assert.False(t, ok)
	_, ok = x.RegisterImageData(pngStub, models.KindURL, "", "image/png", "png")
	assert.False(t, ok)
	_, ok = x.RegisterURL("   ", "")
	assert.False(t, ok)
	assert.Zero(t, x.Len())

	entries, err := os.ReadDir(x.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRegisterWriteFailureRegistersNothing(t *testing.T) {
	x := newIndex(t)
	require.NoError(t, os.RemoveAll(x.Dir()))
	// Replace the directory with a file so every write fails.
	require.NoError(t, os.WriteFile(x.Dir(), []byte("x"), 0o644))

	_, ok := x.RegisterImageData(pngStub, models.KindScreenshot, "", "image/png", "png")
	assert.False(t, ok)
	assert.Zero(t, x.Len())
}

func TestRegisterURLTruncatesPreview(t *testing.T) {
	x := newIndex(t)
	long := "https://example.com/" + strings.Repeat("é", 200)

	c, ok := x.RegisterURL(long, "s1")
	require.True(t, ok)
	assert.Equal(t, models.KindURL, c.Kind)
	assert.Empty(t, c.FilePath)
	assert.Equal(t, 100, len([]rune(c.Preview)))
	assert.True(t, strings.HasPrefix(long, c.Preview))

	short, ok := x.RegisterURL("https://go.dev", "")
	require.True(t, ok)
	assert.Equal(t, "https://go.dev", short.Preview)
}

func TestRegisterURLKeepsAnyNonBlankText(t *testing.T) {
	x := newIndex(t)

	for _, text := range []string{"not a url", "localhost:3000 notes", "  go.dev/doc  "} {
		c, ok := x.RegisterURL(text, "")
		require.True(t, ok, text)
		assert.Equal(t, strings.TrimSpace(text), c.Preview)
	}
	for _, blank := range []string{"", " \t\n"} {
		_, ok := x.RegisterURL(blank, "")
		assert.False(t, ok, "%q", blank)
	}
	assert.Equal(t, 3, x.Len())
}

func TestRegisterImageDataUsesMimeType(t *testing.T) {
	x := newIndex(t)

	c, ok := x.RegisterImageData(pngStub, models.KindClipboardImage, "", "image/png", "")
	require.True(t, ok)
	assert.Equal(t, ".png", filepath.Ext(c.FilePath))
	assert.True(t, strings.HasPrefix(c.Preview, "clipboard-image image/png ("), c.Preview)

	c, ok = x.RegisterImageData(pngStub, models.KindScreenshot, "", "", "png")
	require.True(t, ok)
	assert.Equal(t, ".png", filepath.Ext(c.FilePath))
	assert.False(t, strings.Contains(c.Preview, "image/"), c.Preview)

	_, ok = x.RegisterImageData(pngStub, models.KindScreenshot, "", "application/pdf", "")
	assert.False(t, ok)
	assert.Equal(t, 2, x.Len())
}

func TestSessionlessCaptureVisibleToEverySession(t *testing.T) {
	clock := newFakeClock()
	x := newIndex(t, WithClock(clock.Now))
	since := clock.Now().Add(-time.Minute)

	c := register(t, x, "")

	for _, session := range []string{"s1", "s2", "never-used", ""} {
		got := x.RecentUnattached(session, since)
		assert.Equal(t, []string{c.ID}, ids(got), session)
	}
}

func TestRecentUnattachedFiltersBySession(t *testing.T) {
	clock := newFakeClock()
	x := newIndex(t, WithClock(clock.Now))
	start := clock.Now()

	c := register(t, x, "s1")

	assert.Empty(t, x.RecentUnattached("s2", start.Add(-10*time.Second)))
	assert.Equal(t, []string{c.ID}, ids(x.RecentUnattached("s1", start.Add(-10*time.Second))))
	assert.Equal(t, []string{c.ID}, ids(x.RecentUnattached("", start.Add(-10*time.Second))))
}

func TestRecentUnattachedWindowAndOrder(t *testing.T) {
	clock := newFakeClock()
	x := newIndex(t, WithClock(clock.Now))

	old := register(t, x, "")
	clock.Advance(5 * time.Minute)
	a := register(t, x, "")
	clock.Advance(time.Second)
	b := register(t, x, "")
	clock.Advance(time.Second)
	attached := register(t, x, "")
	require.Equal(t, 1, x.MarkAttached(attached.ID))

	// Zero since falls back to the two-minute window.
	got := x.RecentUnattached("s", time.Time{})
	assert.Equal(t, []string{a.ID, b.ID}, ids(got))

	got = x.RecentUnattached("s", old.Timestamp)
	assert.Equal(t, []string{old.ID, a.ID, b.ID}, ids(got))

	got = x.RecentUnattached("s", b.Timestamp)
	assert.Equal(t, []string{b.ID}, ids(got))
}

func TestMarkAttachedCountsChanges(t *testing.T) {
	x := newIndex(t)
	a := register(t, x, "")
	b := register(t, x, "")

	assert.Equal(t, 2, x.MarkAttached(a.ID, b.ID, "unknown"))
	assert.Equal(t, 0, x.MarkAttached(a.ID))

	got, ok := x.Get(a.ID)
	require.True(t, ok)
	assert.True(t, got.Attached)
}

func TestEvictionPrefersAttached(t *testing.T) {
	clock := newFakeClock()
	x := newIndex(t, WithClock(clock.Now), WithMaxCaptures(200))

	var all []models.Capture
	for i := 0; i < 250; i++ {
		clock.Advance(time.Millisecond)
		all = append(all, register(t, x, ""))
	}
	require.Equal(t, 250, x.Len())

	rng := rand.New(rand.NewSource(42))
	order := rng.Perm(len(all))
	attachedIDs := make(map[string]bool)
	var toAttach []string
	for _, i := range order[:210] {
		toAttach = append(toAttach, all[i].ID)
		attachedIDs[all[i].ID] = true
	}
	require.Equal(t, 210, x.MarkAttached(toAttach...))

	clock.Advance(time.Millisecond)
	last := register(t, x, "")

	var survivingAttached []models.Capture
	unattached := 0
	for _, c := range append(all, last) {
		got, ok := x.Get(c.ID)
		if !ok {
			assert.True(t, attachedIDs[c.ID], "unattached capture %s was evicted", c.ID)
			_, err := os.Stat(c.FilePath)
			assert.True(t, os.IsNotExist(err), "file of evicted capture still present")
			continue
		}
		if got.Attached {
			survivingAttached = append(survivingAttached, got)
		} else {
			unattached++
		}
	}
	assert.LessOrEqual(t, len(survivingAttached), 100)
	assert.Equal(t, 41, unattached)

	// The newest attached captures are the ones kept.
	var newestAttached []string
	for i := len(all) - 1; i >= 0 && len(newestAttached) < 100; i-- {
		if attachedIDs[all[i].ID] {
			newestAttached = append(newestAttached, all[i].ID)
		}
	}
	assert.ElementsMatch(t, newestAttached, ids(survivingAttached))
}

func TestEvictionKeepsUnattachedOverCapacity(t *testing.T) {
	x := newIndex(t, WithMaxCaptures(4))
	for i := 0; i < 10; i++ {
		register(t, x, "")
	}
	assert.Equal(t, 10, x.Len())
}

func TestPurgeOldCaptures(t *testing.T) {
	clock := newFakeClock()
	x := newIndex(t, WithClock(clock.Now))

	old := register(t, x, "")
	oldURL, ok := x.RegisterURL("https://old.example", "")
	require.True(t, ok)
	clock.Advance(8 * 24 * time.Hour)
	fresh := register(t, x, "")

	removed := x.PurgeOldCaptures(7)
	assert.Equal(t, 2, removed)

	_, ok = x.Get(old.ID)
	assert.False(t, ok)
	_, ok = x.Get(oldURL.ID)
	assert.False(t, ok)
	_, err := os.Stat(old.FilePath)
	assert.True(t, os.IsNotExist(err))

	_, ok = x.Get(fresh.ID)
	assert.True(t, ok)
	_, err = os.Stat(fresh.FilePath)
	assert.NoError(t, err)
}

func TestPurgeRemovesStrayFiles(t *testing.T) {
	x := newIndex(t)
	live := register(t, x, "")

	stray := filepath.Join(x.Dir(), "20200101-000000000-deadbeef.png")
	recent := filepath.Join(x.Dir(), "recent-stray.png")
	require.NoError(t, os.WriteFile(stray, pngStub, 0o644))
	require.NoError(t, os.WriteFile(recent, pngStub, 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stray, past, past))
	// A live capture whose file is old on disk must survive.
	require.NoError(t, os.Chtimes(live.FilePath, past, past))

	assert.Equal(t, 1, x.PurgeOldCaptures(7))

	_, err := os.Stat(stray)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recent)
	assert.NoError(t, err)
	_, err = os.Stat(live.FilePath)
	assert.NoError(t, err)
}

func TestOnChangeEvents(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []string
	)
	x := newIndex(t, WithMaxCaptures(2), WithOnChange(func(kind string, _ models.Capture) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	}))

	a := register(t, x, "")
	b := register(t, x, "")
	x.MarkAttached(a.ID, b.ID)
	register(t, x, "")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		ChangeRegistered, ChangeRegistered,
		ChangeAttached, ChangeAttached,
		ChangeRegistered, ChangeEvicted,
	}, kinds)
}

func TestForget(t *testing.T) {
	x := newIndex(t)
	c := register(t, x, "")

	assert.False(t, x.Forget("/nonexistent"))
	assert.True(t, x.Forget(c.FilePath))
	assert.Zero(t, x.Len())
}
