// Package capture keeps an in-memory index of ambient captures (screenshots,
// clipboard images, copied URLs) whose image bytes live in a capture directory.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/ambient/internal/models"
	"github.com/starford/ambient/internal/storage"
)

const (
	DefaultMaxCaptures      = 200
	DefaultRetentionDays    = 7
	DefaultUnattachedWindow = 120 * time.Second

	urlPreviewRunes = 100
)

// Change kinds passed to the OnChange callback.
const (
	ChangeRegistered = "registered"
	ChangeAttached   = "attached"
	ChangeEvicted    = "evicted"
	ChangePurged     = "purged"
	ChangeRemoved    = "removed"
)

// Option configures an Index.
type Option func(*Index)

// WithMaxCaptures sets the soft capacity that triggers eviction.
func WithMaxCaptures(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.max = n
		}
	}
}

// WithUnattachedWindow sets the look-back used by RecentUnattached when no
// lower bound is given.
func WithUnattachedWindow(d time.Duration) Option {
	return func(x *Index) {
		if d > 0 {
			x.window = d
		}
	}
}

// WithLogger sets the index logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(x *Index) { x.now = now }
}

// WithOnChange registers a callback for index changes. It runs after the
// index lock is released.
func WithOnChange(fn func(kind string, c models.Capture)) Option {
	return func(x *Index) { x.onChange = fn }
}

// Index is safe for concurrent use. One mutex guards both the map and the
// capture directory.
type Index struct {
	blobs    storage.Provider
	max      int
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time
	onChange func(kind string, c models.Capture)

	mu      sync.Mutex
	entries map[string]*models.Capture
}

type change struct {
	kind    string
	capture models.Capture
}

// New creates the capture directory if needed and returns an empty index.
func New(dir string, opts ...Option) (*Index, error) {
	blobs, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	x := &Index{
		blobs:   blobs,
		max:     DefaultMaxCaptures,
		window:  DefaultUnattachedWindow,
		logger:  slog.Default().With("component", "capture"),
		now:     time.Now,
		entries: make(map[string]*models.Capture),
	}
	for _, o := range opts {
		o(x)
	}
	return x, nil
}

// Dir returns the absolute capture directory.
func (x *Index) Dir() string { return x.blobs.Root() }

// RegisterImage encodes img as PNG and registers it. Encoding failures are
// logged and nothing is written.
func (x *Index) RegisterImage(img image.Image, kind models.CaptureKind, sessionID string) (*models.Capture, bool) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		x.logger.Error("encode capture", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		return nil, false
	}
	b := img.Bounds()
	return x.register(buf.Bytes(), kind, sessionID, "png", fmt.Sprintf("%s %dx%d", kind, b.Dx(), b.Dy()))
}

// RegisterImageData stores already-encoded image bytes under a new capture.
// ext is the file extension without the dot; when empty it is taken from
// mimeType. Write failures are logged and nothing is registered.
func (x *Index) RegisterImageData(data []byte, kind models.CaptureKind, sessionID, mimeType, ext string) (*models.Capture, bool) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if ext == "" {
		ext = imageExt[mimeType]
	}
	if ext == "" {
		x.logger.Warn("capture rejected", slog.String("mime_type", mimeType), slog.String("error", "no file extension for mime type"))
		return nil, false
	}
	preview := fmt.Sprintf("%s (%s)", kind, humanize.Bytes(uint64(len(data))))
	if mimeType != "" {
		preview = fmt.Sprintf("%s %s (%s)", kind, mimeType, humanize.Bytes(uint64(len(data))))
	}
	return x.register(data, kind, sessionID, ext, preview)
}

func (x *Index) register(data []byte, kind models.CaptureKind, sessionID, ext, preview string) (*models.Capture, bool) {
	err := validation.Errors{
		"data": validation.Validate(data, validation.Required),
		"kind": validation.Validate(kind, validation.Required, validation.In(models.KindScreenshot, models.KindClipboardImage)),
	}.Filter()
	if err != nil {
		x.logger.Warn("capture rejected", slog.String("error", err.Error()))
		return nil, false
	}

	ts := x.now()
	id := uuid.NewString()
	name := fileName(ts, id, ext)

	x.mu.Lock()
	if err := x.blobs.Write(name, data); err != nil {
		x.mu.Unlock()
		x.logger.Error("write capture", slog.String("name", name), slog.String("error", err.Error()))
		return nil, false
	}
	path, _ := x.blobs.Path(name)
	c := &models.Capture{
		ID:        id,
		Timestamp: ts,
		SessionID: sessionID,
		Kind:      kind,
		FilePath:  path,
		Preview:   preview,
	}
	changes := x.insertLocked(c)
	x.mu.Unlock()

	x.emit(changes)
	out := *c
	return &out, true
}

// RegisterURL records copied text that looked like a URL to the caller. The
// string is kept as given; only blank input is refused. URL captures have no
// backing file.
func (x *Index) RegisterURL(url, sessionID string) (*models.Capture, bool) {
	url = strings.TrimSpace(url)
	if err := validation.Validate(url, validation.Required); err != nil {
		x.logger.Warn("url capture rejected", slog.String("error", err.Error()))
		return nil, false
	}

	c := &models.Capture{
		ID:        uuid.NewString(),
		Timestamp: x.now(),
		SessionID: sessionID,
		Kind:      models.KindURL,
		Preview:   truncateRunes(url, urlPreviewRunes),
	}

	x.mu.Lock()
	changes := x.insertLocked(c)
	x.mu.Unlock()

	x.emit(changes)
	out := *c
	return &out, true
}

func (x *Index) insertLocked(c *models.Capture) []change {
	x.entries[c.ID] = c
	changes := []change{{kind: ChangeRegistered, capture: *c}}
	for _, ev := range x.evictLocked() {
		changes = append(changes, change{kind: ChangeEvicted, capture: ev})
	}
	return changes
}

// evictLocked trims attached captures down to half capacity once the index
// is over capacity. Unattached captures are never evicted here, so the index
// may stay above capacity when most entries are unattached.
func (x *Index) evictLocked() []models.Capture {
	if len(x.entries) <= x.max {
		return nil
	}
	keep := x.max / 2

	attached := make([]*models.Capture, 0, len(x.entries))
	for _, c := range x.entries {
		if c.Attached {
			attached = append(attached, c)
		}
	}
	if len(attached) <= keep {
		return nil
	}
	sortOldestFirst(attached)

	victims := attached[:len(attached)-keep]
	out := make([]models.Capture, 0, len(victims))
	for _, c := range victims {
		x.removeFileLocked(c)
		delete(x.entries, c.ID)
		out = append(out, *c)
	}
	x.logger.Info("evicted attached captures",
		slog.Int("count", len(out)),
		slog.Int("remaining", len(x.entries)))
	return out
}

// RecentUnattached returns unattached captures taken at or after since,
// oldest first. A zero since means the configured window before now.
// Captures without a session match every query; an empty sessionID
// disables session filtering.
func (x *Index) RecentUnattached(sessionID string, since time.Time) []models.Capture {
	if since.IsZero() {
		since = x.now().Add(-x.window)
	}

	x.mu.Lock()
	matched := make([]*models.Capture, 0)
	for _, c := range x.entries {
		if c.Attached || c.Timestamp.Before(since) {
			continue
		}
		if sessionID != "" && c.SessionID != "" && c.SessionID != sessionID {
			continue
		}
		matched = append(matched, c)
	}
	sortOldestFirst(matched)
	out := make([]models.Capture, len(matched))
	for i, c := range matched {
		out[i] = *c
	}
	x.mu.Unlock()
	return out
}

// MarkAttached flags captures as consumed by a task. Unknown or already
// attached ids are ignored. It returns how many entries changed.
func (x *Index) MarkAttached(ids ...string) int {
	var changes []change

	x.mu.Lock()
	for _, id := range ids {
		c, ok := x.entries[id]
		if !ok || c.Attached {
			continue
		}
		c.Attached = true
		changes = append(changes, change{kind: ChangeAttached, capture: *c})
	}
	x.mu.Unlock()

	x.emit(changes)
	return len(changes)
}

// Get returns a copy of the capture with the given id.
func (x *Index) Get(id string) (models.Capture, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	c, ok := x.entries[id]
	if !ok {
		return models.Capture{}, false
	}
	return *c, true
}

// Len returns the number of live captures.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

// Forget drops the entry backed by path without touching the file system.
func (x *Index) Forget(path string) bool {
	var forgotten *models.Capture

	x.mu.Lock()
	for id, c := range x.entries {
		if c.FilePath != "" && c.FilePath == path {
			forgotten = c
			delete(x.entries, id)
			break
		}
	}
	x.mu.Unlock()

	if forgotten == nil {
		return false
	}
	x.emit([]change{{kind: ChangeRemoved, capture: *forgotten}})
	return true
}

func (x *Index) removeFileLocked(c *models.Capture) {
	if c.FilePath == "" {
		return
	}
	err := x.blobs.Delete(filepath.Base(c.FilePath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		x.logger.Warn("remove capture file",
			slog.String("path", c.FilePath),
			slog.String("error", err.Error()))
	}
}

func (x *Index) emit(changes []change) {
	if x.onChange == nil {
		return
	}
	for _, ch := range changes {
		x.onChange(ch.kind, ch.capture)
	}
}

func sortOldestFirst(cs []*models.Capture) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Timestamp.Equal(cs[j].Timestamp) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].Timestamp.Before(cs[j].Timestamp)
	})
}

// fileName builds "<yyyymmdd-hhmmssmmm>-<first 8 of id>.<ext>".
func fileName(ts time.Time, id, ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || strings.ContainsAny(ext, `/\.`) {
		ext = "png"
	}
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s%03d-%s.%s", ts.Format("20060102-150405"), ts.Nanosecond()/int(time.Millisecond), short, ext)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
