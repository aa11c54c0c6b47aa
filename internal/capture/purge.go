package capture

import (
	"log/slog"
	"path/filepath"
)

// PurgeOldCaptures deletes captures older than retentionDays together with
// their files, then removes unreferenced files in the capture directory whose
// modification time is past the same cutoff (leftovers from earlier runs).
// It returns the number of entries and files removed.
func (x *Index) PurgeOldCaptures(retentionDays int) int {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := x.now().AddDate(0, 0, -retentionDays)

	var changes []change

	x.mu.Lock()
	live := make(map[string]struct{}, len(x.entries))
	for id, c := range x.entries {
		if c.Timestamp.Before(cutoff) {
			x.removeFileLocked(c)
			delete(x.entries, id)
			changes = append(changes, change{kind: ChangePurged, capture: *c})
			continue
		}
		if c.FilePath != "" {
			live[filepath.Base(c.FilePath)] = struct{}{}
		}
	}

	strays := 0
	blobs, err := x.blobs.List()
	if err != nil {
		x.logger.Warn("list capture dir", slog.String("error", err.Error()))
	}
	for _, b := range blobs {
		if _, ok := live[b.Name]; ok || !b.ModTime.Before(cutoff) {
			continue
		}
		if err := x.blobs.Delete(b.Name); err != nil {
			x.logger.Warn("remove stray capture", slog.String("name", b.Name), slog.String("error", err.Error()))
			continue
		}
		strays++
	}
	x.mu.Unlock()

	x.emit(changes)
	if n := len(changes) + strays; n > 0 {
		x.logger.Info("purged old captures",
			slog.Int("entries", len(changes)),
			slog.Int("stray_files", strays),
			slog.Int("retention_days", retentionDays))
	}
	return len(changes) + strays
}
