package requestlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pogoaccountserver/backend/logging"
)

// FileLog is a Log persisted to a single JSON file, replaced atomically
// (write-temp-then-rename) on every mutation so a crash mid-write never
// leaves a torn file behind. This plays the role the original's pickle
// file played, per the design note that any stable serialization format
// is acceptable as long as replacement is atomic.
type FileLog struct {
	*core
	path   string
	logger *logging.Logger
}

// NewFileLog loads path if present (logging a warning and starting empty
// on any failure, per spec: startup never aborts on log corruption) and
// returns a FileLog that persists to it on every mutation.
func NewFileLog(path string, capacity int, logger *logging.Logger) *FileLog {
	f := &FileLog{core: newCore(capacity), path: path, logger: logger}
	f.load()
	return f
}

func (f *FileLog) load() {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("request log load failed, starting empty",
				logging.String("path", f.path),
				logging.String("error", err.Error()),
			)
		}
		return
	}

	var data map[string][]Entry
	if err := json.Unmarshal(raw, &data); err != nil {
		f.logger.Warn("request log corrupt, starting empty",
			logging.String("path", f.path),
			logging.String("error", err.Error()),
		)
		return
	}

	f.restore(data)
	f.logger.Info("request log loaded", logging.String("path", f.path))
}

func (f *FileLog) persist() {
	data := f.snapshot()
	raw, err := json.Marshal(data)
	if err != nil {
		f.logger.Warn("request log marshal failed", logging.String("error", err.Error()))
		return
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".request_log.*.tmp")
	if err != nil {
		f.logger.Warn("request log persist failed", logging.String("error", err.Error()))
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		f.logger.Warn("request log persist failed", logging.String("error", err.Error()))
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		f.logger.Warn("request log persist failed", logging.String("error", err.Error()))
		return
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		f.logger.Warn("request log persist failed", logging.String("error", err.Error()))
	}
}

func (f *FileLog) Append(_ context.Context, device string, entry Entry) error {
	f.append(device, entry)
	f.persist()
	return nil
}

func (f *FileLog) Rotate(_ context.Context, device string) error {
	f.rotate(device)
	f.persist()
	return nil
}

func (f *FileLog) UsernamesOf(device string) []string { return f.usernamesOf(device) }

func (f *FileLog) Contains(device, username string) bool { return f.contains(device, username) }

func (f *FileLog) Head(device string) (Entry, bool) { return f.head(device) }

func (f *FileLog) CountSince(device string, cutoff int64) int { return f.countSince(device, cutoff) }
