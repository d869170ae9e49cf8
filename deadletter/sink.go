// Package deadletter writes failed payloads to disk for operator
// inspection and replay.
package deadletter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

// Sink owns the on-disk dead-letter directory. Writes are guarded by an
// advisory file lock so concurrent workers on a shared volume never
// interleave JSON.
type Sink struct {
	dir string
}

// New ensures dir exists and returns a Sink over it.
func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dead-letter directory %q: %w", dir, err)
	}
	return &Sink{dir: dir}, nil
}

// Write dumps the envelope under errors/<utc-timestamp>_<table>.json.
// An empty table labels the file "unknown". The write is atomic: the
// payload lands in a temp file which is renamed into place while the
// directory lock is held.
func (s *Sink) Write(table string, envelope interface{}) (string, error) {
	if table == "" {
		table = "unknown"
	}

	var name = fmt.Sprintf("%s_%s.json",
		time.Now().UTC().Format("2006-01-02T15-04-05.000000000"), table)
	var path = filepath.Join(s.dir, name)

	var lock = flock.New(filepath.Join(s.dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("locking dead-letter directory: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding dead-letter payload: %w", err)
	}

	var tmp = path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing dead-letter file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publishing dead-letter file: %w", err)
	}

	log.WithFields(log.Fields{"path": path, "table": table}).
		Warn("dead-lettered message")
	return path, nil
}
