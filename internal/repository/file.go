package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

// FileStore keeps the current outcome in one JSON file plus a ".meta" sidecar
// holding the run id. Writes go to a temp file in the same directory and are
// renamed over the target.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, common.WrapError(common.ErrInvalidInput, "file store path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storageErr("create store directory", err)
	}
	return &FileStore{path: path, logger: logger}, nil
}

// fileMeta is the sidecar written next to the result document.
type fileMeta struct {
	RunID       string    `json:"run_id"`
	Kind        string    `json:"kind"`
	CompletedAt time.Time `json:"completed_at"`
}

func (s *FileStore) metaPath() string { return s.path + ".meta" }

func (s *FileStore) Write(ctx context.Context, o entity.Outcome) error {
	doc, err := encode(o)
	if err != nil {
		return err
	}
	completed := o.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}
	meta, err := json.Marshal(fileMeta{RunID: o.RunID, Kind: o.Kind(), CompletedAt: completed})
	if err != nil {
		return storageErr("encode result metadata", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// metadata first; a reader that sees the new document also sees its metadata
	if err := s.replace(s.metaPath(), meta); err != nil {
		return err
	}
	if err := s.replace(s.path, doc); err != nil {
		return err
	}
	s.logger.Info("store.write.ok", "backend", "file", "run_id", o.RunID, "kind", o.Kind(), "bytes", len(doc))
	return nil
}

// replace writes data to a temp file in the target directory and renames it
// over path.
func (s *FileStore) replace(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".result-*.tmp")
	if err != nil {
		return storageErr("create temp file", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return storageErr("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return storageErr("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return storageErr("close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return storageErr("replace "+filepath.Base(path), err)
	}
	return nil
}

func (s *FileStore) ReadCurrent(ctx context.Context) (entity.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entity.Outcome{}, common.ErrNotAvailable
	}
	if err != nil {
		return entity.Outcome{}, storageErr("read result file", err)
	}
	o, err := entity.ParseOutcome(b)
	if err != nil {
		return entity.Outcome{}, storageErr("decode result file", err)
	}

	var meta fileMeta
	mb, err := os.ReadFile(s.metaPath())
	if err == nil && json.Unmarshal(mb, &meta) == nil && meta.Kind == o.Kind() {
		o.RunID = meta.RunID
		o.CompletedAt = meta.CompletedAt
		return o, nil
	}
	// documents written before the sidecar existed
	if fi, err := os.Stat(s.path); err == nil {
		o.CompletedAt = fi.ModTime().UTC()
	}
	return o, nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	fi, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return storageErr("stat store directory", err)
	}
	if !fi.IsDir() {
		return storageErr("stat store directory", errors.New("not a directory"))
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
