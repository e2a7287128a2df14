package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relayd/relayd/internal/domain"
)

// FileStore persists each source's checkpoint as its own file under dir,
// named after the source. Save writes to a temp file in the same
// directory and renames it into place so a crash mid-write never leaves a
// corrupt checkpoint for the next Load to read.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating dir if it does
// not exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.Wrap(domain.ErrKindFatal, dir, fmt.Errorf("create checkpoint dir: %w", err))
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(source string) string {
	return filepath.Join(s.dir, source+".checkpoint")
}

func (s *FileStore) Load(_ context.Context, source string) ([]byte, error) {
	data, err := os.ReadFile(s.path(source))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.Wrap(domain.ErrKindTransientIO, source, fmt.Errorf("load checkpoint: %w", err))
	}
	return data, nil
}

func (s *FileStore) Save(_ context.Context, source string, cp []byte) error {
	tmp, err := os.CreateTemp(s.dir, source+".checkpoint.*")
	if err != nil {
		return domain.Wrap(domain.ErrKindTransientIO, source, fmt.Errorf("create temp checkpoint: %w", err))
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(cp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.Wrap(domain.ErrKindTransientIO, source, fmt.Errorf("write temp checkpoint: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.Wrap(domain.ErrKindTransientIO, source, fmt.Errorf("sync temp checkpoint: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.Wrap(domain.ErrKindTransientIO, source, fmt.Errorf("close temp checkpoint: %w", err))
	}
	if err := os.Rename(tmpPath, s.path(source)); err != nil {
		os.Remove(tmpPath)
		return domain.Wrap(domain.ErrKindTransientIO, source, fmt.Errorf("rename checkpoint into place: %w", err))
	}
	return nil
}

var _ Store = (*FileStore)(nil)
