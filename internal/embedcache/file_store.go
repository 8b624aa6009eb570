package embedcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/xxxsen/medrag/internal/model"
)

var unsafeNameRegex = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FileStore keeps one JSON file per (model, content hash) under dir.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("embedding cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create embedding cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(modelName, contentHash string) string {
	return filepath.Join(s.dir, unsafeNameRegex.ReplaceAllString(modelName, "_"), contentHash+".json")
}

func (s *FileStore) Get(ctx context.Context, modelName, contentHash string) ([]float32, bool, error) {
	_ = ctx
	data, err := os.ReadFile(s.path(modelName, contentHash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var item model.EmbeddingCache
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, false, fmt.Errorf("decode embedding cache %s: %w", contentHash, err)
	}
	if len(item.Embedding) == 0 {
		return nil, false, nil
	}
	return item.Embedding, true, nil
}

func (s *FileStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	_ = ctx
	target := s.path(item.ModelName, item.ContentHash)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// DeleteBefore removes entries written before cutoff (unix seconds).
func (s *FileStore) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	var removed int64
	limit := time.Unix(cutoff, 0)
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(limit) {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
