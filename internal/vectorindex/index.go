package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/medrag/internal/model"
)

// VectorIndex is a read-only view over the embedded document collection.
type VectorIndex interface {
	// Search returns up to limit documents ordered by descending cosine
	// similarity. numCandidates is the approximate-search budget.
	Search(ctx context.Context, vector []float32, numCandidates, limit int) ([]model.Document, error)
	// FetchByMetadata returns up to limit documents matching the filter
	// together with their stored embeddings, without any similarity ordering.
	FetchByMetadata(ctx context.Context, filter model.MetadataFilter, limit int) ([]model.Document, error)
	Count(ctx context.Context) (int64, error)
}

// FactoryArgs carries the backend specific config plus shared resources.
type FactoryArgs struct {
	Data map[string]interface{}
	DB   *sql.DB
}

type Factory func(args FactoryArgs) (VectorIndex, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(name string, args FactoryArgs) (VectorIndex, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("vector_index.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector index: %s", name)
	}
	return factory(args)
}

func decodeConfig(args map[string]interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector index config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector index config: %w", err)
	}
	return nil
}
