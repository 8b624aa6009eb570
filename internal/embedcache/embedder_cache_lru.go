package embedcache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/pkg/vecmath"
)

const DefaultLruSize = 64

// WrapLruCacheToEmbedder puts a bounded memory tier in front of e. Lookups
// use Peek so the eviction order stays the insertion order.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int) ai.IEmbedder {
	if e == nil || size <= 0 {
		return e
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return e
	}
	return &lruEmbedder{next: e, cache: cache}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *lru.Cache[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missIdx := make(map[string][]int)
	var missTexts []string
	for i, text := range texts {
		key, _, _ := buildCacheKey(l.next.ModelName(), text)
		if cached, ok := l.cache.Peek(key); ok {
			out[i] = vecmath.Clone(cached)
			continue
		}
		if _, seen := missIdx[key]; !seen {
			missTexts = append(missTexts, text)
		}
		missIdx[key] = append(missIdx[key], i)
	}
	if hits := len(texts) - countIdx(missIdx); hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.Int("hits", hits))
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	res, err := l.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for i, text := range missTexts {
		key, _, _ := buildCacheKey(l.next.ModelName(), text)
		l.cache.Add(key, vecmath.Clone(res[i]))
		for _, idx := range missIdx[key] {
			out[idx] = vecmath.Clone(res[i])
		}
	}
	return out, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func countIdx(m map[string][]int) int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}
