package intent

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/model"
)

const normEpsilon = 1e-8

type phrase struct {
	intent model.Intent
	text   string
}

// Corpus holds the representative phrases per intent and, once materialized,
// their unit-normalized embeddings. Materialization happens on first use and
// is retried on the next call if it fails.
type Corpus struct {
	embedder ai.IEmbedder
	phrases  []phrase

	mu      sync.Mutex
	ready   atomic.Bool
	vectors [][]float64
}

// NewCorpus orders phrases by model.AllIntents so ties resolve the same way
// on every run. Unknown intent labels are ignored.
func NewCorpus(embedder ai.IEmbedder, phrases map[string][]string) *Corpus {
	c := &Corpus{embedder: embedder}
	for _, it := range model.AllIntents {
		for _, text := range phrases[string(it)] {
			c.phrases = append(c.phrases, phrase{intent: it, text: text})
		}
	}
	return c
}

func (c *Corpus) Len() int {
	return len(c.phrases)
}

func (c *Corpus) Ready() bool {
	return c.ready.Load()
}

func (c *Corpus) ensure(ctx context.Context) error {
	if c.ready.Load() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready.Load() {
		return nil
	}
	if len(c.phrases) == 0 {
		return fmt.Errorf("intent corpus is empty")
	}
	texts := make([]string, 0, len(c.phrases))
	for _, p := range c.phrases {
		texts = append(texts, p.text)
	}
	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed intent corpus: %w", err)
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("embed intent corpus: got %d vectors for %d phrases", len(vecs), len(texts))
	}
	normalized := make([][]float64, 0, len(vecs))
	for _, v := range vecs {
		normalized = append(normalized, unit(v))
	}
	c.vectors = normalized
	c.ready.Store(true)
	logutil.GetLogger(ctx).Info("intent corpus materialized", zap.Int("phrases", len(texts)))
	return nil
}

// Best returns the intent of the phrase most similar to query, and that
// similarity.
func (c *Corpus) Best(ctx context.Context, query []float32) (model.Intent, float64, error) {
	if err := c.ensure(ctx); err != nil {
		return model.IntentGeneral, 0, err
	}
	q := unit(query)
	best := model.IntentGeneral
	bestScore := 0.0
	found := false
	for i, v := range c.vectors {
		if len(v) != len(q) {
			continue
		}
		var score float64
		for j := range v {
			score += v[j] * q[j]
		}
		if !found || score > bestScore {
			found = true
			bestScore = score
			best = c.phrases[i].intent
		}
	}
	return best, bestScore, nil
}

func unit(v []float32) []float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := math.Sqrt(sum) + normEpsilon
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x) / n
	}
	return out
}
