package main

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/config"
)

type countingProvider struct {
	mu    sync.Mutex
	texts map[string]int
}

func (p *countingProvider) Name() string {
	return "counting"
}

func (p *countingProvider) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		p.texts[text]++
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func (p *countingProvider) count(text string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[text]
}

func TestBuildEmbedder_CorpusBypassesLru(t *testing.T) {
	provider := &countingProvider{texts: map[string]int{}}
	ai.RegisterEmbed("counting-app-test", func(interface{}) (ai.IEmbedProvider, error) {
		return provider, nil
	})
	cfg := &config.Config{
		AI: config.AIConfig{Providers: []config.AIProviderConfig{
			{Provider: "counting-app-test", Model: "m"},
		}},
		EmbedCache: config.EmbedCacheConfig{Store: "none", LruSize: 2},
	}
	stack, err := buildEmbedder(cfg, nil)
	require.NoError(t, err)
	require.Nil(t, stack.janitor)

	ctx := context.Background()
	_, err = stack.query.Embed(ctx, []string{"thuốc ho"})
	require.NoError(t, err)
	_, err = stack.corpus.Embed(ctx, []string{"xin chào", "giá bao nhiêu", "mua ở đâu"})
	require.NoError(t, err)
	_, err = stack.query.Embed(ctx, []string{"thuốc ho"})
	require.NoError(t, err)

	require.Equal(t, 1, provider.count("thuốc ho"))

	_, err = stack.corpus.Embed(ctx, []string{"xin chào"})
	require.NoError(t, err)
	require.Equal(t, 2, provider.count("xin chào"))
}
