package embedcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/testutil"
)

func TestLruEmbedder_SecondCallHitsCache(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeEmbedder(nil)
	e := WrapLruCacheToEmbedder(fake, DefaultLruSize)

	first, err := e.Embed(ctx, []string{"đau đầu uống thuốc gì"})
	require.NoError(t, err)
	second, err := e.Embed(ctx, []string{"đau đầu uống thuốc gì"})
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, fake.Calls())
}

func TestLruEmbedder_EvictsOldestInserted(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeEmbedder(nil)
	e := WrapLruCacheToEmbedder(fake, 2)

	_, err := e.Embed(ctx, []string{"a"})
	require.NoError(t, err)
	_, err = e.Embed(ctx, []string{"b"})
	require.NoError(t, err)
	// reading "a" must not refresh it
	_, err = e.Embed(ctx, []string{"a"})
	require.NoError(t, err)
	require.Equal(t, 2, fake.Calls())

	_, err = e.Embed(ctx, []string{"c"})
	require.NoError(t, err)
	_, err = e.Embed(ctx, []string{"b"})
	require.NoError(t, err)
	require.Equal(t, 3, fake.Calls())

	_, err = e.Embed(ctx, []string{"a"})
	require.NoError(t, err)
	require.Equal(t, 4, fake.Calls())
}

func TestLruEmbedder_BatchOnlyForwardsDistinctMisses(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeEmbedder(nil)
	e := WrapLruCacheToEmbedder(fake, DefaultLruSize)

	_, err := e.Embed(ctx, []string{"x"})
	require.NoError(t, err)
	res, err := e.Embed(ctx, []string{"x", "y", "y", "z"})
	require.NoError(t, err)
	require.Len(t, res, 4)
	require.Equal(t, res[1], res[2])
	require.Equal(t, testutil.HashVector("z"), res[3])
	require.Equal(t, []string{"x", "y", "z"}, fake.Texts())
}

func TestLruEmbedder_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeEmbedder(map[string][]float32{"q": {1, 2, 3}})
	e := WrapLruCacheToEmbedder(fake, DefaultLruSize)

	res, err := e.Embed(ctx, []string{"q"})
	require.NoError(t, err)
	res[0][0] = 42
	again, err := e.Embed(ctx, []string{"q"})
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, again[0])
}

func TestLruEmbedder_PropagatesError(t *testing.T) {
	fake := testutil.NewFakeEmbedder(nil)
	fake.Err = errors.New("boom")
	e := WrapLruCacheToEmbedder(fake, DefaultLruSize)
	_, err := e.Embed(context.Background(), []string{"q"})
	require.Error(t, err)
}

func TestLruEmbedder_Concurrent(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeEmbedder(nil)
	e := WrapLruCacheToEmbedder(fake, 4)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := []string{"a", "b", "c", "d", "e", "f"}[i%6]
			res, err := e.Embed(ctx, []string{text})
			if assert.NoError(t, err) {
				assert.Equal(t, testutil.HashVector(text), res[0])
			}
		}(i)
	}
	wg.Wait()
}

func TestStoreEmbedder_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	fake := testutil.NewFakeEmbedder(nil)
	first := WrapStoreCacheToEmbedder(fake, store)
	v1, err := first.Embed(ctx, []string{"giá thuốc"})
	require.NoError(t, err)
	require.Equal(t, 1, fake.Calls())

	restarted := WrapStoreCacheToEmbedder(fake, store)
	v2, err := restarted.Embed(ctx, []string{"giá thuốc"})
	require.NoError(t, err)
	require.Equal(t, 1, fake.Calls())
	require.Equal(t, v1, v2)
}

type brokenStore struct {
	saves int
}

func (b *brokenStore) Get(ctx context.Context, modelName, contentHash string) ([]float32, bool, error) {
	return nil, false, errors.New("disk gone")
}

func (b *brokenStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	b.saves++
	return errors.New("disk gone")
}

func TestStoreEmbedder_StoreFailureFallsThrough(t *testing.T) {
	fake := testutil.NewFakeEmbedder(nil)
	store := &brokenStore{}
	e := WrapStoreCacheToEmbedder(fake, store)

	res, err := e.Embed(context.Background(), []string{"q"})
	require.NoError(t, err)
	require.Equal(t, testutil.HashVector("q"), res[0])
	require.Equal(t, 1, store.saves)
}

func TestTieredCache_MemoryBeforeStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	fake := testutil.NewFakeEmbedder(nil)
	e := WrapLruCacheToEmbedder(WrapStoreCacheToEmbedder(fake, store), DefaultLruSize)

	for i := 0; i < 3; i++ {
		_, err := e.Embed(ctx, []string{"q1", "q2"})
		require.NoError(t, err)
	}
	require.Equal(t, 1, fake.Calls())
}

func TestFileStore_MissingEntry(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, ok, err := store.Get(context.Background(), "m/1", Fingerprint("nothing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStore_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, &model.EmbeddingCache{ModelName: "m", ContentHash: "a", Embedding: []float32{1}}))

	removed, err := store.DeleteBefore(ctx, time.Now().Add(-time.Hour).Unix())
	require.NoError(t, err)
	require.Equal(t, int64(0), removed)

	removed, err = store.DeleteBefore(ctx, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
	_, ok, err := store.Get(ctx, "m", "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	require.Equal(t, Fingerprint("abc"), Fingerprint("abc"))
	require.NotEqual(t, Fingerprint("abc"), Fingerprint("abd"))
	require.Len(t, Fingerprint(""), 64)
}
