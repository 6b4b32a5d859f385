package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TubeArticles/internal/domain"
)

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "processed_videos.json")

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, "vid-b"))
	require.NoError(t, store.Add(ctx, "vid-a"))
	require.NoError(t, store.Add(ctx, "vid-a"))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	ok, err := reopened.Contains(ctx, "vid-a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = reopened.Contains(ctx, "vid-c")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, reopened.Len())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal(raw, &ids))
	assert.Equal(t, []string{"vid-a", "vid-b"}, ids)
}

func TestFileStoreReadsLegacyList(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "processed_videos.json")
	require.NoError(t, os.WriteFile(path, []byte(`["x1","x2"]`), 0o644))

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	ok, err := store.Contains(context.Background(), "x2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStoreCorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "processed_videos.json")
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o644))

	_, err := OpenFileStore(path)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestFileStoreConcurrentAdds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "processed_videos.json")
	store, err := OpenFileStore(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Add(ctx, fmt.Sprintf("vid-%02d", i)))
		}()
	}
	wg.Wait()

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, 20, reopened.Len())
}

func TestRedisStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "")
	require.NoError(t, store.Ping(ctx))

	ok, err := store.Contains(ctx, "vid-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Add(ctx, "vid-1"))
	ok, err = store.Contains(ctx, "vid-1")
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := mr.Members(DefaultRedisKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"vid-1"}, members)
}

func TestRedisStoreUnavailable(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	store := NewRedisStore(client, "k")
	_, err := store.Contains(context.Background(), "vid")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
