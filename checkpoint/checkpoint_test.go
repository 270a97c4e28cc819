package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/museguard/museguard/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// 进度计算测试
// ============================================================

func TestCheckpoint_Progress(t *testing.T) {
	t.Run("进度百分比等于 100*(processed+failed)/total", func(t *testing.T) {
		cp := &Checkpoint{TotalItems: 200, Processed: 90, Failed: 10}
		assert.InDelta(t, 50.0, cp.Progress(), 0.001)
	})

	t.Run("total 为 0 时进度为 0", func(t *testing.T) {
		cp := &Checkpoint{}
		assert.Zero(t, cp.Progress())
	})

	t.Run("完成判定", func(t *testing.T) {
		cp := &Checkpoint{TotalItems: 100, Processed: 90, Failed: 9}
		assert.False(t, cp.IsComplete())

		cp.Failed = 10
		assert.True(t, cp.IsComplete())
	})
}

// ============================================================
// 内存存储测试
// ============================================================

func newTestMemoryStore(t *testing.T, expiry time.Duration) Store {
	t.Helper()

	cfg := &Config{Expiry: expiry}
	cfg.setDefaults()
	return newMemoryStore(cfg, testkit.NewLogger(t))
}

// 场景：create(100) → update(50,5,55) → update(90,10,100) ⇒ 完成
func TestMemoryStore_Lifecycle(t *testing.T) {
	store := newTestMemoryStore(t, 0)
	ctx := context.Background()
	batchID := testkit.NewID()

	cp, err := store.Create(ctx, batchID, "p", "remove_tracks", 100)
	require.NoError(t, err)
	assert.Zero(t, cp.Progress())
	assert.False(t, cp.IsComplete())

	require.NoError(t, store.Update(ctx, cp, 50, 5, 55, "item-55", nil))
	assert.InDelta(t, 55.0, cp.Progress(), 0.001)

	require.NoError(t, store.Update(ctx, cp, 90, 10, 100, "item-100", nil))
	assert.InDelta(t, 100.0, cp.Progress(), 0.001)
	assert.True(t, cp.IsComplete())

	// 恢复路径：重新加载后游标与计数一致
	loaded, err := store.Get(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 90, loaded.Processed)
	assert.Equal(t, 10, loaded.Failed)
	assert.Equal(t, 100, loaded.Position)
	assert.Equal(t, "item-100", loaded.LastItemID)
}

func TestMemoryStore_ContinuationData(t *testing.T) {
	store := newTestMemoryStore(t, 0)
	ctx := context.Background()
	batchID := testkit.NewID()

	cp, err := store.Create(ctx, batchID, "p", "full_sync", 10)
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, cp, 5, 0, 5, "a",
		map[string]any{"cursor": "page-2"}))

	t.Run("data 为 nil 时保留原有续传数据", func(t *testing.T) {
		require.NoError(t, store.Update(ctx, cp, 6, 0, 6, "b", nil))

		loaded, err := store.Get(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, "page-2", loaded.Data["cursor"])
	})

	t.Run("返回的检查点是副本，修改不影响存储", func(t *testing.T) {
		loaded, err := store.Get(ctx, batchID)
		require.NoError(t, err)
		loaded.Data["cursor"] = "mutated"

		again, err := store.Get(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, "page-2", again.Data["cursor"])
	})
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := newTestMemoryStore(t, 50*time.Millisecond)
	ctx := context.Background()
	batchID := testkit.NewID()

	cp, err := store.Create(ctx, batchID, "p", "full_sync", 10)
	require.NoError(t, err)

	time.Sleep(70 * time.Millisecond)

	t.Run("过期后 Get 返回 ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, batchID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("过期后 Update 返回 ErrNotFound", func(t *testing.T) {
		err := store.Update(ctx, cp, 1, 0, 1, "a", nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore_Delete(t *testing.T) {
	store := newTestMemoryStore(t, 0)
	ctx := context.Background()
	batchID := testkit.NewID()

	_, err := store.Create(ctx, batchID, "p", "full_sync", 10)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, batchID))

	_, err = store.Get(ctx, batchID)
	assert.ErrorIs(t, err, ErrNotFound)

	t.Run("删除不存在的检查点静默成功", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "missing"))
	})
}

// ============================================================
// 分布式存储测试（Redis 不可达时自动跳过）
// ============================================================

func newTestRedisStore(t *testing.T, serializerKind string) Store {
	t.Helper()

	conn := testkit.GetRedisConnector(t)
	store, err := NewDistributed(conn, &Config{
		Prefix:     "museguard-test:" + testkit.NewID() + ":",
		Serializer: serializerKind,
	}, WithLogger(testkit.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestRedisStore_Lifecycle(t *testing.T) {
	store := newTestRedisStore(t, "msgpack")
	ctx := context.Background()
	batchID := testkit.NewID()

	cp, err := store.Create(ctx, batchID, "spotify", "remove_tracks", 100)
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, cp, 50, 5, 55, "item-55",
		map[string]any{"cursor": "page-3"}))

	loaded, err := store.Get(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, "spotify", loaded.Provider)
	assert.Equal(t, 50, loaded.Processed)
	assert.Equal(t, 5, loaded.Failed)
	assert.Equal(t, 55, loaded.Position)
	assert.Equal(t, "item-55", loaded.LastItemID)
	assert.Equal(t, "page-3", loaded.Data["cursor"])
	assert.InDelta(t, 55.0, loaded.Progress(), 0.001)

	require.NoError(t, store.Delete(ctx, batchID))
	_, err = store.Get(ctx, batchID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_JSONSerializer(t *testing.T) {
	store := newTestRedisStore(t, "json")
	ctx := context.Background()
	batchID := testkit.NewID()

	_, err := store.Create(ctx, batchID, "youtube", "full_sync", 10)
	require.NoError(t, err)

	loaded, err := store.Get(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, "youtube", loaded.Provider)
	assert.Equal(t, 10, loaded.TotalItems)
}

func TestRedisStore_UpdateAfterDeleteFails(t *testing.T) {
	store := newTestRedisStore(t, "")
	ctx := context.Background()
	batchID := testkit.NewID()

	cp, err := store.Create(ctx, batchID, "p", "full_sync", 10)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, batchID))

	// 键不在了（等价于已过期），更新不得复活它
	err = store.Update(ctx, cp, 1, 0, 1, "a", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewSerializer_Unsupported(t *testing.T) {
	_, err := newSerializer("xml")
	assert.ErrorIs(t, err, ErrUnsupportedSerializer)
}
