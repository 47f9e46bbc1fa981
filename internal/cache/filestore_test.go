package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClock is a settable clock for driving expiry without sleeping.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openTestFileStore(t *testing.T) (*FileStore, *testClock) {
	t.Helper()
	clock := newTestClock()
	store, err := NewFileStore(t.TempDir(), WithNow(clock.Now))
	require.NoError(t, err)
	return store, clock
}

func TestFileStoreSetGetRoundTrip(t *testing.T) {
	store, _ := openTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "post:7", []byte(`{"id":7}`), 300*time.Second))

	value, found, err := store.Get(ctx, "post:7")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"id":7}`, string(value))

	has, err := store.Has(ctx, "post:7")
	require.NoError(t, err)
	require.True(t, has)
}

func TestFileStoreGetMissingKey(t *testing.T) {
	store, _ := openTestFileStore(t)

	value, found, err := store.Get(context.Background(), "never-set")
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, value)
}

func TestFileStoreEntryExpiresAfterTTL(t *testing.T) {
	store, clock := openTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "post:7", []byte("payload"), 300*time.Second))

	clock.Advance(300 * time.Second)
	_, found, err := store.Get(ctx, "post:7")
	require.NoError(t, err)
	require.True(t, found, "entry should still be live at exactly the expiry second")

	clock.Advance(1 * time.Second)
	_, found, err = store.Get(ctx, "post:7")
	require.NoError(t, err)
	require.False(t, found, "entry should be gone once the TTL has lapsed")

	// The expired read removed the file, so a later Cleanup finds nothing.
	cleaned, err := store.Cleanup(ctx)
	require.NoError(t, err)
	require.Zero(t, cleaned)
}

func TestFileStoreSetRejectsNonPositiveTTL(t *testing.T) {
	store, _ := openTestFileStore(t)
	ctx := context.Background()

	require.Error(t, store.Set(ctx, "k", []byte("v"), 0))
	require.Error(t, store.Set(ctx, "k", []byte("v"), -time.Second))

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestFileStoreSetReplacesExistingEntry(t *testing.T) {
	store, clock := openTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("old"), time.Second))
	require.NoError(t, store.Set(ctx, "k", []byte("new"), time.Hour))

	clock.Advance(2 * time.Second)
	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found, "replacement should carry the new TTL")
	require.Equal(t, "new", string(value))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalEntries)
}

func TestFileStoreDelete(t *testing.T) {
	store, _ := openTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Hour))

	removed, err := store.Delete(ctx, "a", "b", "absent")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = store.Delete(ctx, "a")
	require.NoError(t, err)
	require.Zero(t, removed, "deleting an absent key is not an error")
}

func TestFileStoreKeysListsLiveLogicalNames(t *testing.T) {
	store, clock := openTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "post:1", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "post:2", []byte("2"), time.Hour))
	require.NoError(t, store.Set(ctx, "recent-posts", []byte("[]"), time.Hour))

	clock.Advance(2 * time.Minute)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"post:2", "recent-posts"}, keys)
}

func TestFileStoreCleanupRemovesOnlyExpired(t *testing.T) {
	store, clock := openTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("s"), time.Minute))
	require.NoError(t, store.Set(ctx, "long", []byte("l"), time.Hour))

	clock.Advance(2 * time.Minute)

	cleaned, err := store.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cleaned)

	// Idempotent: a second pass has nothing left to remove.
	cleaned, err = store.Cleanup(ctx)
	require.NoError(t, err)
	require.Zero(t, cleaned)

	_, found, err := store.Get(ctx, "long")
	require.NoError(t, err)
	require.True(t, found)
}

func TestFileStoreCorruptEntryIsAMiss(t *testing.T) {
	store, _ := openTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Hour))

	path := filepath.Join(store.dir, DeriveKey("k")+fileSuffix)
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)

	// The corrupt file was removed on read, not left to poison later scans.
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestFileStoreCleanupCountsCorruptEntries(t *testing.T) {
	store, _ := openTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "live", []byte("l"), time.Hour))
	require.NoError(t, store.Set(ctx, "broken", []byte("b"), time.Hour))

	path := filepath.Join(store.dir, DeriveKey("broken")+fileSuffix)
	require.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0o644))

	cleaned, err := store.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cleaned, "the corrupt removal must be counted")

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))

	_, found, err := store.Get(ctx, "live")
	require.NoError(t, err)
	require.True(t, found)
}

func TestFileStoreStatsLeavesCorruptEntriesForCleanup(t *testing.T) {
	store, _ := openTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "broken", []byte("b"), time.Hour))
	path := filepath.Join(store.dir, DeriveKey("broken")+fileSuffix)
	require.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0o644))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalEntries)
	require.Equal(t, 1, stats.ExpiredEntries)

	// The scan must not remove the file, or Cleanup could never count it.
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	cleaned, err := store.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cleaned)
}

func TestFileStoreStatsPartitionsEntries(t *testing.T) {
	store, clock := openTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "live-1", []byte("a"), time.Hour))
	require.NoError(t, store.Set(ctx, "live-2", []byte("bb"), time.Hour))
	require.NoError(t, store.Set(ctx, "stale", []byte("c"), time.Minute))

	clock.Advance(2 * time.Minute)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalEntries)
	require.Equal(t, 2, stats.ValidEntries)
	require.Equal(t, 1, stats.ExpiredEntries)
	require.Equal(t, stats.TotalEntries, stats.ValidEntries+stats.ExpiredEntries)
	require.Positive(t, stats.TotalSizeBytes)

	// Stats is read-only: the expired entry is still on disk for Cleanup.
	cleaned, err := store.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cleaned)
}

func TestFileStoreClearRemovesEverything(t *testing.T) {
	store, _ := openTestFileStore(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, store.Set(ctx, key, []byte(key), time.Hour))
	}

	removed, err := store.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalEntries)
}

func TestFileStoreConcurrentSetsSameKey(t *testing.T) {
	store, _ := openTestFileStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, "hot", []byte(`{"n":1}`), time.Hour)
		}()
	}
	wg.Wait()

	// Whichever write won, the entry must decode cleanly: renames are atomic,
	// so no reader can observe interleaved bytes.
	value, found, err := store.Get(ctx, "hot")
	require.NoError(t, err)
	require.True(t, found)
	var decoded map[string]int
	require.NoError(t, json.Unmarshal(value, &decoded))
	require.Equal(t, 1, decoded["n"])

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalEntries)
}

func TestRememberComputesOnceWhileLive(t *testing.T) {
	store, clock := openTestFileStore(t)
	ctx := context.Background()

	calls := 0
	produce := func(ctx context.Context) (string, error) {
		calls++
		return "computed", nil
	}

	for i := 0; i < 3; i++ {
		got, err := Remember(ctx, store, "expensive", time.Minute, produce)
		require.NoError(t, err)
		require.Equal(t, "computed", got)
	}
	require.Equal(t, 1, calls)

	clock.Advance(2 * time.Minute)
	got, err := Remember(ctx, store, "expensive", time.Minute, produce)
	require.NoError(t, err)
	require.Equal(t, "computed", got)
	require.Equal(t, 2, calls, "expiry should force one recompute")
}

func TestRememberProducerErrorIsNotCached(t *testing.T) {
	store, _ := openTestFileStore(t)
	ctx := context.Background()

	boom := func(ctx context.Context) (int, error) {
		return 0, os.ErrDeadlineExceeded
	}
	_, err := Remember(ctx, store, "k", time.Minute, boom)
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found, "a failed producer must not leave a cached entry")
}

func TestRememberUndecodablePayloadRecomputes(t *testing.T) {
	store, _ := openTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("not json"), time.Hour))

	got, err := Remember(ctx, store, "k", time.Hour, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, got)

	// The recompute overwrote the bad payload.
	raw, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "42", string(raw))
}

func TestDeriveKeyStableAndCollisionFree(t *testing.T) {
	require.Equal(t, DeriveKey("post:7"), DeriveKey("post:7"))
	require.NotEqual(t, DeriveKey("post:7"), DeriveKey("post:70"))
	require.Len(t, DeriveKey(""), 64)
}
