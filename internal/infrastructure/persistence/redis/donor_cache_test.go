package redis

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodlink/donor-hub/internal/application/command"
	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
	"github.com/bloodlink/donor-hub/internal/infrastructure/persistence/memory"
	"github.com/bloodlink/donor-hub/pkg/circuitbreaker"
	"github.com/bloodlink/donor-hub/pkg/timeutil"
)

// fakeKV stores JSON like Cache does, without a server.
type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	hits int
	down bool
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string][]byte{}} }

func (f *fakeKV) Get(_ context.Context, key string, dest any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.down {
		return errors.New("connection refused")
	}
	raw, ok := f.data[key]
	if !ok {
		return ErrCacheMiss
	}
	f.hits++
	return json.Unmarshal(raw, dest)
}

func (f *fakeKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = raw
	return nil
}

func (f *fakeKV) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func seededStore() *memory.Store {
	s := memory.NewStore()
	last := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	s.PutDonor(&donor.Donor{ID: "d1", BloodGroup: donor.BloodGroupBPos, Location: "Astana", LastDonationDate: &last, AvgRating: 4.5, RatingCount: 2, Status: donor.StatusActive})
	return s
}

func TestDonorKey(t *testing.T) {
	assert.Equal(t, "donor:d1", DonorKey("d1"))
}

func TestDonorCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	c := NewDonorCache(seededStore(), kv, time.Minute, nil)

	first, err := c.GetDonor(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, kv.has("donor:d1"))

	second, err := c.GetDonor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, kv.hits)
	assert.Equal(t, first.AvgRating, second.AvgRating)
	assert.True(t, first.LastDonationDate.Equal(*second.LastDonationDate))
}

func TestDonorCache_MissingDonorNotCached(t *testing.T) {
	kv := newFakeKV()
	c := NewDonorCache(seededStore(), kv, time.Minute, nil)

	_, err := c.GetDonor(context.Background(), "ghost")
	assert.True(t, shared.IsNotFound(err))
	assert.False(t, kv.has("donor:ghost"))
}

func TestDonorCache_UpdateEvicts(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	c := NewDonorCache(seededStore(), kv, time.Minute, nil)

	_, err := c.GetDonor(ctx, "d1")
	require.NoError(t, err)

	avg, count := 3.0, 3
	_, err = c.UpdateDonor(ctx, "d1", donor.Patch{AvgRating: &avg, RatingCount: &count})
	require.NoError(t, err)
	assert.False(t, kv.has("donor:d1"))

	d, err := c.GetDonor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 3, d.RatingCount)
}

func TestDonorCache_TxWritesEvictedAfterCommit(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	c := NewDonorCache(seededStore(), kv, time.Minute, nil)

	_, err := c.GetDonor(ctx, "d1")
	require.NoError(t, err)
	getsBefore := kv.gets

	err = c.WithinTx(ctx, func(ctx context.Context, tx request.Store) error {
		d, err := tx.GetDonor(ctx, "d1")
		if err != nil {
			return err
		}
		avg, count, err := donor.Fold(d.AvgRating, d.RatingCount, 1)
		if err != nil {
			return err
		}
		_, err = tx.UpdateDonor(ctx, "d1", donor.Patch{AvgRating: &avg, RatingCount: &count})
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, getsBefore, kv.gets, "reads inside a transaction bypass the cache")
	assert.False(t, kv.has("donor:d1"))

	d, err := c.GetDonor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 3, d.RatingCount)
	assert.InDelta(t, 10.0/3.0, d.AvgRating, 1e-9)
}

func TestDonorCache_ReadErrorFallsBackToStore(t *testing.T) {
	kv := newFakeKV()
	kv.down = true
	c := NewDonorCache(seededStore(), kv, time.Minute, nil)

	d, err := c.GetDonor(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, donor.ID("d1"), d.ID)
}

func TestDonorCache_CreateSeesBackingStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	store.PutDonor(&donor.Donor{ID: "d1", BloodGroup: donor.BloodGroupBPos, Location: "Astana", Status: donor.StatusActive})
	kv := newFakeKV()
	c := NewDonorCache(store, kv, time.Minute, nil)
	lc := command.NewLifecycle(c, command.WithClock(timeutil.ClockFunc(func() time.Time { return now })))

	// Прогреваем кэш активным профилем.
	_, err := c.GetDonor(ctx, "d1")
	require.NoError(t, err)
	require.True(t, kv.has("donor:d1"))

	store.PutDonor(&donor.Donor{ID: "d1", BloodGroup: donor.BloodGroupBPos, Location: "Astana", Status: donor.StatusSuspended})
	_, err = lc.Create(ctx, command.CreateRequestCommand{RequesterID: "r1", DonorID: "d1"})
	assert.True(t, errors.Is(err, shared.ErrUnauthorized), "suspension must be seen despite the cached copy: %v", err)

	last := now.Add(-24 * time.Hour)
	store.PutDonor(&donor.Donor{ID: "d1", BloodGroup: donor.BloodGroupBPos, Location: "Astana", Status: donor.StatusActive, LastDonationDate: &last})
	_, err = lc.Create(ctx, command.CreateRequestCommand{RequesterID: "r1", DonorID: "d1"})
	assert.True(t, errors.Is(err, shared.ErrDonorNotEligible), "fresh donation must be seen despite the cached copy: %v", err)

	pending, err := store.FindPendingRequest(ctx, "r1", "d1")
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestDonorCache_BreakerSkipsFailingRedis(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	kv.down = true
	c := NewDonorCache(seededStore(), kv, time.Minute, nil)

	for i := 0; i < 5; i++ {
		d, err := c.GetDonor(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, donor.ID("d1"), d.ID)
	}

	assert.Equal(t, circuitbreaker.StateOpen, c.Breaker().State())
	assert.Equal(t, 2, kv.gets, "reads stop hitting redis once the breaker opens")
}

func TestDonorCache_MissesDoNotOpenBreaker(t *testing.T) {
	ctx := context.Background()
	c := NewDonorCache(seededStore(), newFakeKV(), time.Minute, nil)

	for i := 0; i < 5; i++ {
		_, err := c.GetDonor(ctx, "ghost")
		assert.True(t, shared.IsNotFound(err))
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.Breaker().State())
}

func TestCache_Integration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if testing.Short() || addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	cache := NewCacheFromClient(client)
	defer cache.Close()
	require.NoError(t, cache.Ping(ctx))

	key := DonorKey("integration-" + time.Now().Format("150405.000000"))
	defer cache.Delete(ctx, key)

	in := &donor.Donor{ID: "x", BloodGroup: donor.BloodGroupABNeg, Location: "Shymkent", Status: donor.StatusActive}
	require.NoError(t, cache.Set(ctx, key, in, time.Minute))

	var out donor.Donor
	require.NoError(t, cache.Get(ctx, key, &out))
	assert.Equal(t, in.BloodGroup, out.BloodGroup)

	require.NoError(t, cache.Delete(ctx, key))
	assert.ErrorIs(t, cache.Get(ctx, key, &out), ErrCacheMiss)

	assert.ErrorIs(t, cache.Set(ctx, "", in, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Set(ctx, key, in, -time.Second), ErrCacheInvalidTTL)
}
