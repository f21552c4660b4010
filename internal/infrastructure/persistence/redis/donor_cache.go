package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/pkg/circuitbreaker"
	"github.com/bloodlink/donor-hub/pkg/logger"
)

// KV is the subset of Cache used by DonorCache.
type KV interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

var _ KV = (*Cache)(nil)

// DonorCache is a request.Store decorator that serves GetDonor from Redis.
//
// Only single-profile reads are cached. Searches, request operations and
// everything inside WithinTx go straight to the inner store, so eligibility
// decisions under a transaction always see committed rows. Donors written
// through the decorator are evicted; writes made inside a transaction are
// evicted after it returns.
//
// Reads and fills go through a circuit breaker: after a few Redis failures
// the cache is skipped entirely until a probe succeeds. Evictions always
// reach Redis.
type DonorCache struct {
	inner   request.Store
	kv      KV
	ttl     time.Duration
	log     *logger.Logger
	breaker *circuitbreaker.CircuitBreaker
}

// NewDonorCache wraps inner. A non-positive ttl falls back to TTLDonorCache.
func NewDonorCache(inner request.Store, kv KV, ttl time.Duration, log *logger.Logger) *DonorCache {
	if ttl <= 0 {
		ttl = TTLDonorCache
	}
	if log == nil {
		log = logger.Nop()
	}
	c := &DonorCache{
		inner: inner,
		kv:    kv,
		ttl:   ttl,
		log:   log.With(logger.Component("donor_cache")),
	}
	c.breaker = circuitbreaker.CacheBreaker("donor-cache",
		func(err error) bool { return !errors.Is(err, ErrCacheMiss) },
		func(name string, from, to circuitbreaker.State) {
			c.log.Warn("cache breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	)
	return c
}

// Breaker exposes the read breaker.
func (c *DonorCache) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

var _ request.Store = (*DonorCache)(nil)

// GetDonor implements donor.Repository with read-through caching.
// Cache failures degrade to a store read.
func (c *DonorCache) GetDonor(ctx context.Context, id donor.ID) (*donor.Donor, error) {
	key := DonorKey(string(id))

	var cached donor.Donor
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.kv.Get(ctx, key, &cached)
	})
	switch {
	case err == nil:
		return &cached, nil
	case errors.Is(err, ErrCacheMiss), circuitbreaker.Rejected(err):
	default:
		c.log.Warn("donor cache read failed", logger.DonorID(string(id)), logger.Err(err))
	}

	d, err := c.inner.GetDonor(ctx, id)
	if err != nil {
		return nil, err
	}
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.kv.Set(ctx, key, d, c.ttl)
	})
	if err != nil && !circuitbreaker.Rejected(err) {
		c.log.Warn("donor cache fill failed", logger.DonorID(string(id)), logger.Err(err))
	}
	return d, nil
}

// FindDonors implements donor.Repository. Never cached.
func (c *DonorCache) FindDonors(ctx context.Context, filter donor.Filter) ([]*donor.Donor, error) {
	return c.inner.FindDonors(ctx, filter)
}

// FindRestored implements donor.Repository. Never cached.
func (c *DonorCache) FindRestored(ctx context.Context, from, to time.Time) ([]*donor.Donor, error) {
	return c.inner.FindRestored(ctx, from, to)
}

// UpdateDonor implements donor.Repository and evicts the profile.
func (c *DonorCache) UpdateDonor(ctx context.Context, id donor.ID, patch donor.Patch) (*donor.Donor, error) {
	d, err := c.inner.UpdateDonor(ctx, id, patch)
	c.evict(ctx, id)
	return d, err
}

func (c *DonorCache) GetRequest(ctx context.Context, id request.ID) (*request.BloodRequest, error) {
	return c.inner.GetRequest(ctx, id)
}

func (c *DonorCache) InsertRequest(ctx context.Context, r *request.BloodRequest) (*request.BloodRequest, error) {
	return c.inner.InsertRequest(ctx, r)
}

func (c *DonorCache) UpdateRequestStatus(ctx context.Context, id request.ID, expected request.Status, patch request.Patch) (*request.BloodRequest, error) {
	return c.inner.UpdateRequestStatus(ctx, id, expected, patch)
}

func (c *DonorCache) FindPendingRequest(ctx context.Context, requesterID, donorID donor.ID) (*request.BloodRequest, error) {
	return c.inner.FindPendingRequest(ctx, requesterID, donorID)
}

// WithinTx implements request.Store. The callback talks to the inner
// transaction directly; donors it updates are evicted once it finishes,
// whether or not it committed.
func (c *DonorCache) WithinTx(ctx context.Context, fn func(ctx context.Context, tx request.Store) error) error {
	touched := &touchedDonors{}
	err := c.inner.WithinTx(ctx, func(ctx context.Context, tx request.Store) error {
		return fn(ctx, &trackingTx{Store: tx, touched: touched})
	})
	for _, id := range touched.list() {
		c.evict(ctx, id)
	}
	return err
}

func (c *DonorCache) evict(ctx context.Context, id donor.ID) {
	if err := c.kv.Delete(ctx, DonorKey(string(id))); err != nil {
		c.log.Warn("donor cache eviction failed", logger.DonorID(string(id)), logger.Err(err))
	}
}

// trackingTx records donor updates made inside a transaction.
type trackingTx struct {
	request.Store
	touched *touchedDonors
}

func (t *trackingTx) UpdateDonor(ctx context.Context, id donor.ID, patch donor.Patch) (*donor.Donor, error) {
	t.touched.add(id)
	return t.Store.UpdateDonor(ctx, id, patch)
}

func (t *trackingTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx request.Store) error) error {
	return fn(ctx, t)
}

type touchedDonors struct {
	mu  sync.Mutex
	ids []donor.ID
}

func (t *touchedDonors) add(id donor.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids = append(t.ids, id)
}

func (t *touchedDonors) list() []donor.ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]donor.ID(nil), t.ids...)
}
