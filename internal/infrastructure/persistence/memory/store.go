// Package memory implements an in-process store for Donor Hub.
// It is the reference adapter for tests and for running without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
)

// Store keeps donors and requests in maps guarded by one mutex.
// Every method returns copies; callers never alias stored records.
type Store struct {
	mu       sync.Mutex
	donors   map[donor.ID]*donor.Donor
	requests map[request.ID]*request.BloodRequest
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		donors:   make(map[donor.ID]*donor.Donor),
		requests: make(map[request.ID]*request.BloodRequest),
	}
}

// PutDonor inserts or replaces a donor. Used for seeding.
func (s *Store) PutDonor(d *donor.Donor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donors[d.ID] = d.Clone()
}

// ══════════════════════════════════════════════════════════════════════════════
// LOCKED API
// ══════════════════════════════════════════════════════════════════════════════

// GetDonor implements donor.Repository.
func (s *Store) GetDonor(ctx context.Context, id donor.ID) (*donor.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*state)(s).GetDonor(ctx, id)
}

// FindDonors implements donor.Repository.
func (s *Store) FindDonors(ctx context.Context, filter donor.Filter) ([]*donor.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*state)(s).FindDonors(ctx, filter)
}

// FindRestored implements donor.Repository.
func (s *Store) FindRestored(ctx context.Context, from, to time.Time) ([]*donor.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*state)(s).FindRestored(ctx, from, to)
}

// UpdateDonor implements donor.Repository.
func (s *Store) UpdateDonor(ctx context.Context, id donor.ID, patch donor.Patch) (*donor.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*state)(s).UpdateDonor(ctx, id, patch)
}

// GetRequest implements request.Repository.
func (s *Store) GetRequest(ctx context.Context, id request.ID) (*request.BloodRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*state)(s).GetRequest(ctx, id)
}

// InsertRequest implements request.Repository.
func (s *Store) InsertRequest(ctx context.Context, r *request.BloodRequest) (*request.BloodRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*state)(s).InsertRequest(ctx, r)
}

// UpdateRequestStatus implements request.Repository.
func (s *Store) UpdateRequestStatus(ctx context.Context, id request.ID, expected request.Status, patch request.Patch) (*request.BloodRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*state)(s).UpdateRequestStatus(ctx, id, expected, patch)
}

// FindPendingRequest implements request.Repository.
func (s *Store) FindPendingRequest(ctx context.Context, requesterID, donorID donor.ID) (*request.BloodRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*state)(s).FindPendingRequest(ctx, requesterID, donorID)
}

// WithinTx holds the store lock for the whole callback. Writes are applied
// to the live maps and rolled back from a snapshot if fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx request.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	donors := make(map[donor.ID]*donor.Donor, len(s.donors))
	for id, d := range s.donors {
		donors[id] = d.Clone()
	}
	requests := make(map[request.ID]*request.BloodRequest, len(s.requests))
	for id, r := range s.requests {
		requests[id] = r.Clone()
	}

	if err := fn(ctx, (*state)(s)); err != nil {
		s.donors = donors
		s.requests = requests
		return err
	}
	return nil
}

var _ request.Store = (*Store)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCKED STATE
// ══════════════════════════════════════════════════════════════════════════════

// state is the same data viewed without locking. The caller holds s.mu.
type state Store

var _ request.Store = (*state)(nil)

func (st *state) GetDonor(_ context.Context, id donor.ID) (*donor.Donor, error) {
	d, ok := st.donors[id]
	if !ok {
		return nil, shared.ErrDonorNotFound
	}
	return d.Clone(), nil
}

func (st *state) FindDonors(_ context.Context, filter donor.Filter) ([]*donor.Donor, error) {
	out := make([]*donor.Donor, 0)
	for _, d := range st.donors {
		if d.IsActive() && filter.Matches(d) {
			out = append(out, d.Clone())
		}
	}
	sortByRating(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (st *state) FindRestored(_ context.Context, from, to time.Time) ([]*donor.Donor, error) {
	out := make([]*donor.Donor, 0)
	for _, d := range st.donors {
		if !d.IsActive() || d.LastDonationDate == nil {
			continue
		}
		last := *d.LastDonationDate
		if last.After(from) && !last.After(to) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *state) UpdateDonor(_ context.Context, id donor.ID, patch donor.Patch) (*donor.Donor, error) {
	d, ok := st.donors[id]
	if !ok {
		return nil, shared.ErrDonorNotFound
	}
	patch.Apply(d)
	return d.Clone(), nil
}

func (st *state) GetRequest(_ context.Context, id request.ID) (*request.BloodRequest, error) {
	r, ok := st.requests[id]
	if !ok {
		return nil, shared.ErrRequestNotFound
	}
	return r.Clone(), nil
}

func (st *state) InsertRequest(_ context.Context, r *request.BloodRequest) (*request.BloodRequest, error) {
	if _, exists := st.requests[r.ID]; exists {
		return nil, shared.NewDomainError("request", "Insert", shared.ErrInvalidInput, "request id already exists")
	}
	if r.Status == request.StatusPending && st.pending(r.RequesterID, r.DonorID) != nil {
		return nil, shared.ErrDuplicatePending
	}
	st.requests[r.ID] = r.Clone()
	return r.Clone(), nil
}

func (st *state) UpdateRequestStatus(_ context.Context, id request.ID, expected request.Status, patch request.Patch) (*request.BloodRequest, error) {
	r, ok := st.requests[id]
	if !ok {
		return nil, shared.ErrRequestNotFound
	}
	if r.Status != expected {
		return nil, shared.ErrRequestConflict
	}
	patch.Apply(r)
	return r.Clone(), nil
}

func (st *state) FindPendingRequest(_ context.Context, requesterID, donorID donor.ID) (*request.BloodRequest, error) {
	return st.pending(requesterID, donorID).Clone(), nil
}

// WithinTx on the unlocked view runs fn inline; nesting joins the outer unit.
func (st *state) WithinTx(ctx context.Context, fn func(ctx context.Context, tx request.Store) error) error {
	return fn(ctx, st)
}

func (st *state) pending(requesterID, donorID donor.ID) *request.BloodRequest {
	for _, r := range st.requests {
		if r.RequesterID == requesterID && r.DonorID == donorID && r.Status == request.StatusPending {
			return r
		}
	}
	return nil
}

// sortByRating orders by AvgRating descending, then ID ascending.
func sortByRating(ds []*donor.Donor) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].AvgRating != ds[j].AvgRating {
			return ds[i].AvgRating > ds[j].AvgRating
		}
		return ds[i].ID < ds[j].ID
	})
}
