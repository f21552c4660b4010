package command_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/bloodlink/donor-hub/internal/application/command"
	"github.com/bloodlink/donor-hub/internal/application/query"
	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
	"github.com/bloodlink/donor-hub/internal/infrastructure/persistence/memory"
	"github.com/bloodlink/donor-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type LifecycleSuite struct {
	suite.Suite

	ctx       context.Context
	now       time.Time
	store     *memory.Store
	publisher *recordingPublisher
	lifecycle *command.Lifecycle
	seq       int64
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.store = memory.NewStore()
	s.publisher = &recordingPublisher{}
	s.seq = 0

	s.store.PutDonor(&donor.Donor{ID: "requester", BloodGroup: donor.BloodGroupAPos, Location: "Almaty", Status: donor.StatusActive})
	s.store.PutDonor(&donor.Donor{ID: "donor", BloodGroup: donor.BloodGroupONeg, Location: "Almaty", Status: donor.StatusActive})

	s.lifecycle = command.NewLifecycle(s.store,
		command.WithClock(timeutil.ClockFunc(func() time.Time { return s.now })),
		command.WithPublisher(s.publisher),
		command.WithIDGenerator(func() request.ID {
			n := atomic.AddInt64(&s.seq, 1)
			return request.ID(fmt.Sprintf("req-%d", n))
		}),
	)
}

func (s *LifecycleSuite) create() *request.BloodRequest {
	r, err := s.lifecycle.Create(s.ctx, command.CreateRequestCommand{RequesterID: "requester", DonorID: "donor"})
	s.Require().NoError(err)
	return r
}

func rating(v int) *int { return &v }

// ══════════════════════════════════════════════════════════════════════════════
// CREATE
// ══════════════════════════════════════════════════════════════════════════════

func (s *LifecycleSuite) TestCreate_Pending() {
	r := s.create()

	s.Equal(request.StatusPending, r.Status)
	s.Equal(donor.ID("requester"), r.RequesterID)
	s.Equal(donor.ID("donor"), r.DonorID)
	s.Equal(s.now, r.CreatedAt)
	s.Equal([]shared.EventType{shared.EventRequestCreated}, s.publisher.types())
}

func (s *LifecycleSuite) TestCreate_SelfRequestNeverInserts() {
	_, err := s.lifecycle.Create(s.ctx, command.CreateRequestCommand{RequesterID: "donor", DonorID: "donor"})
	s.True(errors.Is(err, shared.ErrSelfRequest))

	pending, err := s.store.FindPendingRequest(s.ctx, "donor", "donor")
	s.Require().NoError(err)
	s.Nil(pending)
	s.Empty(s.publisher.types())
}

func (s *LifecycleSuite) TestCreate_UnknownDonor() {
	_, err := s.lifecycle.Create(s.ctx, command.CreateRequestCommand{RequesterID: "requester", DonorID: "ghost"})
	s.True(errors.Is(err, shared.ErrNotFound))
}

func (s *LifecycleSuite) TestCreate_SuspendedParticipants() {
	s.store.PutDonor(&donor.Donor{ID: "banned", BloodGroup: donor.BloodGroupBPos, Status: donor.StatusSuspended})

	_, err := s.lifecycle.Create(s.ctx, command.CreateRequestCommand{RequesterID: "requester", DonorID: "banned"})
	s.True(errors.Is(err, shared.ErrUnauthorized))

	_, err = s.lifecycle.Create(s.ctx, command.CreateRequestCommand{RequesterID: "banned", DonorID: "donor"})
	s.True(errors.Is(err, shared.ErrUnauthorized))
}

func (s *LifecycleSuite) TestCreate_RequesterWithoutProfile() {
	r, err := s.lifecycle.Create(s.ctx, command.CreateRequestCommand{RequesterID: "walk-in", DonorID: "donor"})
	s.Require().NoError(err)
	s.Equal(request.StatusPending, r.Status)
}

func (s *LifecycleSuite) TestCreate_DonorInCooldown() {
	last := s.now.Add(-89 * 24 * time.Hour)
	s.store.PutDonor(&donor.Donor{ID: "recent", BloodGroup: donor.BloodGroupAPos, Status: donor.StatusActive, LastDonationDate: &last})

	_, err := s.lifecycle.Create(s.ctx, command.CreateRequestCommand{RequesterID: "requester", DonorID: "recent"})
	s.True(errors.Is(err, shared.ErrDonorNotEligible))

	days, ok := shared.DaysUntilEligible(err)
	s.True(ok)
	s.Equal(1, days)
}

func (s *LifecycleSuite) TestCreate_DuplicatePending() {
	s.create()

	_, err := s.lifecycle.Create(s.ctx, command.CreateRequestCommand{RequesterID: "requester", DonorID: "donor"})
	s.True(errors.Is(err, shared.ErrDuplicatePending))
}

func (s *LifecycleSuite) TestCreate_AfterTerminalPairIsFree() {
	r := s.create()
	_, err := s.lifecycle.Reject(s.ctx, command.RespondCommand{RequestID: r.ID, ActorID: "donor"})
	s.Require().NoError(err)

	again := s.create()
	s.NotEqual(r.ID, again.ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

func (s *LifecycleSuite) TestAccept_OnlyDonor() {
	r := s.create()

	_, err := s.lifecycle.Accept(s.ctx, command.RespondCommand{RequestID: r.ID, ActorID: "requester"})
	s.True(errors.Is(err, shared.ErrUnauthorized))

	accepted, err := s.lifecycle.Accept(s.ctx, command.RespondCommand{RequestID: r.ID, ActorID: "donor"})
	s.Require().NoError(err)
	s.Equal(request.StatusAccepted, accepted.Status)
}

func (s *LifecycleSuite) TestReject_StoresNote() {
	r := s.create()

	rejected, err := s.lifecycle.Reject(s.ctx, command.RespondCommand{RequestID: r.ID, ActorID: "donor", Note: "travelling"})
	s.Require().NoError(err)
	s.Equal(request.StatusRejected, rejected.Status)
	s.Equal("travelling", rejected.Note)
}

func (s *LifecycleSuite) TestCancel_OnlyRequester() {
	r := s.create()

	_, err := s.lifecycle.Cancel(s.ctx, command.CancelCommand{RequestID: r.ID, ActorID: "donor"})
	s.True(errors.Is(err, shared.ErrUnauthorized))

	cancelled, err := s.lifecycle.Cancel(s.ctx, command.CancelCommand{RequestID: r.ID, ActorID: "requester", Note: "found blood"})
	s.Require().NoError(err)
	s.Equal(request.StatusCancelled, cancelled.Status)
	s.Equal("found blood", cancelled.Note)
}

func (s *LifecycleSuite) TestCancel_AcceptedIsInvalid() {
	r := s.create()
	_, err := s.lifecycle.Accept(s.ctx, command.RespondCommand{RequestID: r.ID, ActorID: "donor"})
	s.Require().NoError(err)

	_, err = s.lifecycle.Cancel(s.ctx, command.CancelCommand{RequestID: r.ID, ActorID: "requester"})
	s.True(errors.Is(err, shared.ErrInvalidTransition))
}

func (s *LifecycleSuite) TestTransition_UnknownRequest() {
	_, err := s.lifecycle.Accept(s.ctx, command.RespondCommand{RequestID: "nope", ActorID: "donor"})
	s.True(errors.Is(err, shared.ErrNotFound))
}

func (s *LifecycleSuite) TestTerminalStatesRejectEverything() {
	terminal := map[string]func(id request.ID){
		"rejected": func(id request.ID) {
			_, err := s.lifecycle.Reject(s.ctx, command.RespondCommand{RequestID: id, ActorID: "donor"})
			s.Require().NoError(err)
		},
		"cancelled": func(id request.ID) {
			_, err := s.lifecycle.Cancel(s.ctx, command.CancelCommand{RequestID: id, ActorID: "requester"})
			s.Require().NoError(err)
		},
		"completed": func(id request.ID) {
			_, err := s.lifecycle.Complete(s.ctx, command.CompleteCommand{RequestID: id, ActorID: "requester", Rating: rating(5)})
			s.Require().NoError(err)
		},
	}

	for name, finish := range terminal {
		s.Run(name, func() {
			s.SetupTest()
			r := s.create()
			finish(r.ID)

			before, err := s.store.GetRequest(s.ctx, r.ID)
			s.Require().NoError(err)
			donorBefore, err := s.store.GetDonor(s.ctx, "donor")
			s.Require().NoError(err)

			_, err = s.lifecycle.Accept(s.ctx, command.RespondCommand{RequestID: r.ID, ActorID: "donor"})
			s.True(errors.Is(err, shared.ErrInvalidTransition))
			_, err = s.lifecycle.Reject(s.ctx, command.RespondCommand{RequestID: r.ID, ActorID: "donor"})
			s.True(errors.Is(err, shared.ErrInvalidTransition))
			_, err = s.lifecycle.Cancel(s.ctx, command.CancelCommand{RequestID: r.ID, ActorID: "requester"})
			s.True(errors.Is(err, shared.ErrInvalidTransition))
			_, err = s.lifecycle.Complete(s.ctx, command.CompleteCommand{RequestID: r.ID, ActorID: "requester", Rating: rating(3)})
			s.True(errors.Is(err, shared.ErrInvalidTransition))

			after, err := s.store.GetRequest(s.ctx, r.ID)
			s.Require().NoError(err)
			donorAfter, err := s.store.GetDonor(s.ctx, "donor")
			s.Require().NoError(err)
			s.Equal(before, after)
			s.Equal(donorBefore, donorAfter)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE
// ══════════════════════════════════════════════════════════════════════════════

func (s *LifecycleSuite) TestComplete_DonorIsUnauthorized() {
	r := s.create()

	_, err := s.lifecycle.Complete(s.ctx, command.CompleteCommand{RequestID: r.ID, ActorID: "donor", Rating: rating(5)})
	s.True(errors.Is(err, shared.ErrUnauthorized))
	s.Contains(err.Error(), "only the requester can mark this request as completed")
}

func (s *LifecycleSuite) TestComplete_RatingRequired() {
	r := s.create()

	for _, bad := range []*int{nil, rating(0), rating(6)} {
		_, err := s.lifecycle.Complete(s.ctx, command.CompleteCommand{RequestID: r.ID, ActorID: "requester", Rating: bad})
		s.True(errors.Is(err, shared.ErrInvalidRating))
	}

	still, err := s.store.GetRequest(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusPending, still.Status)
}

func (s *LifecycleSuite) TestComplete_FromAccepted() {
	r := s.create()
	_, err := s.lifecycle.Accept(s.ctx, command.RespondCommand{RequestID: r.ID, ActorID: "donor"})
	s.Require().NoError(err)

	done, err := s.lifecycle.Complete(s.ctx, command.CompleteCommand{RequestID: r.ID, ActorID: "requester", Rating: rating(2)})
	s.Require().NoError(err)
	s.Equal(request.StatusCompleted, done.Status)
	s.Equal(2, *done.Rating)
	s.Equal([]shared.EventType{
		shared.EventRequestCreated,
		shared.EventRequestAccepted,
		shared.EventRequestCompleted,
	}, s.publisher.types())
}

func (s *LifecycleSuite) TestPublishFailureDoesNotFailOperation() {
	s.publisher.err = errors.New("bus down")
	r := s.create()
	s.Equal(request.StatusPending, r.Status)
}

// End-to-end: create, complete with rating 4, then search at +1 and +91 days.
func (s *LifecycleSuite) TestEndToEnd() {
	r := s.create()

	done, err := s.lifecycle.Complete(s.ctx, command.CompleteCommand{RequestID: r.ID, ActorID: "requester", Rating: rating(4)})
	s.Require().NoError(err)
	s.Equal(request.StatusCompleted, done.Status)
	s.Equal(4, *done.Rating)

	d, err := s.store.GetDonor(s.ctx, "donor")
	s.Require().NoError(err)
	s.Require().NotNil(d.LastDonationDate)
	s.Equal(s.now, *d.LastDonationDate)
	s.Equal(4.0, d.AvgRating)
	s.Equal(1, d.RatingCount)

	search := query.NewSearchDonorsHandler(s.store, nil, nil)
	q := query.SearchDonorsQuery{BloodGroup: "O-"}

	soon, err := search.HandleAt(s.ctx, q, s.now.Add(24*time.Hour))
	s.Require().NoError(err)
	s.Empty(soon)

	later, err := search.HandleAt(s.ctx, q, s.now.Add(91*24*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(later, 1)
	s.Equal(donor.ID("donor"), later[0].Donor.ID)
	s.True(later[0].Eligible)
	s.Equal(0, later[0].DaysUntilEligible)
	s.Equal(4.0, later[0].Donor.AvgRating)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONCURRENCY
// ══════════════════════════════════════════════════════════════════════════════

func TestAccept_ConcurrentOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutDonor(&donor.Donor{ID: "donor", BloodGroup: donor.BloodGroupONeg, Status: donor.StatusActive})
	lc := command.NewLifecycle(store)

	r, err := lc.Create(ctx, command.CreateRequestCommand{RequesterID: "requester", DonorID: "donor"})
	require.NoError(t, err)

	const workers = 20
	var (
		wg       sync.WaitGroup
		wins     int64
		invalids int64
	)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := lc.Accept(ctx, command.RespondCommand{RequestID: r.ID, ActorID: "donor"})
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case errors.Is(err, shared.ErrInvalidTransition):
				atomic.AddInt64(&invalids, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	assert.Equal(t, int64(workers-1), invalids)
}

func TestComplete_ConcurrentSameDonorKeepsEveryRating(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutDonor(&donor.Donor{ID: "donor", BloodGroup: donor.BloodGroupONeg, Status: donor.StatusActive})
	lc := command.NewLifecycle(store)

	const requesters = 10
	ids := make([]request.ID, 0, requesters)
	for i := 0; i < requesters; i++ {
		r, err := lc.Create(ctx, command.CreateRequestCommand{
			RequesterID: donor.ID(fmt.Sprintf("requester-%d", i)),
			DonorID:     "donor",
		})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id request.ID) {
			defer wg.Done()
			_, err := lc.Complete(ctx, command.CompleteCommand{
				RequestID: id,
				ActorID:   donor.ID(fmt.Sprintf("requester-%d", i)),
				Rating:    rating(i%5 + 1),
			})
			assert.NoError(t, err)
		}(i, id)
	}
	wg.Wait()

	d, err := store.GetDonor(ctx, "donor")
	require.NoError(t, err)
	assert.Equal(t, requesters, d.RatingCount)
	assert.InDelta(t, 3.0, d.AvgRating, 1e-9)
}

// eligibilityAuditStore re-reads the donor at the moment a request is
// inserted and counts inserts against a donor in cooldown.
type eligibilityAuditStore struct {
	request.Store
	now        time.Time
	violations *int64
}

func (s *eligibilityAuditStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx request.Store) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx request.Store) error {
		return fn(ctx, &eligibilityAuditStore{Store: tx, now: s.now, violations: s.violations})
	})
}

func (s *eligibilityAuditStore) InsertRequest(ctx context.Context, r *request.BloodRequest) (*request.BloodRequest, error) {
	d, err := s.Store.GetDonor(ctx, r.DonorID)
	if err == nil && !d.IsEligible(s.now) {
		atomic.AddInt64(s.violations, 1)
	}
	return s.Store.InsertRequest(ctx, r)
}

func TestCreate_RacingCompleteNeverInsertsForDonorInCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := timeutil.ClockFunc(func() time.Time { return now })

	var violations int64
	for round := 0; round < 50; round++ {
		store := memory.NewStore()
		store.PutDonor(&donor.Donor{ID: "donor", BloodGroup: donor.BloodGroupONeg, Status: donor.StatusActive})
		audited := &eligibilityAuditStore{Store: store, now: now, violations: &violations}
		lc := command.NewLifecycle(audited, command.WithClock(clock))

		first, err := lc.Create(ctx, command.CreateRequestCommand{RequesterID: "r1", DonorID: "donor"})
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			createErr error
		)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, err := lc.Complete(ctx, command.CompleteCommand{RequestID: first.ID, ActorID: "r1", Rating: rating(5)})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, createErr = lc.Create(ctx, command.CreateRequestCommand{RequesterID: "r2", DonorID: "donor"})
		}()
		close(start)
		wg.Wait()

		if createErr != nil {
			assert.True(t, errors.Is(createErr, shared.ErrDonorNotEligible), "round %d: %v", round, createErr)
			pending, err := store.FindPendingRequest(ctx, "r2", "donor")
			require.NoError(t, err)
			assert.Nil(t, pending)
		}
	}
	assert.Zero(t, atomic.LoadInt64(&violations))
}
