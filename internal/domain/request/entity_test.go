package request

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodlink/donor-hub/internal/domain/shared"
)

func TestCanTransition(t *testing.T) {
	legal := map[Status][]Status{
		StatusPending:  {StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted},
		StatusAccepted: {StatusCompleted},
	}
	all := []Status{StatusPending, StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range legal[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusAccepted.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, Status("archived").IsValid())
}

func TestNewBloodRequest(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	r, err := NewBloodRequest(NewParams{ID: "r1", RequesterID: "alice", DonorID: "bob", Now: now})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, now, r.CreatedAt)
	assert.Nil(t, r.Rating)

	_, err = NewBloodRequest(NewParams{ID: "r2", RequesterID: "bob", DonorID: "bob", Now: now})
	assert.True(t, errors.Is(err, shared.ErrSelfRequest))

	_, err = NewBloodRequest(NewParams{ID: "", RequesterID: "a", DonorID: "b", Now: now})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestAuthorize(t *testing.T) {
	r := &BloodRequest{ID: "r1", RequesterID: "alice", DonorID: "bob", Status: StatusPending}

	assert.NoError(t, r.Authorize("bob", StatusAccepted))
	assert.NoError(t, r.Authorize("bob", StatusRejected))
	assert.NoError(t, r.Authorize("alice", StatusCancelled))
	assert.NoError(t, r.Authorize("alice", StatusCompleted))

	err := r.Authorize("bob", StatusCompleted)
	assert.True(t, errors.Is(err, shared.ErrUnauthorized))
	assert.Contains(t, err.Error(), "only the requester can mark this request as completed")

	assert.True(t, errors.Is(r.Authorize("alice", StatusAccepted), shared.ErrUnauthorized))
	assert.True(t, errors.Is(r.Authorize("bob", StatusCancelled), shared.ErrUnauthorized))
	assert.True(t, errors.Is(r.Authorize("mallory", StatusRejected), shared.ErrUnauthorized))
	assert.True(t, errors.Is(r.Authorize("alice", StatusPending), shared.ErrInvalidTransition))
}

func TestCheckTransition(t *testing.T) {
	r := &BloodRequest{Status: StatusAccepted}
	assert.NoError(t, r.CheckTransition(StatusCompleted))
	assert.True(t, errors.Is(r.CheckTransition(StatusRejected), shared.ErrInvalidTransition))
}

func TestPatchApplyAndClone(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	r := &BloodRequest{ID: "r1", Status: StatusPending}
	c := r.Clone()

	rating := 4
	Patch{Status: StatusCompleted, Rating: &rating, UpdatedAt: now}.Apply(c)

	assert.Equal(t, StatusCompleted, c.Status)
	require.NotNil(t, c.Rating)
	assert.Equal(t, 4, *c.Rating)
	assert.Equal(t, StatusPending, r.Status)

	rating = 1
	assert.Equal(t, 4, *c.Rating)
	assert.Equal(t, shared.EventRequestCompleted, StatusCompleted.EventType())
}
