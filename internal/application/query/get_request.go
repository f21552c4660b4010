package query

import (
	"context"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
)

// GetRequestQuery reads one request on behalf of an actor.
type GetRequestQuery struct {
	RequestID request.ID
	ActorID   donor.ID
}

// GetRequestHandler handles GetRequestQuery.
type GetRequestHandler struct {
	requests request.Repository
}

// NewGetRequestHandler creates a new GetRequestHandler.
func NewGetRequestHandler(requests request.Repository) *GetRequestHandler {
	return &GetRequestHandler{requests: requests}
}

// Handle returns the request if the actor is its requester or donor.
func (h *GetRequestHandler) Handle(ctx context.Context, q GetRequestQuery) (*request.BloodRequest, error) {
	r, err := h.requests.GetRequest(ctx, q.RequestID)
	if err != nil {
		return nil, err
	}
	if !r.IsParticipant(q.ActorID) {
		return nil, shared.ErrNotParticipant
	}
	return r, nil
}
