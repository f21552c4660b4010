package request

import (
	"context"
	"time"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
)

// Repository defines the interface for blood request persistence.
type Repository interface {
	// GetRequest returns the request by ID.
	// Returns shared.ErrRequestNotFound if it does not exist.
	GetRequest(ctx context.Context, id ID) (*BloodRequest, error)

	// InsertRequest stores a new pending request.
	// Returns shared.ErrDuplicatePending if the pair already has a pending request.
	InsertRequest(ctx context.Context, r *BloodRequest) (*BloodRequest, error)

	// UpdateRequestStatus applies patch only if the stored status still equals
	// expected. Returns shared.ErrRequestConflict when it does not and
	// shared.ErrRequestNotFound when the request is missing.
	UpdateRequestStatus(ctx context.Context, id ID, expected Status, patch Patch) (*BloodRequest, error)

	// FindPendingRequest returns the pending request between the pair, or nil.
	FindPendingRequest(ctx context.Context, requesterID, donorID donor.ID) (*BloodRequest, error)
}

// Patch describes a status transition write.
type Patch struct {
	Status    Status
	Note      *string
	Rating    *int
	UpdatedAt time.Time
}

// Apply writes the patch onto r.
func (p Patch) Apply(r *BloodRequest) {
	r.Status = p.Status
	if p.Note != nil {
		r.Note = *p.Note
	}
	if p.Rating != nil {
		v := *p.Rating
		r.Rating = &v
	}
	r.UpdatedAt = p.UpdatedAt
}
