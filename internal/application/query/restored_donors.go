package query

import (
	"context"
	"time"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
)

// RestoredDonorsQuery asks for donors whose cooldown ended within Window
// before Now.
type RestoredDonorsQuery struct {
	Now    time.Time
	Window time.Duration
}

// RestoredDonorsHandler handles RestoredDonorsQuery.
type RestoredDonorsHandler struct {
	donors donor.Repository
}

// NewRestoredDonorsHandler creates a new RestoredDonorsHandler.
func NewRestoredDonorsHandler(donors donor.Repository) *RestoredDonorsHandler {
	return &RestoredDonorsHandler{donors: donors}
}

// Handle returns donors with LastDonationDate in (now-90d-window, now-90d].
func (h *RestoredDonorsHandler) Handle(ctx context.Context, q RestoredDonorsQuery) ([]*donor.Donor, error) {
	if q.Window <= 0 {
		return nil, shared.NewDomainError("donor", "FindRestored", shared.ErrInvalidInput, "window must be positive")
	}
	from, to := donor.RestoredWindow(q.Now, q.Window)
	return h.donors.FindRestored(ctx, from, to)
}
