package command

import (
	"context"
	"errors"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
	"github.com/bloodlink/donor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE REQUEST COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CreateRequestCommand asks a donor for a donation.
type CreateRequestCommand struct {
	RequesterID donor.ID
	DonorID     donor.ID
}

// Validate validates the command.
func (c CreateRequestCommand) Validate() error {
	if !c.RequesterID.IsValid() || !c.DonorID.IsValid() {
		return shared.NewDomainError("request", "Create", shared.ErrInvalidInput, "requester_id and donor_id are required")
	}
	if c.RequesterID == c.DonorID {
		return shared.ErrSelfRequest
	}
	return nil
}

// Create inserts a pending request after checking the donor can be asked.
//
// Order of checks: self request, donor exists, both parties active, donor
// out of cooldown, no other pending request for the pair. The reads and the
// insert share one transaction, so the donor row is locked against a
// concurrent Complete and no cached copy is consulted.
func (l *Lifecycle) Create(ctx context.Context, cmd CreateRequestCommand) (*request.BloodRequest, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := l.clock.Now()

	var created *request.BloodRequest
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx request.Store) error {
		target, requester, err := loadParticipants(ctx, tx, cmd.RequesterID, cmd.DonorID)
		if err != nil {
			return err
		}
		if !target.IsActive() {
			return shared.ErrDonorSuspended
		}
		if requester != nil && !requester.IsActive() {
			return shared.ErrRequesterSuspended
		}

		if !target.IsEligible(now) {
			return &shared.NotEligibleError{
				DonorID:           target.ID.String(),
				DaysUntilEligible: target.DaysUntilEligible(now),
			}
		}

		pending, err := tx.FindPendingRequest(ctx, cmd.RequesterID, cmd.DonorID)
		if err != nil {
			return err
		}
		if pending != nil {
			return shared.ErrDuplicatePending
		}

		r, err := request.NewBloodRequest(request.NewParams{
			ID:          l.newID(),
			RequesterID: cmd.RequesterID,
			DonorID:     cmd.DonorID,
			Now:         now,
		})
		if err != nil {
			return err
		}

		created, err = tx.InsertRequest(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("request created",
		logger.BloodRequestID(created.ID.String()),
		logger.ActorID(cmd.RequesterID.String()),
		logger.DonorID(cmd.DonorID.String()),
	)
	l.publish(created, cmd.RequesterID, request.StatusPending)
	return created, nil
}

// loadParticipants reads both profiles in id order, so two crossed requests
// (A to B and B to A) lock the rows in the same order. The requester is
// usually a registered donor as well; a missing requester profile yields nil.
func loadParticipants(ctx context.Context, tx request.Store, requesterID, donorID donor.ID) (target, requester *donor.Donor, err error) {
	ids := []donor.ID{requesterID, donorID}
	if donorID < requesterID {
		ids[0], ids[1] = donorID, requesterID
	}

	for _, id := range ids {
		d, err := tx.GetDonor(ctx, id)
		switch {
		case err == nil:
		case id == requesterID && errors.Is(err, shared.ErrNotFound):
			continue
		default:
			return nil, nil, err
		}
		if id == donorID {
			target = d
		} else {
			requester = d
		}
	}
	return target, requester, nil
}
