package command

import (
	"context"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
	"github.com/bloodlink/donor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE REQUEST COMMAND
// The only transition that touches the donor: it records the donation date
// and folds the rating into the donor's average.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteCommand marks a donation as done.
type CompleteCommand struct {
	RequestID request.ID
	ActorID   donor.ID
	// Rating is required and must be within 1..5.
	Rating *int
}

// Complete moves a pending or accepted request to completed.
// The request write and the donor update commit together; the donor row is
// locked for the duration so concurrent completions for one donor do not
// lose a rating.
func (l *Lifecycle) Complete(ctx context.Context, cmd CompleteCommand) (*request.BloodRequest, error) {
	const op = "Complete"

	var (
		completed *request.BloodRequest
		updated   *donor.Donor
	)

	err := l.store.WithinTx(ctx, func(ctx context.Context, tx request.Store) error {
		current, err := tx.GetRequest(ctx, cmd.RequestID)
		if err != nil {
			return err
		}
		if err := current.Authorize(cmd.ActorID, request.StatusCompleted); err != nil {
			return err
		}
		if err := current.CheckTransition(request.StatusCompleted); err != nil {
			return err
		}
		if cmd.Rating == nil || !donor.ValidRating(*cmd.Rating) {
			return shared.ErrInvalidRating
		}

		now := l.clock.Now()
		completed, err = tx.UpdateRequestStatus(ctx, cmd.RequestID, current.Status, request.Patch{
			Status:    request.StatusCompleted,
			Rating:    cmd.Rating,
			UpdatedAt: now,
		})
		if err != nil {
			return lostRace(op, err)
		}

		d, err := tx.GetDonor(ctx, current.DonorID)
		if err != nil {
			return err
		}
		avg, count, err := donor.Fold(d.AvgRating, d.RatingCount, *cmd.Rating)
		if err != nil {
			return err
		}
		updated, err = tx.UpdateDonor(ctx, d.ID, donor.Patch{
			LastDonationDate: &now,
			AvgRating:        &avg,
			RatingCount:      &count,
			UpdatedAt:        now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("request completed",
		logger.BloodRequestID(completed.ID.String()),
		logger.ActorID(cmd.ActorID.String()),
		logger.DonorID(updated.ID.String()),
		logger.Int("rating", *cmd.Rating),
		logger.Float64("avg_rating", updated.AvgRating),
		logger.Int("rating_count", updated.RatingCount),
	)
	l.publish(completed, cmd.ActorID, request.StatusCompleted)
	return completed, nil
}
