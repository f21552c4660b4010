package command

import (
	"context"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
)

// CancelCommand withdraws a pending request.
type CancelCommand struct {
	RequestID request.ID
	ActorID   donor.ID
	Note      string
}

// Cancel moves a pending request to cancelled. Only the requester may cancel.
func (l *Lifecycle) Cancel(ctx context.Context, cmd CancelCommand) (*request.BloodRequest, error) {
	return l.transition(ctx, "Cancel", cmd.RequestID, cmd.ActorID, request.StatusCancelled, optionalNote(cmd.Note))
}
