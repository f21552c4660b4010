package command

import (
	"context"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
)

// RespondCommand is the donor's answer to a pending request.
type RespondCommand struct {
	RequestID request.ID
	ActorID   donor.ID
	// Note is stored on rejection only.
	Note string
}

// Accept moves a pending request to accepted. Only the donor may accept.
func (l *Lifecycle) Accept(ctx context.Context, cmd RespondCommand) (*request.BloodRequest, error) {
	return l.transition(ctx, "Accept", cmd.RequestID, cmd.ActorID, request.StatusAccepted, nil)
}

// Reject moves a pending request to rejected and stores the note.
// Only the donor may reject.
func (l *Lifecycle) Reject(ctx context.Context, cmd RespondCommand) (*request.BloodRequest, error) {
	return l.transition(ctx, "Reject", cmd.RequestID, cmd.ActorID, request.StatusRejected, optionalNote(cmd.Note))
}
