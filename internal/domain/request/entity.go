// Package request contains the blood request aggregate and its lifecycle
// state machine.
package request

import (
	"fmt"
	"strings"
	"time"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ID is an opaque request identifier.
type ID string

// IsValid reports whether the ID is non-empty.
func (id ID) IsValid() bool {
	return strings.TrimSpace(string(id)) != ""
}

// String returns the string representation.
func (id ID) String() string {
	return string(id)
}

// Status определяет состояние запроса на донацию.
type Status string

const (
	// StatusPending - создан, ждёт ответа донора.
	StatusPending Status = "pending"

	// StatusAccepted - донор согласился, ждём подтверждения донации.
	StatusAccepted Status = "accepted"

	// StatusRejected - донор отказал.
	StatusRejected Status = "rejected"

	// StatusCancelled - отменён автором запроса.
	StatusCancelled Status = "cancelled"

	// StatusCompleted - донация состоялась, оценка выставлена.
	StatusCompleted Status = "completed"
)

// transitions lists the legal next states for every non-terminal state.
var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted},
	StatusAccepted: {StatusCompleted},
}

// IsValid checks the status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (s Status) String() string {
	return string(s)
}

// EventType maps the target status to the event published after the step.
func (s Status) EventType() shared.EventType {
	switch s {
	case StatusAccepted:
		return shared.EventRequestAccepted
	case StatusRejected:
		return shared.EventRequestRejected
	case StatusCancelled:
		return shared.EventRequestCancelled
	case StatusCompleted:
		return shared.EventRequestCompleted
	default:
		return shared.EventRequestCreated
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY: BLOOD REQUEST
// ══════════════════════════════════════════════════════════════════════════════

// BloodRequest is a donation request from a requester to one donor.
type BloodRequest struct {
	// ID - уникальный идентификатор (UUID).
	ID ID `json:"id"`

	// RequesterID - кто запросил донацию.
	RequesterID donor.ID `json:"requester_id"`

	// DonorID - к кому обращён запрос.
	DonorID donor.ID `json:"donor_id"`

	// Status - текущее состояние.
	Status Status `json:"status"`

	// Note - комментарий при отказе или отмене.
	Note string `json:"note,omitempty"`

	// Rating - оценка донора (1-5), только для completed.
	Rating *int `json:"rating,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewParams are the inputs to NewBloodRequest.
type NewParams struct {
	ID          ID
	RequesterID donor.ID
	DonorID     donor.ID
	Now         time.Time
}

// NewBloodRequest creates a pending request.
func NewBloodRequest(p NewParams) (*BloodRequest, error) {
	if !p.ID.IsValid() {
		return nil, shared.NewDomainError("request", "New", shared.ErrInvalidInput, "request id is required")
	}
	if !p.RequesterID.IsValid() || !p.DonorID.IsValid() {
		return nil, shared.NewDomainError("request", "New", shared.ErrInvalidInput, "requester and donor ids are required")
	}
	if p.RequesterID == p.DonorID {
		return nil, shared.ErrSelfRequest
	}

	return &BloodRequest{
		ID:          p.ID,
		RequesterID: p.RequesterID,
		DonorID:     p.DonorID,
		Status:      StatusPending,
		CreatedAt:   p.Now,
		UpdatedAt:   p.Now,
	}, nil
}

// IsParticipant reports whether actor is the requester or the donor.
func (r *BloodRequest) IsParticipant(actor donor.ID) bool {
	return actor == r.RequesterID || actor == r.DonorID
}

// Clone returns a deep copy.
func (r *BloodRequest) Clone() *BloodRequest {
	if r == nil {
		return nil
	}
	c := *r
	if r.Rating != nil {
		v := *r.Rating
		c.Rating = &v
	}
	return &c
}

// String returns a short representation for logs.
func (r *BloodRequest) String() string {
	return fmt.Sprintf("BloodRequest{ID: %s, %s -> %s, Status: %s}",
		r.ID, r.RequesterID, r.DonorID, r.Status)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION RULES
// ══════════════════════════════════════════════════════════════════════════════

// Authorize checks that actor may move the request into target.
// Accept and Reject belong to the donor; Cancel and Complete to the requester.
func (r *BloodRequest) Authorize(actor donor.ID, target Status) error {
	switch target {
	case StatusAccepted, StatusRejected:
		if actor != r.DonorID {
			return shared.ErrOnlyDonor
		}
	case StatusCancelled:
		if actor != r.RequesterID {
			return shared.ErrOnlyRequesterCancel
		}
	case StatusCompleted:
		if actor != r.RequesterID {
			return shared.ErrOnlyRequester
		}
	default:
		return shared.NewDomainError("request", "Authorize", shared.ErrInvalidTransition,
			fmt.Sprintf("no actor may move a request into %q", target))
	}
	return nil
}

// CheckTransition verifies the current status allows target.
func (r *BloodRequest) CheckTransition(target Status) error {
	if !CanTransition(r.Status, target) {
		return shared.NewDomainError("request", "Transition", shared.ErrInvalidTransition,
			fmt.Sprintf("cannot move request from %s to %s", r.Status, target))
	}
	return nil
}
