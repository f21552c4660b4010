package request

import (
	"context"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
)

// Store is the single persistence port used by the lifecycle engine.
// It joins both repositories so a completion can update the request and
// the donor in one atomic unit.
type Store interface {
	donor.Repository
	Repository

	// WithinTx runs fn against a transactional view of the store.
	// All writes made through tx commit together if fn returns nil and are
	// discarded otherwise. GetDonor inside fn locks the donor row until the
	// unit ends, so concurrent completions on one donor serialize.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
