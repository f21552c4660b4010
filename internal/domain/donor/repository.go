package donor

import (
	"context"
	"time"
)

// Repository defines the interface for donor persistence.
// Implementations live in infrastructure/persistence (memory, postgres)
// and may be decorated by the Redis cache.
//
// Ownership of donor profiles (registration, moderation) lies outside this
// service: the repository only reads donors and updates the fields touched
// by a completed donation.
type Repository interface {
	// ══════════════════════════════════════════════════════════════════════════
	// Reads
	// ══════════════════════════════════════════════════════════════════════════

	// GetDonor returns the donor by ID.
	// Returns shared.ErrDonorNotFound if the donor does not exist.
	GetDonor(ctx context.Context, id ID) (*Donor, error)

	// FindDonors returns active donors matching the filter, ordered by
	// AvgRating descending then ID ascending. Suspended donors never appear.
	FindDonors(ctx context.Context, filter Filter) ([]*Donor, error)

	// FindRestored returns active donors whose LastDonationDate falls in
	// the half-open interval (from, to].
	FindRestored(ctx context.Context, from, to time.Time) ([]*Donor, error)

	// ══════════════════════════════════════════════════════════════════════════
	// Writes
	// ══════════════════════════════════════════════════════════════════════════

	// UpdateDonor applies the non-nil fields of patch atomically and returns
	// the updated donor.
	// Returns shared.ErrDonorNotFound if the donor does not exist.
	UpdateDonor(ctx context.Context, id ID, patch Patch) (*Donor, error)
}

// Filter narrows FindDonors.
type Filter struct {
	// BloodGroup, when set, requires an exact group match.
	BloodGroup *BloodGroup

	// Location, when non-empty, is matched case-insensitively as a substring.
	Location string

	// EligibleAt, when set, keeps only donors out of cooldown at that instant.
	EligibleAt *time.Time

	// ExcludeID drops one donor, usually the searcher.
	ExcludeID ID

	// Limit caps the number of results; 0 means no cap.
	Limit int
}

// Patch describes the donor fields a completed donation changes.
type Patch struct {
	LastDonationDate *time.Time
	AvgRating        *float64
	RatingCount      *int

	// UpdatedAt stamps the row. Zero leaves the timestamp to the store.
	UpdatedAt time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.LastDonationDate == nil && p.AvgRating == nil && p.RatingCount == nil
}

// Apply writes the patch onto d.
func (p Patch) Apply(d *Donor) {
	if p.LastDonationDate != nil {
		t := *p.LastDonationDate
		d.LastDonationDate = &t
	}
	if p.AvgRating != nil {
		d.AvgRating = *p.AvgRating
	}
	if p.RatingCount != nil {
		d.RatingCount = *p.RatingCount
	}
}

// Matches reports whether d satisfies the filter (status is not checked here).
// SQL implementations express EligibleAt as a cutoff, see CooldownCutoff.
func (f Filter) Matches(d *Donor) bool {
	if f.BloodGroup != nil && d.BloodGroup != *f.BloodGroup {
		return false
	}
	if f.ExcludeID != "" && d.ID == f.ExcludeID {
		return false
	}
	if f.EligibleAt != nil && !d.IsEligible(*f.EligibleAt) {
		return false
	}
	return d.MatchesLocation(f.Location)
}
