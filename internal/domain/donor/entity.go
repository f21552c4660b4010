package donor

import (
	"fmt"
	"strings"
	"time"

	"github.com/bloodlink/donor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ID is an opaque donor identifier.
type ID string

// IsValid reports whether the ID is non-empty.
func (id ID) IsValid() bool {
	return strings.TrimSpace(string(id)) != ""
}

// String returns the string representation.
func (id ID) String() string {
	return string(id)
}

// BloodGroup is one of the eight ABO/Rh groups.
type BloodGroup string

const (
	BloodGroupAPos  BloodGroup = "A+"
	BloodGroupANeg  BloodGroup = "A-"
	BloodGroupBPos  BloodGroup = "B+"
	BloodGroupBNeg  BloodGroup = "B-"
	BloodGroupABPos BloodGroup = "AB+"
	BloodGroupABNeg BloodGroup = "AB-"
	BloodGroupOPos  BloodGroup = "O+"
	BloodGroupONeg  BloodGroup = "O-"
)

// AllBloodGroups lists every valid group in display order.
var AllBloodGroups = []BloodGroup{
	BloodGroupAPos, BloodGroupANeg,
	BloodGroupBPos, BloodGroupBNeg,
	BloodGroupABPos, BloodGroupABNeg,
	BloodGroupOPos, BloodGroupONeg,
}

// IsValid checks that the group is one of the eight known values.
func (b BloodGroup) IsValid() bool {
	for _, g := range AllBloodGroups {
		if b == g {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (b BloodGroup) String() string {
	return string(b)
}

// ParseBloodGroup normalizes user input ("ab+", " O- ") into a BloodGroup.
func ParseBloodGroup(s string) (BloodGroup, error) {
	g := BloodGroup(strings.ToUpper(strings.TrimSpace(s)))
	if !g.IsValid() {
		return "", shared.WrapError("donor", "ParseBloodGroup", shared.ErrInvalidInput,
			fmt.Sprintf("unknown blood group %q", s), shared.ErrUnknownBloodType)
	}
	return g, nil
}

// Status is the moderation state of a donor account. It is owned by the
// moderation tooling; the engine only reads it.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// IsValid checks the status value.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusSuspended
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY: DONOR
// ══════════════════════════════════════════════════════════════════════════════

// Donor is a registered user who can be searched and asked to donate.
type Donor struct {
	ID               ID         `json:"id"`
	BloodGroup       BloodGroup `json:"blood_group"`
	Location         string     `json:"location"`
	LastDonationDate *time.Time `json:"last_donation_date,omitempty"`
	AvgRating        float64    `json:"avg_rating"`
	RatingCount      int        `json:"rating_count"`
	Status           Status     `json:"status"`
}

// IsActive reports whether the donor may take part in requests and matching.
func (d *Donor) IsActive() bool {
	return d.Status == StatusActive
}

// IsEligible applies the cooldown rule to this donor.
func (d *Donor) IsEligible(now time.Time) bool {
	return IsEligible(d.LastDonationDate, now)
}

// DaysUntilEligible applies the cooldown rule to this donor.
func (d *Donor) DaysUntilEligible(now time.Time) int {
	return DaysUntilEligible(d.LastDonationDate, now)
}

// MatchesLocation performs the case-insensitive substring match used by search.
// An empty needle matches everything.
func (d *Donor) MatchesLocation(needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(d.Location), strings.ToLower(needle))
}

// Validate checks the rating invariants:
// RatingCount == 0 implies AvgRating == 0, otherwise AvgRating is within [1,5].
func (d *Donor) Validate() error {
	if !d.ID.IsValid() {
		return shared.NewDomainError("donor", "Validate", shared.ErrInvalidInput, "donor id is required")
	}
	if !d.BloodGroup.IsValid() {
		return shared.ErrUnknownBloodType
	}
	if !d.Status.IsValid() {
		return shared.NewDomainError("donor", "Validate", shared.ErrInvalidInput, "invalid donor status")
	}
	if d.RatingCount < 0 {
		return shared.NewDomainError("donor", "Validate", shared.ErrInvalidInput, "rating count cannot be negative")
	}
	if d.RatingCount == 0 && d.AvgRating != 0 {
		return shared.NewDomainError("donor", "Validate", shared.ErrInvalidInput, "unrated donor must have zero average")
	}
	if d.RatingCount > 0 && (d.AvgRating < MinRating || d.AvgRating > MaxRating) {
		return shared.NewDomainError("donor", "Validate", shared.ErrInvalidInput, "average rating out of range")
	}
	return nil
}

// Clone returns a deep copy so callers never share the LastDonationDate pointer.
func (d *Donor) Clone() *Donor {
	if d == nil {
		return nil
	}
	c := *d
	if d.LastDonationDate != nil {
		t := *d.LastDonationDate
		c.LastDonationDate = &t
	}
	return &c
}

// String returns a short representation for logs.
func (d *Donor) String() string {
	return fmt.Sprintf("Donor{ID: %s, Group: %s, Status: %s, Rating: %.2f/%d}",
		d.ID, d.BloodGroup, d.Status, d.AvgRating, d.RatingCount)
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCH RESULT
// ══════════════════════════════════════════════════════════════════════════════

// Match is a donor returned by search, annotated with eligibility data.
type Match struct {
	Donor             *Donor `json:"donor"`
	Eligible          bool   `json:"eligible"`
	DaysUntilEligible int    `json:"days_until_eligible"`
}
