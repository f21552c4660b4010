// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"strings"
	"time"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
	"github.com/bloodlink/donor-hub/pkg/logger"
	"github.com/bloodlink/donor-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH DONORS QUERY
// Находит доноров, которых можно попросить о донации прямо сейчас:
// активных, вне периода восстановления, с нужной группой крови.
// ══════════════════════════════════════════════════════════════════════════════

// SearchDonorsQuery содержит параметры поиска доноров.
type SearchDonorsQuery struct {
	// BloodGroup - точное совпадение группы (пустая = любая).
	BloodGroup string

	// Location - подстрока местоположения без учёта регистра.
	Location string

	// ExcludeID - кого не показывать (обычно сам ищущий).
	ExcludeID donor.ID

	// Limit - максимум результатов (0 = без ограничения).
	Limit int
}

// Validate validates the query and normalizes the blood group.
func (q *SearchDonorsQuery) Validate() error {
	if q.Limit < 0 {
		return shared.NewDomainError("donor", "Search", shared.ErrInvalidInput, "limit cannot be negative")
	}
	if strings.TrimSpace(q.BloodGroup) != "" {
		g, err := donor.ParseBloodGroup(q.BloodGroup)
		if err != nil {
			return err
		}
		q.BloodGroup = g.String()
	}
	return nil
}

// SearchDonorsHandler handles SearchDonorsQuery.
type SearchDonorsHandler struct {
	donors donor.Repository
	clock  timeutil.Clock
	log    *logger.Logger
}

// NewSearchDonorsHandler creates a new SearchDonorsHandler.
func NewSearchDonorsHandler(donors donor.Repository, clock timeutil.Clock, log *logger.Logger) *SearchDonorsHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SearchDonorsHandler{
		donors: donors,
		clock:  clock,
		log:    log.With(logger.Component("search_donors")),
	}
}

// Handle returns eligible donors ordered by rating, best first.
func (h *SearchDonorsHandler) Handle(ctx context.Context, q SearchDonorsQuery) ([]donor.Match, error) {
	return h.HandleAt(ctx, q, h.clock.Now())
}

// HandleAt runs the search as of now.
func (h *SearchDonorsHandler) HandleAt(ctx context.Context, q SearchDonorsQuery, now time.Time) ([]donor.Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filter := donor.Filter{
		Location:   q.Location,
		EligibleAt: &now,
		ExcludeID:  q.ExcludeID,
		Limit:      q.Limit,
	}
	if q.BloodGroup != "" {
		g := donor.BloodGroup(q.BloodGroup)
		filter.BloodGroup = &g
	}

	donors, err := h.donors.FindDonors(ctx, filter)
	if err != nil {
		return nil, err
	}

	matches := make([]donor.Match, 0, len(donors))
	for _, d := range donors {
		// Storage already filtered; the domain rule is the final word.
		if !d.IsActive() || !d.IsEligible(now) || d.ID == q.ExcludeID {
			continue
		}
		matches = append(matches, donor.Match{
			Donor:             d,
			Eligible:          true,
			DaysUntilEligible: 0,
		})
	}

	h.log.Debug("donor search",
		logger.BloodGroup(q.BloodGroup),
		logger.String("location", q.Location),
		logger.Int("results", len(matches)),
	)
	return matches, nil
}
