// Package jobs contains the scheduled jobs of the donor hub.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bloodlink/donor-hub/internal/application/query"
	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
	"github.com/bloodlink/donor-hub/pkg/logger"
	"github.com/bloodlink/donor-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ELIGIBILITY RESTORED JOB
// Раз в интервал находит доноров, у которых закончился период
// восстановления, и публикует donor.eligibility_restored.
// ══════════════════════════════════════════════════════════════════════════════

// JobNameEligibilityRestored is the scheduler name of the job.
const JobNameEligibilityRestored = "eligibility_restored"

// RestoredFinder finds donors whose cooldown ended inside a window.
type RestoredFinder interface {
	Handle(ctx context.Context, q query.RestoredDonorsQuery) ([]*donor.Donor, error)
}

var _ RestoredFinder = (*query.RestoredDonorsHandler)(nil)

// EligibilityRestoredJob announces donors who became eligible again.
//
// The first run looks back over InitialWindow. Each later run continues
// from where the previous successful run stopped, so a donor is announced
// once per process even if runs are late.
type EligibilityRestoredJob struct {
	finder    RestoredFinder
	publisher shared.EventPublisher
	clock     timeutil.Clock
	window    time.Duration
	log       *logger.Logger

	mu        sync.Mutex
	watermark time.Time // cooldown cutoff covered by the last successful run
	lastStats RunStats
}

// RunStats describes one run of the job.
type RunStats struct {
	From      time.Time
	To        time.Time
	Found     int
	Published int
	Failed    int
}

// NewEligibilityRestoredJob creates the job. initialWindow should match the
// schedule interval.
func NewEligibilityRestoredJob(finder RestoredFinder, publisher shared.EventPublisher, clock timeutil.Clock, initialWindow time.Duration, log *logger.Logger) *EligibilityRestoredJob {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EligibilityRestoredJob{
		finder:    finder,
		publisher: publisher,
		clock:     clock,
		window:    initialWindow,
		log:       log.With(logger.Component("job"), logger.String("job", JobNameEligibilityRestored)),
	}
}

func (j *EligibilityRestoredJob) Name() string { return JobNameEligibilityRestored }

func (j *EligibilityRestoredJob) Description() string {
	return "publishes donor.eligibility_restored for donors whose cooldown just ended"
}

// Run implements scheduler.Job.
func (j *EligibilityRestoredJob) Run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.clock.Now()
	cutoff := donor.CooldownCutoff(now)

	window := j.window
	if !j.watermark.IsZero() {
		window = cutoff.Sub(j.watermark)
	}
	if window <= 0 {
		return nil
	}

	donors, err := j.finder.Handle(ctx, query.RestoredDonorsQuery{Now: now, Window: window})
	if err != nil {
		return fmt.Errorf("find restored donors: %w", err)
	}

	stats := RunStats{From: cutoff.Add(-window), To: cutoff, Found: len(donors)}
	for _, d := range donors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.LastDonationDate == nil {
			continue
		}
		ev := shared.NewDonorEligibilityRestoredEvent(d.ID.String(), d.BloodGroup.String(), d.Location, *d.LastDonationDate, now)
		if err := j.publisher.Publish(ev); err != nil {
			stats.Failed++
			j.log.Warn("failed to publish eligibility event", logger.DonorID(d.ID.String()), logger.Err(err))
			continue
		}
		stats.Published++
	}

	j.watermark = cutoff
	j.lastStats = stats
	j.log.Info("eligibility restored run finished",
		logger.Time("from", stats.From),
		logger.Time("to", stats.To),
		logger.Int("found", stats.Found),
		logger.Int("published", stats.Published),
		logger.Int("failed", stats.Failed),
	)
	return nil
}

// LastStats returns the statistics of the last successful run.
func (j *EligibilityRestoredJob) LastStats() RunStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastStats
}
