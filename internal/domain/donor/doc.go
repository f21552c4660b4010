// Package donor contains the donor domain model of Donor Hub.
//
// The package defines:
//
//   - Entities: Donor
//   - Value Objects: BloodGroup, Status
//   - Pure rules: the 90-day donation cooldown (IsEligible, DaysUntilEligible)
//     and the running rating average (Fold)
//   - Repository interface implemented in infrastructure/persistence
//
// # Architectural principles
//
//  1. Zero external dependencies - only the Go standard library and pkg/timeutil
//  2. Dependency Inversion - interfaces live here, implementations in infrastructure
//  3. Pure rules take "now" explicitly; nothing reads the wall clock
//
// # Cooldown
//
// A donor who has never donated is always eligible. Otherwise the elapsed
// time since the last donation is truncated to whole days and compared with
// CooldownDays:
//
//	last := donor.LastDonationDate
//	if !donor.IsEligible(last, now) {
//	    wait := donor.DaysUntilEligible(last, now)
//	}
//
// # Rating
//
// Each completed request folds one 1-5 rating into the donor's running mean:
//
//	avg, count, err := donor.Fold(d.AvgRating, d.RatingCount, 4)
package donor
