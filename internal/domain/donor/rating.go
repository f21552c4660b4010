package donor

import (
	"github.com/bloodlink/donor-hub/internal/domain/shared"
)

// Rating bounds, inclusive.
const (
	MinRating = 1
	MaxRating = 5
)

// ValidRating reports whether r is an accepted rating value.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// Fold adds one rating to a running mean.
//
//	newAvg = (avg*count + rating) / (count+1)
//
// The result is left unrounded; presentation rounds if it wants to.
func Fold(avg float64, count, rating int) (float64, int, error) {
	if !ValidRating(rating) {
		return avg, count, shared.ErrInvalidRating
	}
	if count < 0 {
		return avg, count, shared.NewDomainError("donor", "Fold", shared.ErrInvalidInput, "rating count cannot be negative")
	}
	newCount := count + 1
	newAvg := (avg*float64(count) + float64(rating)) / float64(newCount)
	return newAvg, newCount, nil
}

// ApplyRating folds rating into the donor's aggregate in place.
func (d *Donor) ApplyRating(rating int) error {
	avg, count, err := Fold(d.AvgRating, d.RatingCount, rating)
	if err != nil {
		return err
	}
	d.AvgRating = avg
	d.RatingCount = count
	return nil
}
