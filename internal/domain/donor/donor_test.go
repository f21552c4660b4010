package donor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodlink/donor-hub/internal/domain/shared"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := now.Add(-time.Duration(n) * 24 * time.Hour)
	return &t
}

func TestIsEligible(t *testing.T) {
	tests := []struct {
		name     string
		last     *time.Time
		eligible bool
		wait     int
	}{
		{"never donated", nil, true, 0},
		{"donated today", daysAgo(0), false, 90},
		{"one day ago", daysAgo(1), false, 89},
		{"89 days ago", daysAgo(89), false, 1},
		{"exactly 90 days ago", daysAgo(90), true, 0},
		{"200 days ago", daysAgo(200), true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.eligible, IsEligible(tt.last, now))
			assert.Equal(t, tt.wait, DaysUntilEligible(tt.last, now))
		})
	}
}

func TestIsEligible_PartialDayTruncates(t *testing.T) {
	last := now.Add(-(90*24*time.Hour - time.Minute))
	assert.False(t, IsEligible(&last, now))
	assert.Equal(t, 1, DaysUntilEligible(&last, now))
}

func TestIsEligible_FutureDonationCountsAsToday(t *testing.T) {
	last := now.Add(72 * time.Hour)
	assert.False(t, IsEligible(&last, now))
	assert.Equal(t, CooldownDays, DaysUntilEligible(&last, now))
}

func TestDaysUntilEligible_Monotonic(t *testing.T) {
	last := daysAgo(10)
	prev := DaysUntilEligible(last, now)
	for i := 1; i <= 120; i++ {
		later := now.Add(time.Duration(i) * 12 * time.Hour)
		got := DaysUntilEligible(last, later)
		assert.LessOrEqual(t, got, prev)
		assert.Equal(t, got == 0, IsEligible(last, later))
		prev = got
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		name      string
		avg       float64
		count     int
		rating    int
		wantAvg   float64
		wantCount int
	}{
		{"first rating", 0, 0, 5, 5, 1},
		{"second rating", 5, 1, 1, 3, 2},
		{"fourth rating", 4, 3, 5, 4.25, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avg, count, err := Fold(tt.avg, tt.count, tt.rating)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantAvg, avg, 1e-9)
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestFold_RejectsOutOfRange(t *testing.T) {
	for _, r := range []int{0, 6, -1} {
		avg, count, err := Fold(4, 3, r)
		assert.True(t, errors.Is(err, shared.ErrInvalidRating), "rating %d", r)
		assert.Equal(t, 4.0, avg)
		assert.Equal(t, 3, count)
	}
}

func TestFold_StaysInRange(t *testing.T) {
	avg, count := 0.0, 0
	for i := 0; i < 50; i++ {
		var err error
		avg, count, err = Fold(avg, count, i%5+1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, avg, float64(MinRating))
		assert.LessOrEqual(t, avg, float64(MaxRating))
	}
	assert.Equal(t, 50, count)
	assert.InDelta(t, 3.0, avg, 1e-9)
}

func TestParseBloodGroup(t *testing.T) {
	g, err := ParseBloodGroup(" ab+ ")
	require.NoError(t, err)
	assert.Equal(t, BloodGroupABPos, g)

	for _, raw := range []string{"", "C+", "A", "0+"} {
		_, err := ParseBloodGroup(raw)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput), "input %q", raw)
	}
	assert.Len(t, AllBloodGroups, 8)
}

func TestDonor_MatchesLocation(t *testing.T) {
	d := &Donor{Location: "Almaty, Bostandyk"}
	assert.True(t, d.MatchesLocation(""))
	assert.True(t, d.MatchesLocation("almaty"))
	assert.True(t, d.MatchesLocation("BOSTAN"))
	assert.False(t, d.MatchesLocation("Astana"))
}

func TestDonor_ApplyRatingAndValidate(t *testing.T) {
	d := &Donor{ID: "d1", BloodGroup: BloodGroupONeg, Status: StatusActive}
	require.NoError(t, d.Validate())

	require.NoError(t, d.ApplyRating(4))
	assert.Equal(t, 4.0, d.AvgRating)
	assert.Equal(t, 1, d.RatingCount)
	require.NoError(t, d.Validate())

	assert.Error(t, d.ApplyRating(9))
	assert.Equal(t, 1, d.RatingCount)

	bad := &Donor{ID: "d2", BloodGroup: BloodGroupAPos, Status: StatusActive, AvgRating: 3}
	assert.Error(t, bad.Validate())
}

func TestPatch_ApplyAndClone(t *testing.T) {
	d := &Donor{ID: "d1", LastDonationDate: daysAgo(100)}
	c := d.Clone()

	when := now
	avg := 4.5
	count := 2
	Patch{LastDonationDate: &when, AvgRating: &avg, RatingCount: &count}.Apply(c)

	assert.Equal(t, now, *c.LastDonationDate)
	assert.Equal(t, 4.5, c.AvgRating)
	assert.NotEqual(t, now, *d.LastDonationDate)
	assert.True(t, Patch{}.IsEmpty())
}

func TestRestoredWindow(t *testing.T) {
	from, to := RestoredWindow(now, time.Hour)
	assert.Equal(t, now.AddDate(0, 0, -90), to)
	assert.Equal(t, time.Hour, to.Sub(from))

	exactly := to
	assert.True(t, IsEligible(&exactly, now))
}

func TestCooldownCutoff_AgreesWithIsEligible(t *testing.T) {
	cutoff := CooldownCutoff(now)
	for _, offset := range []time.Duration{-time.Hour, -time.Nanosecond, 0, time.Nanosecond, time.Hour} {
		last := cutoff.Add(offset)
		assert.Equal(t, !last.After(cutoff), IsEligible(&last, now), "offset %s", offset)
	}
}

func TestFilter_Matches(t *testing.T) {
	group := BloodGroupBNeg
	at := now
	f := Filter{BloodGroup: &group, Location: "ast", EligibleAt: &at, ExcludeID: "me"}

	assert.True(t, f.Matches(&Donor{ID: "d1", BloodGroup: BloodGroupBNeg, Location: "Astana"}))
	assert.False(t, f.Matches(&Donor{ID: "me", BloodGroup: BloodGroupBNeg, Location: "Astana"}))
	assert.False(t, f.Matches(&Donor{ID: "d2", BloodGroup: BloodGroupBPos, Location: "Astana"}))
	assert.False(t, f.Matches(&Donor{ID: "d3", BloodGroup: BloodGroupBNeg, Location: "Astana", LastDonationDate: daysAgo(10)}))
}
