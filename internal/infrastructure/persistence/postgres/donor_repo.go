package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
)

const (
	dialectPostgres = "postgres"
	tableDonors     = "donors"

	colID               = "id"
	colBloodGroup       = "blood_group"
	colLocation         = "location"
	colLastDonationDate = "last_donation_date"
	colAvgRating        = "avg_rating"
	colRatingCount      = "rating_count"
	colStatus           = "status"
	colUpdatedAt        = "updated_at"
)

var donorColumns = []any{colID, colBloodGroup, colLocation, colLastDonationDate, colAvgRating, colRatingCount, colStatus}

var pg = goqu.Dialect(dialectPostgres)

// ══════════════════════════════════════════════════════════════════════════════
// QUERY BUILDERS
// ══════════════════════════════════════════════════════════════════════════════

// buildGetDonorQuery selects one donor; forUpdate adds a row lock.
func buildGetDonorQuery(id donor.ID, forUpdate bool) (string, []any, error) {
	ds := pg.From(tableDonors).
		Prepared(true).
		Select(donorColumns...).
		Where(goqu.C(colID).Eq(string(id)))
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}
	return ds.ToSQL()
}

// buildFindDonorsQuery turns a donor.Filter into SQL. Only active donors are
// returned, ordered by rating then id.
func buildFindDonorsQuery(f donor.Filter) (string, []any, error) {
	where := []exp.Expression{goqu.C(colStatus).Eq(string(donor.StatusActive))}

	if f.BloodGroup != nil {
		where = append(where, goqu.C(colBloodGroup).Eq(string(*f.BloodGroup)))
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		where = append(where, goqu.C(colLocation).ILike("%"+escapeLike(loc)+"%"))
	}
	if f.ExcludeID != "" {
		where = append(where, goqu.C(colID).Neq(string(f.ExcludeID)))
	}
	if f.EligibleAt != nil {
		where = append(where, goqu.Or(
			goqu.C(colLastDonationDate).IsNull(),
			goqu.C(colLastDonationDate).Lte(donor.CooldownCutoff(*f.EligibleAt)),
		))
	}

	ds := pg.From(tableDonors).
		Prepared(true).
		Select(donorColumns...).
		Where(where...).
		Order(goqu.C(colAvgRating).Desc(), goqu.C(colID).Asc())
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}
	return ds.ToSQL()
}

// buildFindRestoredQuery selects active donors with last donation in (from, to].
func buildFindRestoredQuery(from, to time.Time) (string, []any, error) {
	return pg.From(tableDonors).
		Prepared(true).
		Select(donorColumns...).
		Where(
			goqu.C(colStatus).Eq(string(donor.StatusActive)),
			goqu.C(colLastDonationDate).Gt(from),
			goqu.C(colLastDonationDate).Lte(to),
		).
		Order(goqu.C(colID).Asc()).
		ToSQL()
}

// buildUpdateDonorQuery sets the patched columns and returns the new row.
// Without p.UpdatedAt the database clock stamps the row.
func buildUpdateDonorQuery(id donor.ID, p donor.Patch) (string, []any, error) {
	rec := goqu.Record{colUpdatedAt: goqu.L("NOW()")}
	if !p.UpdatedAt.IsZero() {
		rec[colUpdatedAt] = p.UpdatedAt.UTC()
	}
	if p.LastDonationDate != nil {
		rec[colLastDonationDate] = *p.LastDonationDate
	}
	if p.AvgRating != nil {
		rec[colAvgRating] = *p.AvgRating
	}
	if p.RatingCount != nil {
		rec[colRatingCount] = *p.RatingCount
	}

	return pg.Update(tableDonors).
		Prepared(true).
		Set(rec).
		Where(goqu.C(colID).Eq(string(id))).
		Returning(donorColumns...).
		ToSQL()
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ══════════════════════════════════════════════════════════════════════════════
// donor.Repository
// ══════════════════════════════════════════════════════════════════════════════

// GetDonor implements donor.Repository. Inside a transaction the row is
// locked until commit.
func (s *Store) GetDonor(ctx context.Context, id donor.ID) (*donor.Donor, error) {
	query, args, err := buildGetDonorQuery(id, s.inTx)
	if err != nil {
		return nil, fmt.Errorf("postgres: build get donor: %w", err)
	}

	d, err := scanDonor(s.q.QueryRow(ctx, query, args...))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrDonorNotFound
		}
		return nil, fmt.Errorf("postgres: get donor %s: %w", id, err)
	}
	return d, nil
}

// FindDonors implements donor.Repository.
func (s *Store) FindDonors(ctx context.Context, filter donor.Filter) ([]*donor.Donor, error) {
	query, args, err := buildFindDonorsQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("postgres: build find donors: %w", err)
	}
	return s.queryDonors(ctx, query, args)
}

// FindRestored implements donor.Repository.
func (s *Store) FindRestored(ctx context.Context, from, to time.Time) ([]*donor.Donor, error) {
	query, args, err := buildFindRestoredQuery(from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: build find restored: %w", err)
	}
	return s.queryDonors(ctx, query, args)
}

// UpdateDonor implements donor.Repository.
func (s *Store) UpdateDonor(ctx context.Context, id donor.ID, patch donor.Patch) (*donor.Donor, error) {
	query, args, err := buildUpdateDonorQuery(id, patch)
	if err != nil {
		return nil, fmt.Errorf("postgres: build update donor: %w", err)
	}

	d, err := scanDonor(s.q.QueryRow(ctx, query, args...))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrDonorNotFound
		}
		return nil, fmt.Errorf("postgres: update donor %s: %w", id, err)
	}
	return d, nil
}

func (s *Store) queryDonors(ctx context.Context, query string, args []any) ([]*donor.Donor, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query donors: %w", err)
	}
	defer rows.Close()

	out := make([]*donor.Donor, 0)
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan donor: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDonor(row pgx.Row) (*donor.Donor, error) {
	var (
		d                       donor.Donor
		id, group, location, st string
		last                    *time.Time
	)
	if err := row.Scan(&id, &group, &location, &last, &d.AvgRating, &d.RatingCount, &st); err != nil {
		return nil, err
	}
	d.ID = donor.ID(id)
	d.BloodGroup = donor.BloodGroup(group)
	d.Location = location
	d.Status = donor.Status(st)
	if last != nil {
		t := last.UTC()
		d.LastDonationDate = &t
	}
	return &d, nil
}
