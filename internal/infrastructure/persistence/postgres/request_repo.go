package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
)

const requestColumns = `id, requester_id, donor_id, status, note, rating, created_at, updated_at`

const (
	sqlGetRequest = `SELECT ` + requestColumns + ` FROM blood_requests WHERE id = $1`

	sqlInsertRequest = `
		INSERT INTO blood_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + requestColumns

	// The WHERE on status makes the write conditional: a concurrent writer
	// that already moved the request leaves zero rows to update.
	sqlUpdateRequestStatus = `
		UPDATE blood_requests
		SET status = $3,
		    note = COALESCE($4, note),
		    rating = COALESCE($5, rating),
		    updated_at = $6
		WHERE id = $1 AND status = $2
		RETURNING ` + requestColumns

	sqlRequestExists = `SELECT EXISTS (SELECT 1 FROM blood_requests WHERE id = $1)`

	sqlFindPendingRequest = `
		SELECT ` + requestColumns + `
		FROM blood_requests
		WHERE requester_id = $1 AND donor_id = $2 AND status = 'pending'`
)

// GetRequest implements request.Repository.
func (s *Store) GetRequest(ctx context.Context, id request.ID) (*request.BloodRequest, error) {
	r, err := scanRequest(s.q.QueryRow(ctx, sqlGetRequest, string(id)))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRequestNotFound
		}
		return nil, fmt.Errorf("postgres: get request %s: %w", id, err)
	}
	return r, nil
}

// InsertRequest implements request.Repository. The partial unique index on
// pending pairs turns a racing duplicate into ErrDuplicatePending.
func (s *Store) InsertRequest(ctx context.Context, r *request.BloodRequest) (*request.BloodRequest, error) {
	var rating *int
	if r.Rating != nil {
		v := *r.Rating
		rating = &v
	}

	created, err := scanRequest(s.q.QueryRow(ctx, sqlInsertRequest,
		string(r.ID),
		string(r.RequesterID),
		string(r.DonorID),
		string(r.Status),
		r.Note,
		rating,
		r.CreatedAt,
		r.UpdatedAt,
	))
	if err != nil {
		if IsUniqueViolation(err) {
			switch ConstraintName(err) {
			case constraintPendingPair:
				return nil, shared.ErrDuplicatePending
			case constraintRequestPK:
				return nil, shared.WrapError("request", "Insert", shared.ErrInvalidInput, "request id already exists", err)
			}
		}
		return nil, fmt.Errorf("postgres: insert request: %w", err)
	}
	return created, nil
}

// UpdateRequestStatus implements request.Repository.
func (s *Store) UpdateRequestStatus(ctx context.Context, id request.ID, expected request.Status, patch request.Patch) (*request.BloodRequest, error) {
	updated, err := scanRequest(s.q.QueryRow(ctx, sqlUpdateRequestStatus,
		string(id),
		string(expected),
		string(patch.Status),
		patch.Note,
		patch.Rating,
		patch.UpdatedAt,
	))
	if err == nil {
		return updated, nil
	}
	if !IsNoRows(err) {
		return nil, fmt.Errorf("postgres: update request %s: %w", id, err)
	}

	var exists bool
	if err := s.q.QueryRow(ctx, sqlRequestExists, string(id)).Scan(&exists); err != nil {
		return nil, fmt.Errorf("postgres: check request %s: %w", id, err)
	}
	if !exists {
		return nil, shared.ErrRequestNotFound
	}
	return nil, shared.ErrRequestConflict
}

// FindPendingRequest implements request.Repository.
func (s *Store) FindPendingRequest(ctx context.Context, requesterID, donorID donor.ID) (*request.BloodRequest, error) {
	r, err := scanRequest(s.q.QueryRow(ctx, sqlFindPendingRequest, string(requesterID), string(donorID)))
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: find pending request: %w", err)
	}
	return r, nil
}

func scanRequest(row pgx.Row) (*request.BloodRequest, error) {
	var (
		r                          request.BloodRequest
		id, requester, donorID, st string
		rating                     *int32
		createdAt, updatedAt       time.Time
	)
	if err := row.Scan(&id, &requester, &donorID, &st, &r.Note, &rating, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.ID = request.ID(id)
	r.RequesterID = donor.ID(requester)
	r.DonorID = donor.ID(donorID)
	r.Status = request.Status(st)
	r.CreatedAt = createdAt.UTC()
	r.UpdatedAt = updatedAt.UTC()
	if rating != nil {
		v := int(*rating)
		r.Rating = &v
	}
	return &r, nil
}
