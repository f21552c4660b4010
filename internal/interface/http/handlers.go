package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bloodlink/donor-hub/internal/application/command"
	"github.com/bloodlink/donor-hub/internal/application/query"
	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/pkg/logger"
)

// HeaderActorID carries the authenticated donor on every API call.
// Identity is established upstream (gateway or session service).
const HeaderActorID = "X-Actor-ID"

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		s.writeJSON(w, r, http.StatusOK, map[string]string{
			"status": "healthy",
			"uptime": s.Uptime().String(),
		}, nil)
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, code, status, nil)
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			s.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			}, nil)
			return
		}
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// DONOR SEARCH
// GET /api/v1/donors/search?blood_group=O%2B&location=almaty&limit=20
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleSearchDonors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, &APIError{Code: "invalid_input", Message: "limit must be an integer"})
			return
		}
		limit = n
	}

	matches, err := s.deps.SearchDonors.Handle(r.Context(), query.SearchDonorsQuery{
		BloodGroup: normalizeBloodGroup(q.Get("blood_group")),
		Location:   q.Get("location"),
		ExcludeID:  donor.ID(strings.TrimSpace(r.Header.Get(HeaderActorID))),
		Limit:      limit,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, matches, &ResponseMeta{TotalCount: len(matches)})
}

// normalizeBloodGroup restores the '+' that an unescaped query string turns
// into a space ("O+" arrives as "O ").
func normalizeBloodGroup(raw string) string {
	g := strings.TrimLeft(raw, " ")
	if strings.HasSuffix(g, " ") {
		g = strings.TrimRight(g, " ") + "+"
	}
	return g
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

type createRequestBody struct {
	DonorID string `json:"donor_id"`
}

type noteBody struct {
	Note string `json:"note"`
}

type completeBody struct {
	Rating *int `json:"rating"`
}

// POST /api/v1/requests
func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	var body createRequestBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	created, err := s.deps.Lifecycle.Create(r.Context(), command.CreateRequestCommand{
		RequesterID: actor,
		DonorID:     donor.ID(strings.TrimSpace(body.DonorID)),
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("blood request created",
		logger.BloodRequestID(created.ID.String()),
		logger.DonorID(created.DonorID.String()),
	)
	s.writeJSON(w, r, http.StatusCreated, created, nil)
}

// GET /api/v1/requests/{id}
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	found, err := s.deps.GetRequest.Handle(r.Context(), query.GetRequestQuery{
		RequestID: request.ID(r.PathValue("id")),
		ActorID:   actor,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, found, nil)
}

// POST /api/v1/requests/{id}/accept
func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.deps.Lifecycle.Accept)
}

// POST /api/v1/requests/{id}/reject
func (s *Server) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.deps.Lifecycle.Reject)
}

// POST /api/v1/requests/{id}/cancel
func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	var body noteBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	updated, err := s.deps.Lifecycle.Cancel(r.Context(), command.CancelCommand{
		RequestID: request.ID(r.PathValue("id")),
		ActorID:   actor,
		Note:      body.Note,
	})
	s.writeTransition(w, r, updated, err)
}

// POST /api/v1/requests/{id}/complete
func (s *Server) handleCompleteRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	var body completeBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	updated, err := s.deps.Lifecycle.Complete(r.Context(), command.CompleteCommand{
		RequestID: request.ID(r.PathValue("id")),
		ActorID:   actor,
		Rating:    body.Rating,
	})
	s.writeTransition(w, r, updated, err)
}

// respond serves accept and reject, which share the donor-side body.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, fn func(context.Context, command.RespondCommand) (*request.BloodRequest, error)) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	var body noteBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	updated, err := fn(r.Context(), command.RespondCommand{
		RequestID: request.ID(r.PathValue("id")),
		ActorID:   actor,
		Note:      body.Note,
	})
	s.writeTransition(w, r, updated, err)
}

func (s *Server) writeTransition(w http.ResponseWriter, r *http.Request, updated *request.BloodRequest, err error) {
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("blood request transitioned",
		logger.BloodRequestID(updated.ID.String()),
		logger.RequestStatus(updated.Status.String()),
	)
	s.writeJSON(w, r, http.StatusOK, updated, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// requireActor reads the acting donor or writes 401.
func (s *Server) requireActor(w http.ResponseWriter, r *http.Request) (donor.ID, bool) {
	actor := donor.ID(strings.TrimSpace(r.Header.Get(HeaderActorID)))
	if !actor.IsValid() {
		s.writeError(w, r, http.StatusUnauthorized, &APIError{
			Code:    "missing_actor",
			Message: HeaderActorID + " header is required",
		})
		return "", false
	}
	return actor, true
}

// decodeBody decodes an optional JSON body into dst. An empty body leaves
// dst untouched.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.writeError(w, r, http.StatusBadRequest, &APIError{Code: "invalid_body", Message: "request body must be valid JSON"})
	return false
}
