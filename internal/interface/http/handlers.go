package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/application/command"
	"github.com/Keldarne/cirque-app-sub003/internal/application/query"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Cirque Progression API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":      "/health",
			"attempts":    "POST /api/v1/attempts",
			"statistics":  "/api/v1/users/{id}/statistics",
			"decay":       "/api/v1/users/{id}/memory-decay",
			"grit":        "/api/v1/users/{id}/grit",
			"progress":    "/api/v1/users/{id}/steps/{stepID}/progress",
			"leaderboard": "/api/v1/leaderboard",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady fails only when a critical dependency is down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// RecordAttemptRequest is the body of POST /api/v1/attempts.
type RecordAttemptRequest struct {
	UserID            int64  `json:"user_id"`
	StepID            int64  `json:"step_id"`
	ProgressionID     int64  `json:"progression_id"`
	Succeeded         bool   `json:"succeeded"`
	Note              string `json:"note,omitempty"`
	SharedWithTeacher bool   `json:"shared_with_teacher,omitempty"`
}

// AttemptDTO is a ledger entry as returned by the API.
type AttemptDTO struct {
	ID                string    `json:"id"`
	UserID            int64     `json:"user_id"`
	StepID            int64     `json:"step_id"`
	ProgressionID     int64     `json:"progression_id"`
	Succeeded         bool      `json:"succeeded"`
	OccurredAt        time.Time `json:"occurred_at"`
	Note              string    `json:"note,omitempty"`
	SharedWithTeacher bool      `json:"shared_with_teacher"`
}

// RecordAttemptResponse is the outcome of recording an attempt.
type RecordAttemptResponse struct {
	Attempt           AttemptDTO           `json:"attempt"`
	TotalFailures     int                  `json:"total_failures"`
	CriticalThreshold int                  `json:"critical_threshold"`
	IsBlocked         bool                 `json:"is_blocked"`
	Validation        *query.ValidationDTO `json:"validation,omitempty"`
	NewlyValidated    bool                 `json:"newly_validated"`
}

func (s *Server) handleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordAttempt == nil {
		writeNotConfigured(w, r, "attempts")
		return
	}

	var req RecordAttemptRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		case errors.Is(err, io.EOF):
			writeJSONError(w, r, http.StatusBadRequest, "invalid_argument", "Request body is required")
		default:
			writeJSONError(w, r, http.StatusBadRequest, "invalid_argument", "Malformed JSON body")
		}
		return
	}

	res, err := s.deps.RecordAttempt.Handle(r.Context(), command.RecordAttemptCommand{
		UserID:            req.UserID,
		StepID:            req.StepID,
		ProgressionID:     req.ProgressionID,
		Succeeded:         req.Succeeded,
		Note:              req.Note,
		SharedWithTeacher: req.SharedWithTeacher,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	a := res.Attempt
	out := RecordAttemptResponse{
		Attempt: AttemptDTO{
			ID:                a.ID.String(),
			UserID:            a.UserID,
			StepID:            a.StepID,
			ProgressionID:     a.ProgressionID,
			Succeeded:         a.Succeeded,
			OccurredAt:        a.OccurredAt,
			Note:              a.Note,
			SharedWithTeacher: a.SharedWithTeacher,
		},
		TotalFailures:     res.TotalFailures,
		CriticalThreshold: res.CriticalThreshold,
		IsBlocked:         res.IsBlocked,
		NewlyValidated:    res.NewlyValidated,
	}
	if res.Validation != nil {
		out.Validation = query.NewValidationDTO(*res.Validation)
	}
	writeJSON(w, r, http.StatusCreated, out)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStatistics handles GET /api/v1/users/{id}/statistics
func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetProfileStatistics == nil {
		writeNotConfigured(w, r, "statistics")
		return
	}
	userID, ok := pathID(r, "id")
	if !ok {
		writeInvalidParam(w, r, "id")
		return
	}
	res, err := s.deps.GetProfileStatistics.Handle(r.Context(), query.GetProfileStatisticsQuery{UserID: userID})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleGetDecay handles GET /api/v1/users/{id}/memory-decay
func (s *Server) handleGetDecay(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetDecayProfile == nil {
		writeNotConfigured(w, r, "memory decay")
		return
	}
	userID, ok := pathID(r, "id")
	if !ok {
		writeInvalidParam(w, r, "id")
		return
	}
	res, err := s.deps.GetDecayProfile.Handle(r.Context(), query.GetDecayProfileQuery{UserID: userID})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleGetGrit handles GET /api/v1/users/{id}/grit?scope=step&scope_id=42
func (s *Server) handleGetGrit(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetGritScore == nil {
		writeNotConfigured(w, r, "grit")
		return
	}
	userID, ok := pathID(r, "id")
	if !ok {
		writeInvalidParam(w, r, "id")
		return
	}
	scopeID, ok := queryInt64(r, "scope_id")
	if !ok {
		writeInvalidParam(w, r, "scope_id")
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "user"
	}
	res, err := s.deps.GetGritScore.Handle(r.Context(), query.GetGritScoreQuery{
		UserID:  userID,
		Scope:   scope,
		ScopeID: scopeID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleGetStepProgress handles
// GET /api/v1/users/{id}/steps/{stepID}/progress?progression_id=1
func (s *Server) handleGetStepProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStepProgress == nil {
		writeNotConfigured(w, r, "step progress")
		return
	}
	userID, ok := pathID(r, "id")
	if !ok {
		writeInvalidParam(w, r, "id")
		return
	}
	stepID, ok := pathID(r, "stepID")
	if !ok {
		writeInvalidParam(w, r, "stepID")
		return
	}
	progressionID, ok := queryInt64(r, "progression_id")
	if !ok {
		writeInvalidParam(w, r, "progression_id")
		return
	}
	res, err := s.deps.GetStepProgress.Handle(r.Context(), query.GetStepProgressQuery{
		UserID:        userID,
		StepID:        stepID,
		ProgressionID: progressionID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/leaderboard?scope=group&group_id=7&limit=10
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLeaderboard == nil {
		writeNotConfigured(w, r, "leaderboard")
		return
	}
	groupID, ok := queryInt64(r, "group_id")
	if !ok {
		writeInvalidParam(w, r, "group_id")
		return
	}
	limit, ok := queryInt64(r, "limit")
	if !ok {
		writeInvalidParam(w, r, "limit")
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "global"
	}
	res, err := s.deps.GetLeaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		Scope:   scope,
		GroupID: groupID,
		Limit:   int(limit),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeError maps application errors onto HTTP statuses. Only domain
// messages reach the client; anything else is logged and reported as a
// generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsInvalidArgument(err):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_argument", publicMessage(err, "Invalid request"))
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", publicMessage(err, "Resource not found"))
	case shared.IsConflict(err):
		writeJSONError(w, r, http.StatusConflict, "conflict", publicMessage(err, "Conflicting update"))
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("request timed out",
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
		writeJSONError(w, r, http.StatusGatewayTimeout, "timeout", "Request timeout exceeded")
	case errors.Is(err, context.Canceled):
		writeJSONError(w, r, http.StatusServiceUnavailable, "canceled", "Request canceled")
	default:
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func publicMessage(err error, fallback string) string {
	if msg := shared.PublicMessage(err); msg != "" {
		return msg
	}
	return fallback
}

func writeInvalidParam(w http.ResponseWriter, r *http.Request, name string) {
	writeJSONError(w, r, http.StatusBadRequest, "invalid_argument", "Invalid parameter: "+name)
}

func writeNotConfigured(w http.ResponseWriter, r *http.Request, what string) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", what+" handler not configured")
}
