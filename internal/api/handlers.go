// Package api provides the admin REST API: session pool management, transfer
// control and dashboard stats.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-fuego/fuego"

	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/repository"
	"github.com/blockedby/relaybot/internal/transfer"
)

const (
	defaultTransfersLimit = 20
	maxTransfersLimit     = 100
)

// ============================================================================
// Health
// ============================================================================

func (s *Server) healthCheck(c fuego.ContextNoBody) (HealthResponse, error) {
	running := 0
	if s.deps.Manager != nil {
		running = len(s.deps.Manager.Running())
	}
	return HealthResponse{
		Status:  "ok",
		Version: s.version,
		Running: running,
	}, nil
}

// ============================================================================
// Sessions Handlers
// ============================================================================

func (s *Server) listSessions(c fuego.ContextNoBody) (SessionsListResponse, error) {
	accounts, err := s.deps.Sessions.List(c.Context())
	if err != nil {
		return SessionsListResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	out := make([]SessionResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, SessionFromModel(&accounts[i]))
	}
	return SessionsListResponse{Sessions: out, Total: len(out)}, nil
}

func (s *Server) getSession(c fuego.ContextNoBody) (SessionResponse, error) {
	id, err := parseID(c.PathParam("id"))
	if err != nil {
		return SessionResponse{}, fuego.BadRequestError{Detail: "Invalid session ID"}
	}
	acc, err := s.deps.Sessions.Get(c.Context(), id)
	if err != nil {
		return SessionResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	if acc == nil {
		return SessionResponse{}, fuego.NotFoundError{Detail: "Session not found"}
	}
	return SessionFromModel(acc), nil
}

func (s *Server) createSession(c fuego.ContextWithBody[SessionCreateRequest]) (SessionResponse, error) {
	body, err := c.Body()
	if err != nil {
		return SessionResponse{}, fuego.BadRequestError{Detail: err.Error()}
	}
	if body.Name == "" || body.SessionString == "" || body.APIID == 0 || body.APIHash == "" {
		return SessionResponse{}, fuego.BadRequestError{Detail: "name, api_id, api_hash and session_string are required"}
	}

	acc, err := s.deps.Sessions.Add(c.Context(), repository.NewSession{
		Name:          body.Name,
		Phone:         body.Phone,
		UserID:        body.UserID,
		APIID:         body.APIID,
		APIHash:       body.APIHash,
		SessionString: body.SessionString,
		Priority:      body.Priority,
	})
	if err != nil {
		return SessionResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	c.SetStatus(http.StatusCreated)
	return SessionFromModel(acc), nil
}

func (s *Server) updateSession(c fuego.ContextWithBody[SessionUpdateRequest]) (SessionResponse, error) {
	id, err := parseID(c.PathParam("id"))
	if err != nil {
		return SessionResponse{}, fuego.BadRequestError{Detail: "Invalid session ID"}
	}
	body, err := c.Body()
	if err != nil {
		return SessionResponse{}, fuego.BadRequestError{Detail: err.Error()}
	}
	acc, err := s.deps.Sessions.Update(c.Context(), id, repository.SessionUpdate{
		Name:          body.Name,
		Priority:      body.Priority,
		SessionString: body.SessionString,
		UserID:        body.UserID,
	})
	if err != nil {
		return SessionResponse{}, sessionError(err)
	}
	return SessionFromModel(acc), nil
}

func (s *Server) deleteSession(c fuego.ContextNoBody) (any, error) {
	id, err := parseID(c.PathParam("id"))
	if err != nil {
		return nil, fuego.BadRequestError{Detail: "Invalid session ID"}
	}
	if err := s.deps.Sessions.Delete(c.Context(), id); err != nil {
		return nil, sessionError(err)
	}
	c.SetStatus(http.StatusNoContent)
	return nil, nil
}

func (s *Server) toggleSession(c fuego.ContextNoBody) (SessionResponse, error) {
	id, err := parseID(c.PathParam("id"))
	if err != nil {
		return SessionResponse{}, fuego.BadRequestError{Detail: "Invalid session ID"}
	}
	acc, err := s.deps.Sessions.Toggle(c.Context(), id)
	if err != nil {
		return SessionResponse{}, sessionError(err)
	}
	return SessionFromModel(acc), nil
}

func (s *Server) resetSessionFlood(c fuego.ContextNoBody) (StatusResponse, error) {
	id, err := parseID(c.PathParam("id"))
	if err != nil {
		return StatusResponse{}, fuego.BadRequestError{Detail: "Invalid session ID"}
	}
	if err := s.deps.Sessions.ResetFloodWait(c.Context(), id); err != nil {
		return StatusResponse{}, sessionError(err)
	}
	return StatusResponse{Status: "available"}, nil
}

func (s *Server) sessionStats(c fuego.ContextNoBody) (SessionStatsResponse, error) {
	stats, err := s.deps.Sessions.Stats(c.Context())
	if err != nil {
		return SessionStatsResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	return stats, nil
}

func sessionError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fuego.NotFoundError{Detail: "Session not found"}
	}
	return fuego.InternalServerError{Detail: err.Error()}
}

// ============================================================================
// Transfers Handlers
// ============================================================================

func (s *Server) startTransfer(c fuego.ContextWithBody[TransferStartRequest]) (TransferResponse, error) {
	body, err := c.Body()
	if err != nil {
		return TransferResponse{}, fuego.BadRequestError{Detail: err.Error()}
	}
	if s.deps.Admins != nil && !s.deps.Admins.IsAdmin(body.UserID) {
		return TransferResponse{}, fuego.ForbiddenError{Detail: "userId is not an administrator"}
	}

	task, err := s.deps.Manager.Start(c.Context(), &body)
	if err != nil {
		return TransferResponse{}, transferError(err)
	}
	c.SetStatus(http.StatusAccepted)
	return TransferFromModel(task, s.deps.Manager.IsRunning(task.ID)), nil
}

func (s *Server) listTransfers(c fuego.ContextNoBody) (TransfersListResponse, error) {
	owner, err := strconv.ParseInt(c.QueryParam("owner_id"), 10, 64)
	if err != nil {
		return TransfersListResponse{}, fuego.BadRequestError{Detail: "owner_id is required"}
	}
	limit := parseIntWithDefault(c.QueryParam("limit"), defaultTransfersLimit)
	if limit <= 0 {
		limit = defaultTransfersLimit
	}
	if limit > maxTransfersLimit {
		limit = maxTransfersLimit
	}

	tasks, err := s.deps.Tasks.ListByOwner(c.Context(), owner, limit)
	if err != nil {
		return TransfersListResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	out := make([]TransferResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, TransferFromModel(&tasks[i], s.deps.Manager.IsRunning(tasks[i].ID)))
	}
	return TransfersListResponse{Transfers: out, Total: len(out)}, nil
}

func (s *Server) runningTransfers(c fuego.ContextNoBody) (RunningResponse, error) {
	return RunningResponse{Runs: s.deps.Manager.Running()}, nil
}

func (s *Server) getTransfer(c fuego.ContextNoBody) (TransferResponse, error) {
	id, err := parseID(c.PathParam("id"))
	if err != nil {
		return TransferResponse{}, fuego.BadRequestError{Detail: "Invalid transfer ID"}
	}
	task, err := s.loadTask(c.Context(), id)
	if err != nil {
		return TransferResponse{}, err
	}
	return TransferFromModel(task, s.deps.Manager.IsRunning(id)), nil
}

func (s *Server) resumeTransfer(c fuego.ContextNoBody) (TransferResponse, error) {
	id, err := parseID(c.PathParam("id"))
	if err != nil {
		return TransferResponse{}, fuego.BadRequestError{Detail: "Invalid transfer ID"}
	}
	task, err := s.deps.Manager.Resume(c.Context(), id)
	if err != nil {
		return TransferResponse{}, transferError(err)
	}
	c.SetStatus(http.StatusAccepted)
	return TransferFromModel(task, s.deps.Manager.IsRunning(id)), nil
}

func (s *Server) stopTransfer(c fuego.ContextNoBody) (StatusResponse, error) {
	id, err := parseID(c.PathParam("id"))
	if err != nil {
		return StatusResponse{}, fuego.BadRequestError{Detail: "Invalid transfer ID"}
	}
	if _, err := s.loadTask(c.Context(), id); err != nil {
		return StatusResponse{}, err
	}
	if !s.deps.Manager.Stop(id) {
		return StatusResponse{}, fuego.ConflictError{Detail: "Transfer is not running"}
	}
	return StatusResponse{Status: "stopping"}, nil
}

func (s *Server) loadTask(ctx context.Context, id uint) (*models.TransferTask, error) {
	task, err := s.deps.Tasks.Get(ctx, id)
	if err != nil {
		return nil, fuego.InternalServerError{Detail: err.Error()}
	}
	if task == nil {
		return nil, fuego.NotFoundError{Detail: "Transfer not found"}
	}
	return task, nil
}

func transferError(err error) error {
	switch {
	case errors.Is(err, transfer.ErrInvalidPayload):
		return fuego.BadRequestError{Detail: err.Error()}
	case errors.Is(err, transfer.ErrTaskNotFound):
		return fuego.NotFoundError{Detail: err.Error()}
	case errors.Is(err, transfer.ErrAlreadyRunning), errors.Is(err, transfer.ErrNotResumable):
		return fuego.ConflictError{Detail: err.Error()}
	default:
		return fuego.InternalServerError{Detail: err.Error()}
	}
}

// ============================================================================
// Stats Handlers
// ============================================================================

func (s *Server) getStats(c fuego.ContextNoBody) (StatsResponse, error) {
	if s.deps.Stats == nil {
		return StatsResponse{}, fuego.HTTPError{
			Status: http.StatusServiceUnavailable,
			Title:  "Service Unavailable",
			Detail: "Stats need a postgres database",
		}
	}
	stats, err := s.deps.Stats.GetStats(c.Context())
	if err != nil {
		return StatsResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	return *stats, nil
}

// ============================================================================
// Helpers
// ============================================================================

func parseID(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 0)
	if err != nil || v == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(v), nil
}

func parseIntWithDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
