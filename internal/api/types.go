package api

import (
	"time"

	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/repository"
	"github.com/blockedby/relaybot/internal/transfer"
)

// ============================================================================
// Common Types
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status" example:"ok" description:"Health status"`
	Version string `json:"version" example:"dev" description:"Application version"`
	Running int    `json:"running" description:"Transfers currently scanning"`
}

// StatusResponse acknowledges an action.
type StatusResponse struct {
	Status string `json:"status" example:"ok" description:"Outcome of the action"`
}

// ============================================================================
// Session Types
// ============================================================================

// SessionResponse is a session account without its credentials.
type SessionResponse struct {
	ID               uint       `json:"id" description:"Session account ID"`
	Name             string     `json:"name" description:"Display name"`
	Phone            string     `json:"phone,omitempty" description:"Phone number the account was registered with"`
	UserID           int64      `json:"user_id,omitempty" description:"The account's own Telegram user ID"`
	IsActive         bool       `json:"is_active" description:"Enabled by an administrator"`
	IsAvailable      bool       `json:"is_available" description:"Not inside a flood wait"`
	FloodWaitUntil   *time.Time `json:"flood_wait_until,omitempty" description:"End of the current flood wait"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty" description:"Last time a transfer acquired the account"`
	TotalTransferred int        `json:"total_transferred" description:"Files relayed over the account's lifetime"`
	DailyTransferred int        `json:"daily_transferred" description:"Files relayed today (UTC)"`
	Priority         int        `json:"priority" description:"Selection priority; higher is preferred"`
	CreatedAt        time.Time  `json:"created_at" description:"Record creation timestamp"`
}

// SessionFromModel converts a stored account.
func SessionFromModel(s *models.SessionAccount) SessionResponse {
	return SessionResponse{
		ID:               s.ID,
		Name:             s.Name,
		Phone:            s.Phone,
		UserID:           s.UserID,
		IsActive:         s.IsActive,
		IsAvailable:      s.IsAvailable,
		FloodWaitUntil:   s.FloodWaitUntil,
		LastUsedAt:       s.LastUsedAt,
		TotalTransferred: s.TotalTransferred,
		DailyTransferred: s.DailyTransferred,
		Priority:         s.Priority,
		CreatedAt:        s.CreatedAt,
	}
}

// SessionsListResponse lists every session account.
type SessionsListResponse struct {
	Sessions []SessionResponse `json:"sessions" description:"Session accounts in selection order"`
	Total    int               `json:"total" description:"Number of accounts"`
}

// SessionCreateRequest onboards an account from an exported session string.
type SessionCreateRequest struct {
	Name          string `json:"name" validate:"required" description:"Unique display name"`
	Phone         string `json:"phone,omitempty" description:"Phone number"`
	UserID        int64  `json:"user_id,omitempty" description:"The account's own Telegram user ID"`
	APIID         int    `json:"api_id" validate:"required" description:"Telegram API ID the session was created with"`
	APIHash       string `json:"api_hash" validate:"required" description:"Telegram API hash"`
	SessionString string `json:"session_string" validate:"required" description:"Exported session string"`
	Priority      int    `json:"priority" description:"Selection priority; higher is preferred"`
}

// SessionUpdateRequest changes the given fields only.
type SessionUpdateRequest struct {
	Name          *string `json:"name,omitempty" description:"New display name"`
	Priority      *int    `json:"priority,omitempty" description:"New selection priority"`
	SessionString *string `json:"session_string,omitempty" description:"Replacement session string"`
	UserID        *int64  `json:"user_id,omitempty" description:"The account's own Telegram user ID"`
}

// SessionStatsResponse summarises pool capacity.
type SessionStatsResponse = repository.SessionStats

// ============================================================================
// Transfer Types
// ============================================================================

// TransferStartRequest starts a transfer for an administrator.
type TransferStartRequest = transfer.Payload

// TransferResponse is a task with its live state.
type TransferResponse struct {
	ID               uint               `json:"id" description:"Task ID"`
	OwnerID          int64              `json:"owner_id" description:"Administrator who started the transfer"`
	SourceChannel    string             `json:"source_channel" description:"Channel username scanned"`
	Title            string             `json:"title" description:"Collection title"`
	Status           models.TaskStatus  `json:"status" description:"pending, running, paused, completed or failed"`
	Running          bool               `json:"running" description:"Whether this process is scanning the task right now"`
	TotalScanned     int                `json:"total_scanned" description:"Messages examined"`
	TotalMatched     int                `json:"total_matched" description:"Messages that passed the filters"`
	TotalTransferred int                `json:"total_transferred" description:"Messages relayed"`
	LastMessageID    *int               `json:"last_message_id,omitempty" description:"Scan cursor"`
	BatchNumber      int                `json:"batch_number" description:"Batches completed"`
	PauseReason      models.PauseReason `json:"pause_reason,omitempty" description:"batch_limit, flood_wait or stopped"`
	FloodWaitSeconds int                `json:"flood_wait_seconds,omitempty" description:"Flood wait reported at pause"`
	ErrorMessage     *string            `json:"error_message,omitempty" description:"Failure cause"`
	StartedAt        *time.Time         `json:"started_at,omitempty" description:"First run start"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty" description:"Completion time"`
	CreatedAt        time.Time          `json:"created_at" description:"Record creation timestamp"`
}

// TransferFromModel converts a task.
func TransferFromModel(t *models.TransferTask, running bool) TransferResponse {
	return TransferResponse{
		ID:               t.ID,
		OwnerID:          t.OwnerID,
		SourceChannel:    t.SourceChannel,
		Title:            t.Title,
		Status:           t.Status,
		Running:          running,
		TotalScanned:     t.TotalScanned,
		TotalMatched:     t.TotalMatched,
		TotalTransferred: t.TotalTransferred,
		LastMessageID:    t.LastMessageID,
		BatchNumber:      t.BatchNumber,
		PauseReason:      t.PauseReason,
		FloodWaitSeconds: t.FloodWaitSeconds,
		ErrorMessage:     t.ErrorMessage,
		StartedAt:        t.StartedAt,
		CompletedAt:      t.CompletedAt,
		CreatedAt:        t.CreatedAt,
	}
}

// TransfersListResponse lists an owner's latest transfers.
type TransfersListResponse struct {
	Transfers []TransferResponse `json:"transfers" description:"Tasks, newest first"`
	Total     int                `json:"total" description:"Number of tasks returned"`
}

// RunningResponse lists the runs in progress.
type RunningResponse struct {
	Runs []transfer.RunInfo `json:"runs" description:"Runs in progress, oldest first"`
}

// ============================================================================
// Stats Types
// ============================================================================

// StatsResponse is the dashboard summary.
type StatsResponse = repository.DashboardStats
