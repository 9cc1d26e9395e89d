package models

import "time"

// TaskStatus is the lifecycle state of a transfer task.
type TaskStatus string

// TaskStatus constants.
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// ActiveStatuses are the statuses of a task that still holds an owner's attention.
var ActiveStatuses = []TaskStatus{TaskPending, TaskRunning, TaskPaused}

// PauseReason records why a task was paused; it decides how the cursor is resumed.
type PauseReason string

// PauseReason constants.
const (
	PauseNone       PauseReason = ""
	PauseBatchLimit PauseReason = "batch_limit"
	PauseFloodWait  PauseReason = "flood_wait"
	// PauseStopped marks a run stopped by an operator or by shutdown.
	PauseStopped PauseReason = "stopped"
)

// TransferTask is the durable record of one transfer attempt.
type TransferTask struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	OwnerID       int64   `gorm:"not null;index:idx_transfer_tasks_owner_status,priority:1" json:"owner_id"`
	SourceChannel string  `gorm:"size:255;not null" json:"source_channel"`
	Title         string  `gorm:"size:255;not null" json:"title"`
	Description   *string `gorm:"type:text" json:"description,omitempty"`

	// Config is the serialized transfer payload; the ledger never interprets it.
	Config string `gorm:"type:text;not null" json:"config"`

	Status TaskStatus `gorm:"size:16;not null;index:idx_transfer_tasks_owner_status,priority:2;index:idx_transfer_tasks_status_created,priority:1" json:"status"`

	TotalScanned     int `gorm:"not null" json:"total_scanned"`
	TotalMatched     int `gorm:"not null" json:"total_matched"`
	TotalTransferred int `gorm:"not null" json:"total_transferred"`

	// LastMessageID is the newest-to-oldest scan cursor.
	LastMessageID *int `json:"last_message_id,omitempty"`
	BatchNumber   int  `gorm:"not null" json:"batch_number"`

	PauseReason      PauseReason `gorm:"size:16" json:"pause_reason,omitempty"`
	FloodWaitSeconds int         `json:"flood_wait_seconds,omitempty"`
	SessionID        *uint       `json:"session_id,omitempty"`

	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"index:idx_transfer_tasks_status_created,priority:2" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName overrides the gorm table name.
func (TransferTask) TableName() string { return "transfer_tasks" }

// ResumeOffset returns the history offset a resumed scan should start from.
// History offsets are exclusive, so a task paused on a flood-rejected message
// resumes one past it to retry that message.
func (t *TransferTask) ResumeOffset() int {
	if t.LastMessageID == nil {
		return 0
	}
	if t.PauseReason == PauseFloodWait {
		return *t.LastMessageID + 1
	}
	return *t.LastMessageID
}
