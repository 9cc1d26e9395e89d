package api

import (
	"context"

	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/internal/repository"
	"github.com/blockedby/relaybot/internal/transfer"
)

// SessionStore defines the session pool operations the admin API exposes.
type SessionStore interface {
	List(ctx context.Context) ([]models.SessionAccount, error)
	Get(ctx context.Context, id uint) (*models.SessionAccount, error)
	Add(ctx context.Context, in repository.NewSession) (*models.SessionAccount, error)
	Update(ctx context.Context, id uint, u repository.SessionUpdate) (*models.SessionAccount, error)
	Delete(ctx context.Context, id uint) error
	Toggle(ctx context.Context, id uint) (*models.SessionAccount, error)
	ResetFloodWait(ctx context.Context, id uint) error
	Stats(ctx context.Context) (repository.SessionStats, error)
}

// TaskStore defines read access to the task ledger.
type TaskStore interface {
	Get(ctx context.Context, id uint) (*models.TransferTask, error)
	ListByOwner(ctx context.Context, ownerID int64, limit int) ([]models.TransferTask, error)
}

// TransferManager defines the run control the admin API drives.
type TransferManager interface {
	Start(ctx context.Context, p *transfer.Payload) (*models.TransferTask, error)
	Resume(ctx context.Context, taskID uint) (*models.TransferTask, error)
	Stop(taskID uint) bool
	IsRunning(taskID uint) bool
	Running() []transfer.RunInfo
}

// StatsRepository defines the interface for stats data access.
type StatsRepository interface {
	GetStats(ctx context.Context) (*repository.DashboardStats, error)
}

// AdminChecker reports whether a telegram user may start transfers.
type AdminChecker interface {
	IsAdmin(id int64) bool
}
