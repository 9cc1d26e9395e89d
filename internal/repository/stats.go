package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DashboardStats contains aggregated counters for the admin dashboard.
type DashboardStats struct {
	PendingTasks      int `json:"pending_tasks"`
	RunningTasks      int `json:"running_tasks"`
	PausedTasks       int `json:"paused_tasks"`
	CompletedTasks    int `json:"completed_tasks"`
	FailedTasks       int `json:"failed_tasks"`
	TransferredTotal  int `json:"transferred_total"`
	TransferredToday  int `json:"transferred_today"`
	Collections       int `json:"collections"`
	MediaFiles        int `json:"media_files"`
	ActiveSessions    int `json:"active_sessions"`
	AvailableSessions int `json:"available_sessions"`
}

// StatsRepository runs the dashboard aggregate queries on the postgres pool.
type StatsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// GetStats retrieves aggregated statistics for the dashboard.
func (r *StatsRepository) GetStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(CASE WHEN status = 'pending' THEN 1 END),
			COUNT(CASE WHEN status = 'running' THEN 1 END),
			COUNT(CASE WHEN status = 'paused' THEN 1 END),
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(CASE WHEN status = 'failed' THEN 1 END),
			COALESCE(SUM(total_transferred), 0)
		FROM transfer_tasks
	`).Scan(&stats.PendingTasks, &stats.RunningTasks, &stats.PausedTasks,
		&stats.CompletedTasks, &stats.FailedTasks, &stats.TransferredTotal)
	if err != nil {
		return nil, fmt.Errorf("get task stats: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN last_reset_date >= CURRENT_DATE THEN daily_transferred ELSE 0 END), 0),
			COUNT(CASE WHEN is_active THEN 1 END),
			COUNT(CASE WHEN is_active AND is_available THEN 1 END)
		FROM user_bot_sessions
	`).Scan(&stats.TransferredToday, &stats.ActiveSessions, &stats.AvailableSessions)
	if err != nil {
		return nil, fmt.Errorf("get session stats: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM collections), (SELECT COUNT(*) FROM media_files)
	`).Scan(&stats.Collections, &stats.MediaFiles)
	if err != nil {
		return nil, fmt.Errorf("get collection stats: %w", err)
	}

	return stats, nil
}
