package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acctax/taxflow/internal/common"
)

// DashboardStats is the aggregate view backing the dashboard stats endpoint.
type DashboardStats struct {
	TotalDocuments      int64    `json:"total_documents"`
	CompletedDocuments  int64    `json:"completed_documents"`
	ErrorDocuments      int64    `json:"error_documents"`
	ProcessingDocuments int64    `json:"processing_documents"`
	PendingDocuments    int64    `json:"pending_documents"`
	ReadyForAIDocuments int64    `json:"ready_for_ai_documents"`
	AvgConfidence       *float64 `json:"avg_confidence,omitempty"`
	TotalClients        int64    `json:"total_clients"`
}

type DashboardRepository interface {
	Stats(ctx context.Context) (*DashboardStats, error)
}

type dashboardRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDashboardRepository(pool *pgxpool.Pool, logger *slog.Logger) DashboardRepository {
	return &dashboardRepo{pool: pool, logger: logger}
}

func (r *dashboardRepo) Stats(ctx context.Context) (*DashboardStats, error) {
	var s DashboardStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE processing_status = 'completed'),
			COUNT(*) FILTER (WHERE processing_status = 'error'),
			COUNT(*) FILTER (WHERE processing_status = 'processing'),
			COUNT(*) FILTER (WHERE processing_status = 'pending'),
			COUNT(*) FILTER (WHERE processing_status = 'ready_for_ai'),
			AVG(confidence),
			COUNT(DISTINCT client_id)
		FROM documents`).Scan(
		&s.TotalDocuments, &s.CompletedDocuments, &s.ErrorDocuments,
		&s.ProcessingDocuments, &s.PendingDocuments, &s.ReadyForAIDocuments,
		&s.AvgConfidence, &s.TotalClients)
	if err != nil {
		r.logger.Error("dashboard.stats.failed", "error", err)
		return nil, common.StorageError("dashboard stats", err)
	}
	return &s, nil
}
