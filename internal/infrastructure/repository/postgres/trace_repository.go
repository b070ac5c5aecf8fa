package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
)

// TraceRepository persists thought-trace audit events consumed by the
// worker.
type TraceRepository struct {
	db *sql.DB
}

func NewTraceRepository(db *sql.DB) *TraceRepository {
	return &TraceRepository{db: db}
}

func (r *TraceRepository) SaveTrace(ctx context.Context, event domain.TraceEvent) error {
	dataPoints, err := json.Marshal(event.DataPoints.Text)
	if err != nil {
		return fmt.Errorf("marshal data points: %w", err)
	}
	thoughts, err := json.Marshal(event.Thoughts)
	if err != nil {
		return fmt.Errorf("marshal thoughts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO chat_traces (id, session_id, question, data_points, thoughts, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING
`, event.ID, event.SessionID, event.Question, dataPoints, thoughts, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	return nil
}
