package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/estimate-engine/pkg/database"
	"github.com/ekaya-inc/estimate-engine/pkg/models"
)

// HistoryRepository appends and reads the column and cell change logs.
// Entries are never updated or deleted here.
type HistoryRepository interface {
	AppendColumnHistory(ctx context.Context, entries ...*models.ColumnHistory) error
	// ListColumnHistory returns entries newest first.
	ListColumnHistory(ctx context.Context, columnID uuid.UUID) ([]*models.ColumnHistory, error)
	AppendCellHistory(ctx context.Context, entry *models.CellHistory) error
	// ListCellHistory returns entries newest first.
	ListCellHistory(ctx context.Context, cellID uuid.UUID) ([]*models.CellHistory, error)
}

type historyRepository struct{}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository() HistoryRepository {
	return &historyRepository{}
}

func (r *historyRepository) AppendColumnHistory(ctx context.Context, entries ...*models.ColumnHistory) error {
	if len(entries) == 0 {
		return nil
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO column_history (id, column_id, user_id, action, field, old_value, new_value, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	batch := &pgx.Batch{}
	now := time.Now()
	for i, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		// Entries written together keep their relative order when read newest first.
		e.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		batch.Queue(query, e.ID, e.ColumnID, e.UserID, e.Action, e.Field, e.OldValue, e.NewValue, e.Metadata, e.CreatedAt)
	}

	results := scope.Conn.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to append column history: %w", err)
		}
	}
	return nil
}

func (r *historyRepository) ListColumnHistory(ctx context.Context, columnID uuid.UUID) ([]*models.ColumnHistory, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, column_id, user_id, action, field, old_value, new_value, metadata, created_at
		FROM column_history
		WHERE column_id = $1
		ORDER BY created_at DESC, id`

	rows, err := scope.Conn.Query(ctx, query, columnID)
	if err != nil {
		return nil, fmt.Errorf("failed to list column history: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.ColumnHistory, 0)
	for rows.Next() {
		var h models.ColumnHistory
		if err := rows.Scan(&h.ID, &h.ColumnID, &h.UserID, &h.Action, &h.Field, &h.OldValue, &h.NewValue, &h.Metadata, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan column history: %w", err)
		}
		entries = append(entries, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column history: %w", err)
	}
	return entries, nil
}

func (r *historyRepository) AppendCellHistory(ctx context.Context, entry *models.CellHistory) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO cell_history (id, cell_id, user_id, old_value, new_value, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.CellID, entry.UserID, entry.OldValue, entry.NewValue, entry.Reason, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append cell history: %w", err)
	}
	return nil
}

func (r *historyRepository) ListCellHistory(ctx context.Context, cellID uuid.UUID) ([]*models.CellHistory, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, cell_id, user_id, old_value, new_value, reason, created_at
		FROM cell_history
		WHERE cell_id = $1
		ORDER BY created_at DESC, id`

	rows, err := scope.Conn.Query(ctx, query, cellID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cell history: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.CellHistory, 0)
	for rows.Next() {
		var h models.CellHistory
		if err := rows.Scan(&h.ID, &h.CellID, &h.UserID, &h.OldValue, &h.NewValue, &h.Reason, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cell history: %w", err)
		}
		entries = append(entries, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cell history: %w", err)
	}
	return entries, nil
}

var _ HistoryRepository = (*historyRepository)(nil)
