package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"loankyc/internal/application/models"
	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
	txcontext "loankyc/pkg/platform/tx"
)

// PostgresStore writes the ledger to application_history.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, ev models.HistoryEvent) error {
	query := `
		INSERT INTO application_history (
			id, application_id, client_id, sequence, action, from_status, to_status,
			reason, notes, performed_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		ev.ID,
		uuid.UUID(ev.ApplicationID),
		uuid.UUID(ev.ClientID),
		ev.Sequence,
		string(ev.Action),
		string(ev.FromStatus),
		string(ev.ToStatus),
		ev.Reason,
		ev.Notes,
		uuid.UUID(ev.PerformedBy),
		ev.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append application history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFor(ctx context.Context, appID id.ApplicationID) ([]models.HistoryEvent, error) {
	query := `
		SELECT id, application_id, client_id, sequence, action, from_status, to_status,
			reason, notes, performed_by, created_at
		FROM application_history
		WHERE application_id = $1
		ORDER BY created_at, sequence
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list application history: %w", err)
	}
	defer rows.Close()

	out := make([]models.HistoryEvent, 0)
	for rows.Next() {
		var (
			ev                    models.HistoryEvent
			aid, cid, performedBy uuid.UUID
			action, fromSt, toSt  string
		)
		if err := rows.Scan(&ev.ID, &aid, &cid, &ev.Sequence, &action, &fromSt, &toSt,
			&ev.Reason, &ev.Notes, &performedBy, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan application history: %w", err)
		}
		ev.ApplicationID = id.ApplicationID(aid)
		ev.ClientID = id.ClientID(cid)
		ev.PerformedBy = id.UserID(performedBy)
		ev.Action = workflow.Action(action)
		if ev.FromStatus, ev.ToStatus, err = decodeTransition(fromSt, toSt); err != nil {
			return nil, fmt.Errorf("scan application history %s: %w", ev.ID, err)
		}
		ev.CreatedAt = ev.CreatedAt.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list application history: %w", err)
	}
	return out, nil
}

func decodeTransition(from, to string) (models.Status, models.Status, error) {
	fromSt, err := models.ParseStatus(from)
	if err != nil {
		return "", "", fmt.Errorf("from_status: %w", err)
	}
	toSt, err := models.ParseStatus(to)
	if err != nil {
		return "", "", fmt.Errorf("to_status: %w", err)
	}
	return fromSt, toSt, nil
}
