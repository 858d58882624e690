package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"loankyc/internal/kyc/models"
	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
	txcontext "loankyc/pkg/platform/tx"
)

// PostgresStore writes the ledger to kyc_history. Rows are never updated.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, ev models.HistoryEvent) error {
	query := `
		INSERT INTO kyc_history (
			id, client_id, sequence, action, from_status, to_status,
			reason, notes, risk_rating, performed_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		ev.ID,
		uuid.UUID(ev.ClientID),
		ev.Sequence,
		string(ev.Action),
		string(ev.FromStatus),
		string(ev.ToStatus),
		ev.Reason,
		ev.Notes,
		string(ev.RiskRating),
		uuid.UUID(ev.PerformedBy),
		ev.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append kyc history: %w", err)
	}
	return nil
}

// ListFor streams the client's events. The query runs when iteration starts,
// so each range over the result sees the ledger as of that moment.
func (s *PostgresStore) ListFor(ctx context.Context, clientID id.ClientID, order models.Order) iter.Seq2[models.HistoryEvent, error] {
	direction := "ASC"
	if order == models.Descending {
		direction = "DESC"
	}
	query := `
		SELECT id, client_id, sequence, action, from_status, to_status,
			reason, notes, risk_rating, performed_by, created_at
		FROM kyc_history
		WHERE client_id = $1
		ORDER BY created_at ` + direction + `, sequence ` + direction

	return func(yield func(models.HistoryEvent, error) bool) {
		rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(clientID))
		if err != nil {
			yield(models.HistoryEvent{}, fmt.Errorf("list kyc history: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				ev               models.HistoryEvent
				cid, performedBy uuid.UUID
				action           string
				from, to, risk   string
			)
			if err := rows.Scan(&ev.ID, &cid, &ev.Sequence, &action, &from, &to,
				&ev.Reason, &ev.Notes, &risk, &performedBy, &ev.CreatedAt); err != nil {
				yield(models.HistoryEvent{}, fmt.Errorf("scan kyc history: %w", err))
				return
			}
			ev.ClientID = id.ClientID(cid)
			ev.PerformedBy = id.UserID(performedBy)
			ev.Action = workflow.Action(action)
			ev.FromStatus, ev.ToStatus, err = decodeTransition(from, to)
			if err != nil {
				yield(models.HistoryEvent{}, fmt.Errorf("scan kyc history %s: %w", ev.ID, err))
				return
			}
			ev.RiskRating = models.RiskRating(risk)
			ev.CreatedAt = ev.CreatedAt.UTC()
			if !yield(ev, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.HistoryEvent{}, fmt.Errorf("list kyc history: %w", err))
		}
	}
}

// decodeTransition parses a stored status pair, so a row written outside the
// status set fails the read instead of reaching callers.
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
