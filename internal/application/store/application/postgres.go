package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"loankyc/internal/application/models"
	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
	txcontext "loankyc/pkg/platform/tx"
)

// PostgresStore persists applications in the applications table. Amount is
// numeric(14,2); shopspring/decimal scans and values it directly.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const applicationColumns = `id, client_id, amount, term_months, purpose, status,
	return_reason, returned_items, returned_at, submitted_at, decided_at, decided_by,
	version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, app *models.LoanApplication) error {
	items, err := encodeItems(app.ReturnedItems)
	if err != nil {
		return err
	}
	query := `INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(app.ID), uuid.UUID(app.ClientID), app.Amount, app.TermMonths, app.Purpose,
		string(app.Status), app.ReturnReason, items, app.ReturnedAt, app.SubmittedAt,
		app.DecidedAt, decidedByArg(app.DecidedBy), app.Version, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.LoanApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	app, err := scanApplication(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(appID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) Update(ctx context.Context, app *models.LoanApplication, expectedVersion int64) error {
	items, err := encodeItems(app.ReturnedItems)
	if err != nil {
		return err
	}
	exec := txcontext.ExecutorFrom(ctx, s.db)
	query := `UPDATE applications SET
			amount = $2, term_months = $3, purpose = $4, status = $5,
			return_reason = $6, returned_items = $7, returned_at = $8,
			submitted_at = $9, decided_at = $10, decided_by = $11,
			version = $12, updated_at = $13
		WHERE id = $1 AND version = $14`
	res, err := exec.ExecContext(ctx, query,
		uuid.UUID(app.ID), app.Amount, app.TermMonths, app.Purpose, string(app.Status),
		app.ReturnReason, items, app.ReturnedAt, app.SubmittedAt, app.DecidedAt,
		decidedByArg(app.DecidedBy), expectedVersion+1, app.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := exec.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, uuid.UUID(app.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("check application: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	app.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) ListByClient(ctx context.Context, clientID id.ClientID) ([]*models.LoanApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
		WHERE client_id = $1 ORDER BY created_at DESC, id`
	return s.list(ctx, query, uuid.UUID(clientID))
}

func (s *PostgresStore) ListByStatus(ctx context.Context, statuses []models.Status) ([]*models.LoanApplication, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	query := `SELECT ` + applicationColumns + ` FROM applications
		WHERE status = ANY($1::text[]) ORDER BY updated_at, id`
	return s.list(ctx, query, pq.Array(names))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.LoanApplication, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()
	out := make([]*models.LoanApplication, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (*models.LoanApplication, error) {
	var (
		app                              models.LoanApplication
		appID, clientID                  uuid.UUID
		status                           string
		itemsJSON                        []byte
		returnedAt, submittedAt, decided sql.NullTime
		decidedBy                        uuid.NullUUID
	)
	if err := row.Scan(&appID, &clientID, &app.Amount, &app.TermMonths, &app.Purpose, &status,
		&app.ReturnReason, &itemsJSON, &returnedAt, &submittedAt, &decided, &decidedBy,
		&app.Version, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	app.ID = id.ApplicationID(appID)
	app.ClientID = id.ClientID(clientID)
	app.Status = st
	app.ReturnedAt = timePtr(returnedAt)
	app.SubmittedAt = timePtr(submittedAt)
	app.DecidedAt = timePtr(decided)
	if decidedBy.Valid {
		uid := id.UserID(decidedBy.UUID)
		app.DecidedBy = &uid
	}
	if len(itemsJSON) > 0 {
		var items []workflow.ReturnedItem
		if err := json.Unmarshal(itemsJSON, &items); err != nil {
			return nil, fmt.Errorf("decode returned items: %w", err)
		}
		if len(items) > 0 {
			app.ReturnedItems = items
		}
	}
	app.CreatedAt = app.CreatedAt.UTC()
	app.UpdatedAt = app.UpdatedAt.UTC()
	return &app, nil
}

func encodeItems(items []workflow.ReturnedItem) ([]byte, error) {
	if items == nil {
		items = []workflow.ReturnedItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal returned items: %w", err)
	}
	return b, nil
}

func decidedByArg(u *id.UserID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*u), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
