package record

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

	"loankyc/internal/kyc/models"
	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
	txcontext "loankyc/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists KYC records in the kyc_records table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `client_id, status, risk_rating, verified_at, verified_by,
	return_reason, returned_items, returned_at, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, rec *models.ClientKycRecord) error {
	items, err := json.Marshal(itemsOrEmpty(rec.ReturnedItems))
	if err != nil {
		return fmt.Errorf("marshal returned items: %w", err)
	}
	query := `INSERT INTO kyc_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(rec.ClientID),
		string(rec.Status),
		nullString(string(rec.RiskRating)),
		rec.VerifiedAt,
		userIDArg(rec.VerifiedBy),
		nullString(rec.ReturnReason),
		items,
		rec.ReturnedAt,
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert kyc record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByClientID(ctx context.Context, clientID id.ClientID) (*models.ClientKycRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM kyc_records WHERE client_id = $1`
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(clientID))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find kyc record: %w", err)
	}
	return rec, nil
}

// Update writes rec if the row is still at expectedVersion. Zero affected rows
// means either the row is gone or another writer got there first.
func (s *PostgresStore) Update(ctx context.Context, rec *models.ClientKycRecord, expectedVersion int64) error {
	items, err := json.Marshal(itemsOrEmpty(rec.ReturnedItems))
	if err != nil {
		return fmt.Errorf("marshal returned items: %w", err)
	}
	exec := txcontext.ExecutorFrom(ctx, s.db)
	query := `UPDATE kyc_records SET
			status = $2, risk_rating = $3, verified_at = $4, verified_by = $5,
			return_reason = $6, returned_items = $7, returned_at = $8,
			version = $9, updated_at = $10
		WHERE client_id = $1 AND version = $11`
	res, err := exec.ExecContext(ctx, query,
		uuid.UUID(rec.ClientID),
		string(rec.Status),
		nullString(string(rec.RiskRating)),
		rec.VerifiedAt,
		userIDArg(rec.VerifiedBy),
		nullString(rec.ReturnReason),
		items,
		rec.ReturnedAt,
		expectedVersion+1,
		rec.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update kyc record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update kyc record: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := exec.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM kyc_records WHERE client_id = $1)`,
			uuid.UUID(rec.ClientID)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check kyc record: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	rec.Version = expectedVersion + 1
	return nil
}

// ListByStatus returns records in any of statuses, oldest update first.
func (s *PostgresStore) ListByStatus(ctx context.Context, statuses []models.Status) ([]*models.ClientKycRecord, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	query := `SELECT ` + recordColumns + ` FROM kyc_records
		WHERE status = ANY($1::text[]) ORDER BY updated_at, client_id`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list kyc records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ClientKycRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan kyc record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list kyc records: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.ClientKycRecord, error) {
	var (
		clientID     uuid.UUID
		status       string
		riskRating   sql.NullString
		verifiedAt   sql.NullTime
		verifiedBy   uuid.NullUUID
		returnReason sql.NullString
		itemsJSON    []byte
		returnedAt   sql.NullTime
		rec          models.ClientKycRecord
	)
	if err := row.Scan(&clientID, &status, &riskRating, &verifiedAt, &verifiedBy,
		&returnReason, &itemsJSON, &returnedAt, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	rec.ClientID = id.ClientID(clientID)
	rec.Status = st
	rec.RiskRating = models.RiskRating(riskRating.String)
	rec.VerifiedAt = timePtr(verifiedAt)
	if verifiedBy.Valid {
		uid := id.UserID(verifiedBy.UUID)
		rec.VerifiedBy = &uid
	}
	rec.ReturnReason = returnReason.String
	rec.ReturnedAt = timePtr(returnedAt)
	if len(itemsJSON) > 0 {
		var items []workflow.ReturnedItem
		if err := json.Unmarshal(itemsJSON, &items); err != nil {
			return nil, fmt.Errorf("decode returned items: %w", err)
		}
		if len(items) > 0 {
			rec.ReturnedItems = items
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func itemsOrEmpty(items []workflow.ReturnedItem) []workflow.ReturnedItem {
	if items == nil {
		return []workflow.ReturnedItem{}
	}
	return items
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func userIDArg(u *id.UserID) uuid.NullUUID {
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
