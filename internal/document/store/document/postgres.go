package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"loankyc/internal/document/models"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
	txcontext "loankyc/pkg/platform/tx"
)

// PostgresStore persists document metadata in the documents table. File
// content lives in FileStorage; only the storage key is kept here.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const documentColumns = `id, client_id, application_id, document_type, file_name, mime_type,
	size_bytes, storage_path, checksum, scan_status, review_status, review_notes,
	reviewed_by, reviewed_at, uploaded_by, is_deleted, deleted_at, deleted_by,
	version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, doc *models.ClientDocument) error {
	query := `INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(doc.ID), uuid.UUID(doc.ClientID), applicationArg(doc.ApplicationID), string(doc.Type),
		doc.FileName, doc.MimeType, doc.SizeBytes, doc.StoragePath, doc.Checksum,
		string(doc.ScanStatus), nullString(string(doc.ReviewStatus)), nullString(doc.ReviewNotes),
		userArg(doc.ReviewedBy), doc.ReviewedAt, uuid.UUID(doc.UploadedBy), doc.IsDeleted,
		doc.DeletedAt, userArg(doc.DeletedBy), doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.ClientDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND NOT is_deleted`
	doc, err := scanDocument(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(docID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

// Update writes back an active document if it is still at expectedVersion.
// A stale version yields sentinel.ErrConflict.
func (s *PostgresStore) Update(ctx context.Context, doc *models.ClientDocument, expectedVersion int64) error {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	query := `UPDATE documents SET
			scan_status = $2, review_status = $3, review_notes = $4,
			reviewed_by = $5, reviewed_at = $6, is_deleted = $7,
			deleted_at = $8, deleted_by = $9, updated_at = $10, version = $11
		WHERE id = $1 AND NOT is_deleted AND version = $12`
	res, err := exec.ExecContext(ctx, query,
		uuid.UUID(doc.ID), string(doc.ScanStatus), nullString(string(doc.ReviewStatus)),
		nullString(doc.ReviewNotes), userArg(doc.ReviewedBy), doc.ReviewedAt, doc.IsDeleted,
		doc.DeletedAt, userArg(doc.DeletedBy), doc.UpdatedAt, expectedVersion+1, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows affected: %w", err)
	}
	if affected == 0 {
		var active bool
		err := exec.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1 AND NOT is_deleted)`,
			uuid.UUID(doc.ID)).Scan(&active)
		if err != nil {
			return fmt.Errorf("check document: %w", err)
		}
		if active {
			return sentinel.ErrConflict
		}
		return sentinel.ErrNotFound
	}
	doc.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) ListByClient(ctx context.Context, clientID id.ClientID, filter models.Filter) ([]*models.ClientDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE client_id = $1 AND NOT is_deleted
			AND ($2::uuid IS NULL OR application_id = $2)
			AND ($3 = '' OR document_type = $3)
		ORDER BY created_at ASC`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query,
		uuid.UUID(clientID), applicationArg(filter.ApplicationID), string(filter.Type))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ClientDocument, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountActive(ctx context.Context, clientID id.ClientID) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM documents WHERE client_id = $1 AND NOT is_deleted`
	if err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(clientID)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountUploadedSince(ctx context.Context, clientID id.ClientID, since time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM documents WHERE client_id = $1 AND NOT is_deleted AND created_at > $2`
	if err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(clientID), since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recent documents: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.ClientDocument, error) {
	var (
		docID, clientID, uploadedBy uuid.UUID
		applicationID               uuid.NullUUID
		reviewedBy, deletedBy       uuid.NullUUID
		docType, scanStatus         string
		reviewStatus, reviewNotes   sql.NullString
		reviewedAt, deletedAt       sql.NullTime
		doc                         models.ClientDocument
	)
	err := row.Scan(
		&docID, &clientID, &applicationID, &docType, &doc.FileName, &doc.MimeType,
		&doc.SizeBytes, &doc.StoragePath, &doc.Checksum, &scanStatus, &reviewStatus, &reviewNotes,
		&reviewedBy, &reviewedAt, &uploadedBy, &doc.IsDeleted, &deletedAt, &deletedBy,
		&doc.Version, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.ID = id.DocumentID(docID)
	doc.ClientID = id.ClientID(clientID)
	doc.UploadedBy = id.UserID(uploadedBy)
	doc.Type = id.DocumentType(docType)
	doc.ScanStatus = models.ScanStatus(scanStatus)
	doc.ReviewStatus = models.ReviewStatus(reviewStatus.String)
	doc.ReviewNotes = reviewNotes.String
	if applicationID.Valid {
		appID := id.ApplicationID(applicationID.UUID)
		doc.ApplicationID = &appID
	}
	if reviewedBy.Valid {
		u := id.UserID(reviewedBy.UUID)
		doc.ReviewedBy = &u
	}
	if deletedBy.Valid {
		u := id.UserID(deletedBy.UUID)
		doc.DeletedBy = &u
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		doc.ReviewedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		doc.DeletedAt = &t
	}
	return &doc, nil
}

func applicationArg(appID *id.ApplicationID) uuid.NullUUID {
	if appID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*appID), Valid: true}
}

func userArg(u *id.UserID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*u), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
