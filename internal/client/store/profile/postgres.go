package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"loankyc/internal/client/models"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
	txcontext "loankyc/pkg/platform/tx"
)

// PostgresStore persists profiles in client_profiles. Contacts are stored as
// jsonb arrays.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, p *models.Profile) error {
	nok, err := json.Marshal(p.NextOfKin)
	if err != nil {
		return fmt.Errorf("marshal next of kin: %w", err)
	}
	refs, err := json.Marshal(p.Referees)
	if err != nil {
		return fmt.Errorf("marshal referees: %w", err)
	}
	query := `INSERT INTO client_profiles (client_id, full_name, identity_number, date_of_birth,
			primary_phone, address, employer, next_of_kin, referees, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (client_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			identity_number = EXCLUDED.identity_number,
			date_of_birth = EXCLUDED.date_of_birth,
			primary_phone = EXCLUDED.primary_phone,
			address = EXCLUDED.address,
			employer = EXCLUDED.employer,
			next_of_kin = EXCLUDED.next_of_kin,
			referees = EXCLUDED.referees,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at`
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(p.ClientID), p.FullName, p.IdentityNumber, p.DateOfBirth,
		p.PrimaryPhone, p.Address, p.Employer, nok, refs, p.CreatedAt, p.UpdatedAt,
	)
	if err := row.Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("upsert client profile: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return nil
}

func (s *PostgresStore) FindByClientID(ctx context.Context, clientID id.ClientID) (*models.Profile, error) {
	query := `SELECT full_name, identity_number, date_of_birth, primary_phone, address, employer,
			next_of_kin, referees, created_at, updated_at
		FROM client_profiles WHERE client_id = $1`
	var (
		p    = models.Profile{ClientID: clientID}
		dob  sql.NullTime
		nok  []byte
		refs []byte
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(clientID)).Scan(
		&p.FullName, &p.IdentityNumber, &dob, &p.PrimaryPhone, &p.Address, &p.Employer,
		&nok, &refs, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find client profile: %w", err)
	}
	if dob.Valid {
		t := dob.Time.UTC()
		p.DateOfBirth = &t
	}
	if err := json.Unmarshal(nok, &p.NextOfKin); err != nil {
		return nil, fmt.Errorf("decode next of kin: %w", err)
	}
	if err := json.Unmarshal(refs, &p.Referees); err != nil {
		return nil, fmt.Errorf("decode referees: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
