package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	appservice "loankyc/internal/application/service"
	appstore "loankyc/internal/application/store/application"
	apphistory "loankyc/internal/application/store/history"
	kycservice "loankyc/internal/kyc/service"
	kychistory "loankyc/internal/kyc/store/history"
	kycrecord "loankyc/internal/kyc/store/record"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	txcontext "loankyc/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// postgresTx runs fn in one database transaction. The advisory lock keyed on
// lockKey serializes transitions on the same aggregate; the version check in
// each store's Update still catches writers that bypass it.
type postgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func (t *postgresTx) run(ctx context.Context, lockKey string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return fmt.Errorf("acquire transition lock: %w", err)
	}

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// kycPostgresTx satisfies kycservice.KycStoreTx.
type kycPostgresTx struct {
	postgresTx
	records *kycrecord.PostgresStore
	history *kychistory.PostgresStore
}

func newKycPostgresTx(db *sql.DB) *kycPostgresTx {
	return &kycPostgresTx{
		postgresTx: postgresTx{db: db},
		records:    kycrecord.NewPostgres(db),
		history:    kychistory.NewPostgres(db),
	}
}

func (t *kycPostgresTx) RunInTx(ctx context.Context, clientID id.ClientID, fn func(ctx context.Context, stores kycservice.TxStores) error) error {
	return t.run(ctx, "kyc:"+clientID.String(), func(ctx context.Context) error {
		return fn(ctx, kycservice.TxStores{Records: t.records, History: t.history})
	})
}

// applicationPostgresTx satisfies appservice.ApplicationStoreTx.
type applicationPostgresTx struct {
	postgresTx
	apps    *appstore.PostgresStore
	history *apphistory.PostgresStore
}

func newApplicationPostgresTx(db *sql.DB) *applicationPostgresTx {
	return &applicationPostgresTx{
		postgresTx: postgresTx{db: db},
		apps:       appstore.NewPostgres(db),
		history:    apphistory.NewPostgres(db),
	}
}

func (t *applicationPostgresTx) RunInTx(ctx context.Context, appID id.ApplicationID, fn func(ctx context.Context, stores appservice.TxStores) error) error {
	return t.run(ctx, "application:"+appID.String(), func(ctx context.Context) error {
		return fn(ctx, appservice.TxStores{Applications: t.apps, History: t.history})
	})
}
