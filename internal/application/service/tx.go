package service

import (
	"context"
	"sync"
	"time"

	"loankyc/internal/application/models"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/sentinel"
)

// TxStores are the stores one application transition writes through.
type TxStores struct {
	Applications ApplicationStore
	History      HistoryStore
}

// ApplicationStoreTx provides the transactional boundary for one
// application's transition.
type ApplicationStoreTx interface {
	RunInTx(ctx context.Context, appID id.ApplicationID, fn func(ctx context.Context, stores TxStores) error) error
}

const (
	numShards        = 64
	defaultTxTimeout = 5 * time.Second
)

// ShardedTx is the in-memory ApplicationStoreTx: a per-application lock with
// writes staged until fn succeeds.
type ShardedTx struct {
	shards  [numShards]sync.Mutex
	apps    ApplicationStore
	history HistoryStore
	timeout time.Duration
}

func NewShardedTx(apps ApplicationStore, history HistoryStore) *ShardedTx {
	return &ShardedTx{apps: apps, history: history, timeout: defaultTxTimeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, appID id.ApplicationID, fn func(ctx context.Context, stores TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := &t.shards[shardFor(appID)]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	stage := &stagedApplications{base: t}
	if err := fn(ctx, TxStores{Applications: stage, History: stagedHistory{stage}}); err != nil {
		return err
	}
	return stage.commit(ctx)
}

// shardFor folds the id bytes with FNV-1a.
func shardFor(appID id.ApplicationID) uint32 {
	h := uint32(2166136261)
	for _, b := range appID {
		h ^= uint32(b)
		h *= 16777619
	}
	return h % numShards
}

type stagedApplications struct {
	base        *ShardedTx
	app         *models.LoanApplication
	baseVersion int64
	events      []models.HistoryEvent
}

func (s *stagedApplications) Create(ctx context.Context, app *models.LoanApplication) error {
	return s.base.apps.Create(ctx, app)
}

func (s *stagedApplications) FindByID(ctx context.Context, appID id.ApplicationID) (*models.LoanApplication, error) {
	if s.app != nil && s.app.ID == appID {
		return s.app.Clone(), nil
	}
	return s.base.apps.FindByID(ctx, appID)
}

func (s *stagedApplications) Update(ctx context.Context, app *models.LoanApplication, expectedVersion int64) error {
	if s.app == nil {
		current, err := s.base.apps.FindByID(ctx, app.ID)
		if err != nil {
			return err
		}
		s.app, s.baseVersion = current, current.Version
	}
	if s.app.ID != app.ID {
		return dErrors.New(dErrors.CodeInternal, "transaction is bound to another application")
	}
	if s.app.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	app.Version = expectedVersion + 1
	s.app = app.Clone()
	return nil
}

func (s *stagedApplications) ListByClient(ctx context.Context, clientID id.ClientID) ([]*models.LoanApplication, error) {
	return s.base.apps.ListByClient(ctx, clientID)
}

func (s *stagedApplications) ListByStatus(ctx context.Context, statuses []models.Status) ([]*models.LoanApplication, error) {
	return s.base.apps.ListByStatus(ctx, statuses)
}

func (s *stagedApplications) commit(ctx context.Context) error {
	if s.app != nil {
		if err := s.base.apps.Update(ctx, s.app.Clone(), s.baseVersion); err != nil {
			return err
		}
	}
	for _, ev := range s.events {
		if err := s.base.history.Append(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

type stagedHistory struct {
	stage *stagedApplications
}

func (h stagedHistory) Append(_ context.Context, ev models.HistoryEvent) error {
	h.stage.events = append(h.stage.events, ev)
	return nil
}

func (h stagedHistory) ListFor(ctx context.Context, appID id.ApplicationID) ([]models.HistoryEvent, error) {
	return h.stage.base.history.ListFor(ctx, appID)
}
