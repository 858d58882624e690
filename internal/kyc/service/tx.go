package service

import (
	"context"
	"iter"
	"sync"
	"time"

	"loankyc/internal/kyc/models"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/sentinel"
)

// TxStores are the stores a transition may touch. Inside RunInTx every write
// goes through them so that a failed transition leaves nothing behind.
type TxStores struct {
	Records RecordStore
	History HistoryStore
}

// KycStoreTx provides the transactional boundary for one client's transition.
// Implementations wrap a database transaction or, in memory, a per-client
// lock plus staged writes.
type KycStoreTx interface {
	RunInTx(ctx context.Context, clientID id.ClientID, fn func(ctx context.Context, stores TxStores) error) error
}

// numShards spreads clients across locks so that transitions on different
// clients do not serialize.
const numShards = 128

// defaultTxTimeout is the maximum duration for a KYC transaction.
const defaultTxTimeout = 5 * time.Second

// ShardedTx is the in-memory KycStoreTx. Writes made inside fn are staged and
// only reach the underlying stores when fn returns nil.
type ShardedTx struct {
	shards  [numShards]sync.Mutex
	records RecordStore
	history HistoryStore
	timeout time.Duration
}

func NewShardedTx(records RecordStore, history HistoryStore) *ShardedTx {
	return &ShardedTx{records: records, history: history, timeout: defaultTxTimeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, clientID id.ClientID, fn func(ctx context.Context, stores TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := &t.shards[hashClient(clientID)%numShards]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	stage := &stagedStores{base: t, records: make(map[id.ClientID]*stagedRecord)}
	if err := fn(ctx, TxStores{Records: stage, History: stagedHistory{stage}}); err != nil {
		return err
	}
	return stage.commit(ctx)
}

// hashClient is FNV-1a over the id bytes.
func hashClient(clientID id.ClientID) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for _, b := range clientID {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return h
}

type stagedRecord struct {
	rec         *models.ClientKycRecord
	baseVersion int64
}

type stagedStores struct {
	base    *ShardedTx
	records map[id.ClientID]*stagedRecord
	order   []id.ClientID
	events  []models.HistoryEvent
}

func (s *stagedStores) Create(ctx context.Context, rec *models.ClientKycRecord) error {
	return s.base.records.Create(ctx, rec)
}

func (s *stagedStores) FindByClientID(ctx context.Context, clientID id.ClientID) (*models.ClientKycRecord, error) {
	if st, ok := s.records[clientID]; ok {
		return st.rec.Clone(), nil
	}
	return s.base.records.FindByClientID(ctx, clientID)
}

func (s *stagedStores) Update(ctx context.Context, rec *models.ClientKycRecord, expectedVersion int64) error {
	st, ok := s.records[rec.ClientID]
	if !ok {
		current, err := s.base.records.FindByClientID(ctx, rec.ClientID)
		if err != nil {
			return err
		}
		st = &stagedRecord{rec: current, baseVersion: current.Version}
		s.records[rec.ClientID] = st
		s.order = append(s.order, rec.ClientID)
	}
	if st.rec.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	rec.Version = expectedVersion + 1
	st.rec = rec.Clone()
	return nil
}

func (s *stagedStores) ListByStatus(ctx context.Context, statuses []models.Status) ([]*models.ClientKycRecord, error) {
	return s.base.records.ListByStatus(ctx, statuses)
}

// commit flushes staged writes. Records go first: a version conflict there
// aborts before any history is written.
func (s *stagedStores) commit(ctx context.Context) error {
	for _, clientID := range s.order {
		st := s.records[clientID]
		final := st.rec.Clone()
		if err := s.base.records.Update(ctx, final, st.baseVersion); err != nil {
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
	stage *stagedStores
}

func (h stagedHistory) Append(_ context.Context, ev models.HistoryEvent) error {
	h.stage.events = append(h.stage.events, ev)
	return nil
}

func (h stagedHistory) ListFor(ctx context.Context, clientID id.ClientID, order models.Order) iter.Seq2[models.HistoryEvent, error] {
	return h.stage.base.history.ListFor(ctx, clientID, order)
}
