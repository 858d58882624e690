package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"loankyc/internal/authz"
	clientmodels "loankyc/internal/client/models"
	"loankyc/internal/kyc/metrics"
	"loankyc/internal/kyc/models"
	"loankyc/internal/kyc/store/history"
	"loankyc/internal/kyc/store/record"
	"loankyc/internal/notification"
	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/sentinel"
	"loankyc/pkg/requestcontext"
)

var reviewer = authz.For(authz.RoleLoanOfficer)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
	err    error
}

func (n *recordingNotifier) Dispatch(_ context.Context, ev notification.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

type memoryCache struct {
	mu       sync.Mutex
	values   map[id.ClientID]models.Status
	versions map[id.ClientID]int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[id.ClientID]models.Status), versions: make(map[id.ClientID]int64)}
}

func (c *memoryCache) evict(clientID id.ClientID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, clientID)
	delete(c.versions, clientID)
}

func (c *memoryCache) Get(_ context.Context, clientID id.ClientID) (models.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.values[clientID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return st, nil
}

func (c *memoryCache) Set(_ context.Context, clientID id.ClientID, status models.Status, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.versions[clientID]; ok && current >= version {
		return nil
	}
	c.values[clientID] = status
	c.versions[clientID] = version
	return nil
}

type stubProfiles struct {
	profile *clientmodels.Profile
}

func (p stubProfiles) FindByClientID(context.Context, id.ClientID) (*clientmodels.Profile, error) {
	if p.profile == nil {
		return nil, sentinel.ErrNotFound
	}
	return p.profile, nil
}

type stubDocuments struct {
	active        int
	uploadedSince int
	since         time.Time
}

func (d *stubDocuments) CountActive(context.Context, id.ClientID) (int, error) {
	return d.active, nil
}

func (d *stubDocuments) CountUploadedSince(_ context.Context, _ id.ClientID, since time.Time) (int, error) {
	d.since = since
	return d.uploadedSince, nil
}

type ServiceSuite struct {
	suite.Suite
	records  *record.InMemory
	history  *history.InMemory
	notifier *recordingNotifier
	sender   *notification.Sender
	cache    *memoryCache
	docs     *stubDocuments
	metrics  *metrics.Metrics
	service  *Service
	ctx      context.Context
	actor    id.UserID
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.records = record.NewInMemory()
	s.history = history.NewInMemory()
	s.notifier = &recordingNotifier{}
	s.sender = notification.NewSender(s.notifier)
	s.cache = newMemoryCache()
	s.docs = &stubDocuments{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = s.newService()
	s.actor = id.UserID(uuid.New())
	s.now = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(requestcontext.WithUserID(context.Background(), s.actor), s.now)
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithNotifier(s.sender),
		WithStatusCache(s.cache),
		WithMetrics(s.metrics),
		WithReadinessSources(stubProfiles{}, s.docs),
	}
	return New(s.records, s.history, NewShardedTx(s.records, s.history), append(base, opts...)...)
}

func (s *ServiceSuite) register() id.ClientID {
	clientID := id.ClientID(uuid.New())
	_, err := s.service.Register(s.ctx, clientID)
	s.Require().NoError(err)
	return clientID
}

func (s *ServiceSuite) pending() id.ClientID {
	clientID := s.register()
	_, err := s.service.Submit(s.ctx, clientID, "")
	s.Require().NoError(err)
	return clientID
}

func (s *ServiceSuite) verified() id.ClientID {
	clientID := s.pending()
	_, err := s.service.Approve(s.ctx, reviewer, clientID, "")
	s.Require().NoError(err)
	return clientID
}

func (s *ServiceSuite) documentItem() []workflow.ReturnedItem {
	return []workflow.ReturnedItem{{Type: workflow.ItemDocument, DocumentType: id.DocumentNationalID, Message: "blurry"}}
}

func (s *ServiceSuite) TestScenarioA_Submit() {
	clientID := s.register()

	rec, err := s.service.Submit(s.ctx, clientID, "ready")
	s.Require().NoError(err)
	s.Equal(models.StatusPendingReview, rec.Status)
	s.Require().Len(rec.History, 1)
	s.Equal(models.StatusPendingReview, rec.History[0].ToStatus)
	s.Equal(s.actor, rec.History[0].PerformedBy)
	s.Equal(s.now, rec.History[0].CreatedAt)
}

func (s *ServiceSuite) TestScenarioB_Reject() {
	clientID := s.pending()

	rec, err := s.service.Reject(s.ctx, reviewer, clientID, "ID unclear", "")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rec.Status)
	s.Equal("ID unclear", rec.History[len(rec.History)-1].Reason)
}

func (s *ServiceSuite) TestScenarioC_ReturnAndResubmit() {
	clientID := s.pending()

	rec, err := s.service.ReturnToClient(s.ctx, reviewer, clientID, "fix docs", s.documentItem(), "")
	s.Require().NoError(err)
	s.Equal(models.StatusReturned, rec.Status)
	s.Len(rec.Cues().Upload, 1)

	rec, err = s.service.Resubmit(s.ctx, clientID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingReview, rec.Status)
	s.Equal(s.documentItem(), rec.ReturnedItems)

	full, err := s.service.Get(s.ctx, clientID)
	s.Require().NoError(err)
	// submit, return, resubmit
	s.Len(full.History, 3)
	s.Equal(workflow.ActionReturn, full.History[1].Action)
	s.Equal(workflow.ActionResubmit, full.History[2].Action)
}

func (s *ServiceSuite) TestScenarioD_RiskRating() {
	clientID := s.verified()

	rec, err := s.service.UpdateRiskRating(s.ctx, reviewer, clientID, models.RiskHigh, "")
	s.Require().NoError(err)
	s.Equal(models.RiskHigh, rec.RiskRating)
	s.Equal(models.StatusVerified, rec.Status)

	_, err = s.service.UpdateRiskRating(s.ctx, reviewer, clientID, models.RiskHigh, "")
	s.Require().NoError(err)
	full, err := s.service.Get(s.ctx, clientID)
	s.Require().NoError(err)
	// submit, approve, two identical rating updates
	s.Len(full.History, 4)
}

func (s *ServiceSuite) TestScenarioE_ApproveFromUnverified() {
	clientID := s.register()

	_, err := s.service.Approve(s.ctx, reviewer, clientID, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	var transitionErr *workflow.InvalidTransitionError
	s.Require().ErrorAs(err, &transitionErr)
	s.Equal(string(models.StatusUnverified), transitionErr.Current)
	s.Equal(workflow.ActionApprove, transitionErr.Attempted)

	full, err := s.service.Get(s.ctx, clientID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnverified, full.Status)
	s.Empty(full.History)
}

func (s *ServiceSuite) TestValidationPrecedesLookup() {
	s.Run("empty reason on unknown client", func() {
		_, err := s.service.Reject(s.ctx, reviewer, id.ClientID(uuid.New()), " ", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("empty items", func() {
		clientID := s.pending()
		_, err := s.service.ReturnToClient(s.ctx, reviewer, clientID, "fix docs", nil, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		st, err := s.service.Status(s.ctx, clientID)
		s.Require().NoError(err)
		s.Equal(models.StatusPendingReview, st)
	})

	s.Run("unknown rating", func() {
		_, err := s.service.UpdateRiskRating(s.ctx, reviewer, s.verified(), "SEVERE", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestCapabilities() {
	client := authz.For(authz.RoleClient)
	clientID := s.pending()

	_, err := s.service.Approve(s.ctx, client, clientID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.service.Reject(s.ctx, client, clientID, "no", "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.service.ReturnToClient(s.ctx, client, clientID, "fix", s.documentItem(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.service.ReviewQueue(s.ctx, client)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	st, err := s.service.Status(s.ctx, clientID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingReview, st)
}

func (s *ServiceSuite) TestUnknownClient() {
	_, err := s.service.Submit(s.ctx, id.ClientID(uuid.New()), "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.service.Get(s.ctx, id.ClientID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestRegisterTwiceConflicts() {
	clientID := s.register()
	_, err := s.service.Register(s.ctx, clientID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestRequiresActor() {
	clientID := s.register()
	_, err := s.service.Submit(context.Background(), clientID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestSideEffectsAfterCommit() {
	clientID := s.pending()
	s.sender.Wait()

	s.Require().Len(s.notifier.events, 1)
	ev := s.notifier.events[0]
	s.Equal(notification.SubjectKyc, ev.Subject)
	s.Equal(clientID.String(), ev.ClientID)
	s.Equal(string(models.StatusPendingReview), ev.ToStatus)
	s.Equal(models.StatusPendingReview, s.cache.values[clientID])

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("submit", "ok")))
}

func (s *ServiceSuite) TestNotifierFailureDoesNotFailTransition() {
	s.notifier.err = errors.New("broker down")
	clientID := s.register()

	rec, err := s.service.Submit(s.ctx, clientID, "")
	s.Require().NoError(err)
	s.Equal(models.StatusPendingReview, rec.Status)
	s.sender.Wait()
	s.Equal(1.0, testutil.ToFloat64(s.metrics.NotifyFailures))
}

type stalledNotifier struct {
	release chan struct{}
	done    chan error
}

func (n *stalledNotifier) Dispatch(ctx context.Context, _ notification.Event) error {
	select {
	case <-n.release:
		n.done <- nil
		return nil
	case <-ctx.Done():
		n.done <- ctx.Err()
		return ctx.Err()
	}
}

func (s *ServiceSuite) TestSlowNotifierDoesNotDelayTransition() {
	clientID := s.pending()
	stalled := &stalledNotifier{release: make(chan struct{}), done: make(chan error, 1)}
	sender := notification.NewSender(stalled, notification.WithTimeout(time.Minute))
	svc := s.newService(WithNotifier(sender))

	ctx, cancel := context.WithCancel(s.ctx)
	start := time.Now()
	rec, err := svc.Approve(ctx, reviewer, clientID, "")
	elapsed := time.Since(start)
	cancel()

	s.Require().NoError(err)
	s.Equal(models.StatusVerified, rec.Status)
	s.Less(elapsed, time.Second)

	s.Run("delivery outlives the request context", func() {
		close(stalled.release)
		sender.Wait()
		s.NoError(<-stalled.done)
		s.Equal(0.0, testutil.ToFloat64(s.metrics.NotifyFailures))
	})
}

func (s *ServiceSuite) TestStatusReadsThroughCache() {
	clientID := s.register()
	s.cache.evict(clientID)

	st, err := s.service.Status(s.ctx, clientID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnverified, st)
	s.Equal(models.StatusUnverified, s.cache.values[clientID])

	_, err = s.service.Status(s.ctx, clientID)
	s.Require().NoError(err)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.StatusCacheLookups.WithLabelValues("miss")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.StatusCacheLookups.WithLabelValues("hit")))
}

// slowReadRecords lets a transition commit after a read has loaded the
// record but before the reader acts on it.
type slowReadRecords struct {
	RecordStore
	afterRead func()
}

func (r *slowReadRecords) FindByClientID(ctx context.Context, clientID id.ClientID) (*models.ClientKycRecord, error) {
	rec, err := r.RecordStore.FindByClientID(ctx, clientID)
	if fn := r.afterRead; fn != nil {
		r.afterRead = nil
		fn()
	}
	return rec, err
}

func (s *ServiceSuite) TestStaleStatusReadDoesNotOverwriteCache() {
	clientID := s.pending()
	s.cache.evict(clientID)

	slow := &slowReadRecords{RecordStore: s.records}
	svc := New(slow, s.history, NewShardedTx(s.records, s.history), WithStatusCache(s.cache))
	slow.afterRead = func() {
		_, err := svc.Approve(s.ctx, reviewer, clientID, "")
		s.Require().NoError(err)
	}

	st, err := svc.Status(s.ctx, clientID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingReview, st, "the read started before the approval")

	st, err = svc.Status(s.ctx, clientID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, st)
	s.Equal(models.StatusVerified, s.cache.values[clientID])
}

func (s *ServiceSuite) TestEnforcedReadiness() {
	svc := s.newService(WithSubmitReadiness(ReadinessEnforced))
	clientID := s.register()

	_, err := svc.Submit(s.ctx, clientID, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "referees")

	dob := time.Date(1988, 7, 9, 0, 0, 0, 0, time.UTC)
	profile := &clientmodels.Profile{
		ClientID:       clientID,
		FullName:       "Amina Otieno",
		IdentityNumber: "29384756",
		DateOfBirth:    &dob,
		PrimaryPhone:   "+254711000111",
		Address:        "Kisumu",
		NextOfKin:      []clientmodels.Contact{{Name: "Juma", Phone: "+254700000001"}},
		Referees: []clientmodels.Contact{
			{Name: "Wanjiru", Phone: "+254700000002"},
			{Name: "Kamau", Phone: "+254700000003"},
		},
	}
	s.docs.active = 1
	svc = s.newService(WithSubmitReadiness(ReadinessEnforced), WithReadinessSources(stubProfiles{profile}, s.docs))

	readiness, err := svc.IsReadyForSubmission(s.ctx, clientID)
	s.Require().NoError(err)
	s.True(readiness.Ready)

	rec, err := svc.Submit(s.ctx, clientID, "")
	s.Require().NoError(err)
	s.Equal(models.StatusPendingReview, rec.Status)
}

func (s *ServiceSuite) TestEnforcedReadinessChecksRecordFirst() {
	svc := s.newService(WithSubmitReadiness(ReadinessEnforced))

	_, err := svc.Submit(s.ctx, id.ClientID(uuid.New()), "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "got %v", err)

	clientID := s.pending()
	_, err = svc.Submit(s.ctx, clientID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition), "got %v", err)
	var invalid *workflow.InvalidTransitionError
	s.Require().ErrorAs(err, &invalid)
	s.Equal(workflow.ActionSubmit, invalid.Attempted)
}

func (s *ServiceSuite) TestAdvisoryReadinessAllowsSubmit() {
	clientID := s.register()

	readiness, err := s.service.IsReadyForSubmission(s.ctx, clientID)
	s.Require().NoError(err)
	s.False(readiness.Ready)
	s.Len(readiness.Missing, 7)

	_, err = s.service.Submit(s.ctx, clientID, "")
	s.NoError(err)
}

func (s *ServiceSuite) TestResubmitUploadGate() {
	svc := s.newService(WithResubmitRequiresUpload(true))
	clientID := s.pending()
	_, err := svc.ReturnToClient(s.ctx, reviewer, clientID, "fix docs", s.documentItem(), "")
	s.Require().NoError(err)

	_, err = svc.Resubmit(s.ctx, clientID)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(s.now, s.docs.since)

	s.docs.uploadedSince = 1
	rec, err := svc.Resubmit(s.ctx, clientID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingReview, rec.Status)
}

func (s *ServiceSuite) TestResubmitGateChecksStatusFirst() {
	svc := s.newService(WithResubmitRequiresUpload(true))
	clientID := s.register()

	_, err := svc.Resubmit(s.ctx, clientID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestReviewQueue() {
	first := s.pending()
	s.register()
	s.verified()

	queue, err := s.service.ReviewQueue(s.ctx, reviewer)
	s.Require().NoError(err)
	s.Require().Len(queue, 1)
	s.Equal(first, queue[0].ClientID)
}

// TestConcurrentDecisions races approve against reject. Exactly one wins;
// the others see the new status and fail with InvalidTransition.
func (s *ServiceSuite) TestConcurrentDecisions() {
	clientID := s.pending()
	const goroutines = 20

	var wg sync.WaitGroup
	var wins, invalid atomic.Int32
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = s.service.Approve(s.ctx, reviewer, clientID, "")
			} else {
				_, err = s.service.Reject(s.ctx, reviewer, clientID, "duplicate", "")
			}
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeInvalidTransition):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), invalid.Load())

	full, err := s.service.Get(s.ctx, clientID)
	s.Require().NoError(err)
	s.Len(full.History, 2)
}

func (s *ServiceSuite) TestStagedWritesDiscardedOnError() {
	clientID := s.register()
	tx := NewShardedTx(s.records, s.history)
	boom := errors.New("boom")

	err := tx.RunInTx(s.ctx, clientID, func(ctx context.Context, st TxStores) error {
		rec, err := st.Records.FindByClientID(ctx, clientID)
		s.Require().NoError(err)
		ev, err := rec.Submit(s.actor, "", s.now)
		s.Require().NoError(err)
		s.Require().NoError(st.Records.Update(ctx, rec, 1))
		s.Require().NoError(st.History.Append(ctx, ev))

		staged, err := st.Records.FindByClientID(ctx, clientID)
		s.Require().NoError(err)
		s.Equal(models.StatusPendingReview, staged.Status)
		return boom
	})
	s.ErrorIs(err, boom)

	rec, err := s.records.FindByClientID(s.ctx, clientID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnverified, rec.Status)
	s.Equal(int64(1), rec.Version)
	hist, err := s.service.History(s.ctx, clientID, models.Ascending)
	s.Require().NoError(err)
	s.Empty(hist)
}

func (s *ServiceSuite) TestCancelledContext() {
	clientID := s.register()
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.service.Submit(ctx, clientID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}
