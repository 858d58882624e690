package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"loankyc/internal/authz"
	"loankyc/internal/kyc/handler/mocks"
	"loankyc/internal/kyc/models"
	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/kyc-mocks.go -package=mocks Service
type KycHandlerSuite struct {
	suite.Suite
	service  *mocks.MockService
	router   chi.Router
	clientID id.ClientID
	role     string
	userID   id.UserID
}

func TestKycHandlerSuite(t *testing.T) {
	suite.Run(t, new(KycHandlerSuite))
}

func (s *KycHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.role = string(authz.RoleLoanOfficer)
	s.router = chi.NewRouter()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithRole(r.Context(), s.role)
			ctx = requestcontext.WithUserID(ctx, s.userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	New(s.service, logger).Register(s.router)
	s.clientID = id.ClientID(uuid.New())
	s.userID = id.UserID(uuid.New())
}

func (s *KycHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *KycHandlerSuite) path(suffix string) string {
	return "/kyc/" + s.clientID.String() + suffix
}

func (s *KycHandlerSuite) record(status models.Status) *models.ClientKycRecord {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return &models.ClientKycRecord{
		ClientID:  s.clientID,
		Status:    status,
		History:   []models.HistoryEvent{},
		Version:   2,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *KycHandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *KycHandlerSuite) TestSubmit() {
	s.service.EXPECT().Submit(gomock.Any(), s.clientID, "all set").
		Return(s.record(models.StatusPendingReview), nil)

	rec := s.do(http.MethodPost, s.path("/submit"), map[string]string{"notes": " all set "})

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("PENDING_REVIEW", s.decode(rec)["status"])
}

func (s *KycHandlerSuite) TestSubmitWithoutBody() {
	s.service.EXPECT().Submit(gomock.Any(), s.clientID, "").
		Return(s.record(models.StatusPendingReview), nil)

	rec := s.do(http.MethodPost, s.path("/submit"), nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *KycHandlerSuite) TestApprovePassesCapabilities() {
	s.service.EXPECT().Approve(gomock.Any(), authz.Capabilities{MayReview: true}, s.clientID, "").
		Return(s.record(models.StatusVerified), nil)

	rec := s.do(http.MethodPost, s.path("/approve"), map[string]string{})
	s.Equal(http.StatusOK, rec.Code)
}

func (s *KycHandlerSuite) TestApproveAsClientIsForbidden() {
	s.role = string(authz.RoleClient)
	s.userID = id.UserID(s.clientID)
	s.service.EXPECT().Approve(gomock.Any(), authz.Capabilities{}, s.clientID, "").
		Return(nil, dErrors.New(dErrors.CodeForbidden, "reviewer role required"))

	rec := s.do(http.MethodPost, s.path("/approve"), nil)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("forbidden", s.decode(rec)["error"])
}

func (s *KycHandlerSuite) TestClientReadsOwnRecord() {
	s.role = string(authz.RoleClient)
	s.userID = id.UserID(s.clientID)
	s.service.EXPECT().Get(gomock.Any(), s.clientID).Return(s.record(models.StatusReturned), nil)

	rec := s.do(http.MethodGet, s.path(""), nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *KycHandlerSuite) TestClientCannotReachAnotherRecord() {
	s.role = string(authz.RoleClient)
	routes := []struct {
		method string
		suffix string
	}{
		{http.MethodGet, ""},
		{http.MethodGet, "/status"},
		{http.MethodGet, "/history"},
		{http.MethodGet, "/readiness"},
		{http.MethodPost, "/submit"},
		{http.MethodPost, "/resubmit"},
	}
	for _, rt := range routes {
		s.Run(rt.method+" "+rt.suffix, func() {
			rec := s.do(rt.method, s.path(rt.suffix), nil)
			s.Equal(http.StatusForbidden, rec.Code)
			s.Equal("forbidden", s.decode(rec)["error"])
		})
	}
}

func (s *KycHandlerSuite) TestUnknownRoleIsForbidden() {
	s.role = "AUDITOR"
	rec := s.do(http.MethodGet, s.path("/status"), nil)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *KycHandlerSuite) TestRejectRequiresReason() {
	rec := s.do(http.MethodPost, s.path("/reject"), map[string]string{"reason": "   "})

	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal("validation_error", s.decode(rec)["error"])
}

func (s *KycHandlerSuite) TestReturnToClient() {
	items := []workflow.ReturnedItem{{Type: workflow.ItemDocument, DocumentType: id.DocumentNationalID, Message: "blurry"}}
	returned := s.record(models.StatusReturned)
	returned.ReturnReason = "fix docs"
	returned.ReturnedItems = items
	s.service.EXPECT().ReturnToClient(gomock.Any(), gomock.Any(), s.clientID, "fix docs", items, "").
		Return(returned, nil)

	rec := s.do(http.MethodPost, s.path("/return"), map[string]any{
		"reason":        "fix docs",
		"returnedItems": items,
	})

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal("RETURNED", body["status"])
	cues := body["cues"].(map[string]any)
	s.Len(cues["upload"], 1)
}

func (s *KycHandlerSuite) TestReturnWithoutItems() {
	rec := s.do(http.MethodPost, s.path("/return"), map[string]any{"reason": "fix docs", "returnedItems": []any{}})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *KycHandlerSuite) TestInvalidTransitionMapsToConflict() {
	s.service.EXPECT().Resubmit(gomock.Any(), s.clientID).
		Return(nil, workflow.NewInvalidTransition(models.StatusVerified, workflow.ActionResubmit))

	rec := s.do(http.MethodPost, s.path("/resubmit"), nil)

	s.Equal(http.StatusConflict, rec.Code)
	body := s.decode(rec)
	s.Equal("invalid_transition", body["error"])
	s.Equal("cannot resubmit from status VERIFIED", body["error_description"])
}

func (s *KycHandlerSuite) TestRiskRating() {
	s.service.EXPECT().UpdateRiskRating(gomock.Any(), gomock.Any(), s.clientID, models.RiskHigh, "").
		Return(s.record(models.StatusVerified), nil)

	rec := s.do(http.MethodPut, s.path("/risk-rating"), map[string]string{"riskRating": "high"})
	s.Equal(http.StatusOK, rec.Code)
}

func (s *KycHandlerSuite) TestRiskRatingUnknownValue() {
	rec := s.do(http.MethodPut, s.path("/risk-rating"), map[string]string{"riskRating": "EXTREME"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *KycHandlerSuite) TestHistoryOrder() {
	s.service.EXPECT().History(gomock.Any(), s.clientID, models.Descending).
		Return([]models.HistoryEvent{}, nil)

	rec := s.do(http.MethodGet, s.path("/history?order=desc"), nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, s.path("/history?order=sideways"), nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *KycHandlerSuite) TestStatusNotFound() {
	s.service.EXPECT().Status(gomock.Any(), s.clientID).
		Return(models.Status(""), dErrors.New(dErrors.CodeNotFound, "kyc record not found"))

	rec := s.do(http.MethodGet, s.path("/status"), nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *KycHandlerSuite) TestInvalidClientID() {
	rec := s.do(http.MethodGet, "/kyc/not-a-uuid/status", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *KycHandlerSuite) TestInternalErrorsHideDetail() {
	s.service.EXPECT().Get(gomock.Any(), s.clientID).
		Return(nil, dErrors.Wrap(context.DeadlineExceeded, dErrors.CodeInternal, "db exploded"))

	rec := s.do(http.MethodGet, s.path(""), nil)
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.NotContains(rec.Body.String(), "db exploded")
}

func (s *KycHandlerSuite) TestReadiness() {
	s.service.EXPECT().IsReadyForSubmission(gomock.Any(), s.clientID).
		Return(models.Readiness{Ready: false, Missing: []models.ChecklistItem{models.ChecklistReferees}}, nil)

	rec := s.do(http.MethodGet, s.path("/readiness"), nil)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"ready":false,"missing":["referees"]}`, rec.Body.String())
}

func (s *KycHandlerSuite) TestReviewQueue() {
	s.service.EXPECT().ReviewQueue(gomock.Any(), authz.Capabilities{MayReview: true}).
		Return([]*models.ClientKycRecord{s.record(models.StatusPendingReview)}, nil)

	rec := s.do(http.MethodGet, "/kyc/review-queue", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.EqualValues(1, s.decode(rec)["total"])
}
