package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
)

func applicationDoc() *ClientDocument {
	appID := id.ApplicationID(uuid.New())
	return &ClientDocument{
		ID:            id.DocumentID(uuid.New()),
		ClientID:      id.ClientID(uuid.New()),
		ApplicationID: &appID,
		Type:          id.DocumentBankStatement,
		ScanStatus:    ScanPending,
		ReviewStatus:  ReviewPending,
	}
}

func TestReviewKeepsNotesOnlyWhenRejected(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	actor := id.UserID(uuid.New())
	doc := applicationDoc()

	require.NoError(t, doc.Review(ReviewRejected, " wrong month ", actor, now))
	assert.Equal(t, "wrong month", doc.ReviewNotes)

	require.NoError(t, doc.SetScanStatus(ScanClean, now))
	require.NoError(t, doc.Review(ReviewVerified, "looks fine", actor, now))
	assert.Empty(t, doc.ReviewNotes)
	require.NotNil(t, doc.ReviewedAt)

	require.NoError(t, doc.Review(ReviewPending, "", actor, now))
	assert.Nil(t, doc.ReviewedBy)
	assert.Nil(t, doc.ReviewedAt)
}

func TestReviewRequiresCleanScanForVerification(t *testing.T) {
	doc := applicationDoc()
	doc.ScanStatus = ScanInfected

	err := doc.Review(ReviewVerified, "", id.UserID(uuid.New()), time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, ReviewPending, doc.ReviewStatus)
}

func TestInfectedScanWithdrawsVerification(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	doc := applicationDoc()
	require.NoError(t, doc.SetScanStatus(ScanClean, now))
	require.NoError(t, doc.Review(ReviewVerified, "", id.UserID(uuid.New()), now))

	require.NoError(t, doc.SetScanStatus(ScanInfected, now.Add(time.Hour)))
	assert.Equal(t, ReviewPending, doc.ReviewStatus)
	assert.Nil(t, doc.ReviewedBy)
	assert.Nil(t, doc.ReviewedAt)
}

func TestParseStatuses(t *testing.T) {
	scan, err := ParseScanStatus(" CLEAN ")
	require.NoError(t, err)
	assert.Equal(t, ScanClean, scan)

	review, err := ParseReviewStatus("rejected")
	require.NoError(t, err)
	assert.Equal(t, ReviewRejected, review)

	_, err = ParseScanStatus("unknown")
	assert.Error(t, err)
	_, err = ParseReviewStatus("")
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	doc := applicationDoc()
	doc.MarkDeleted(id.UserID(uuid.New()), time.Now())

	c := doc.Clone()
	*c.ApplicationID = id.ApplicationID(uuid.New())
	*c.DeletedAt = time.Time{}

	assert.NotEqual(t, *doc.ApplicationID, *c.ApplicationID)
	assert.False(t, doc.DeletedAt.IsZero())
}
