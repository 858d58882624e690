package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loankyc/internal/kyc/models"
	dErrors "loankyc/pkg/domain-errors"
)

func TestDecodeTransition(t *testing.T) {
	t.Run("stored pair", func(t *testing.T) {
		from, to, err := decodeTransition("PENDING_REVIEW", "VERIFIED")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPendingReview, from)
		assert.Equal(t, models.StatusVerified, to)
	})

	t.Run("legacy synonym folds", func(t *testing.T) {
		_, to, err := decodeTransition("PENDING_REVIEW", "RETURNED_TO_CLIENT")
		require.NoError(t, err)
		assert.Equal(t, models.StatusReturned, to)
	})

	t.Run("unknown status fails the row", func(t *testing.T) {
		_, _, err := decodeTransition("ARCHIVED", "VERIFIED")
		require.Error(t, err)
		assert.ErrorContains(t, err, "from_status")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, _, err = decodeTransition("VERIFIED", "")
		assert.ErrorContains(t, err, "to_status")
	})
}
