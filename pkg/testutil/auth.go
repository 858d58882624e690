package testutil

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	jwttoken "loankyc/internal/jwt_token"
	id "loankyc/pkg/domain"
	"loankyc/pkg/requestcontext"
)

// WithActor places an actor and role on the request context, as the auth
// middleware does for a valid token.
func WithActor(req *http.Request, userID id.UserID, role string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}

// WithBearer signs an hour-long token for userID and role and sets it on req.
func WithBearer(t *testing.T, signer *jwttoken.JWTService, req *http.Request, userID uuid.UUID, role string) *http.Request {
	t.Helper()
	token, err := signer.GenerateAccessToken(userID, role, time.Hour)
	require.NoError(t, err, "failed to sign token")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
