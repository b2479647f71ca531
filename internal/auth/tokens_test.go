package auth

import (
	"testing"
	"time"

	"github.com/davidm/taskflow/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *TokenService {
	return NewTokenService("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
}

func testUser() *domain.User {
	return &domain.User{
		ID:        uuid.New(),
		Email:     "jane@example.com",
		FirstName: "Jane",
		LastName:  "Doe",
		Role:      domain.RoleMember,
	}
}

func TestGenerateSessionID(t *testing.T) {
	id, err := GenerateSessionID()
	require.NoError(t, err)
	assert.Len(t, id, 64)

	other, err := GenerateSessionID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	svc := newTestService()
	user := testUser()

	token, err := svc.GenerateAccessToken(user, "session-1")
	require.NoError(t, err)

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)

	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, string(user.Role), claims.Role)
	assert.Equal(t, "session-1", claims.SessionID)
}

func TestRefreshToken_OmitsIdentityClaims(t *testing.T) {
	svc := newTestService()
	user := testUser()

	token, err := svc.GenerateRefreshToken(user, "session-1")
	require.NoError(t, err)

	claims, err := svc.VerifyRefreshToken(token)
	require.NoError(t, err)

	assert.Equal(t, user.ID, claims.UserID)
	assert.Empty(t, claims.Email)
	assert.Empty(t, claims.Role)
	assert.Equal(t, "session-1", claims.SessionID)
}

func TestTokenKinds_AreNotInterchangeable(t *testing.T) {
	svc := newTestService()
	user := testUser()

	access, err := svc.GenerateAccessToken(user, "session-1")
	require.NoError(t, err)
	refresh, err := svc.GenerateRefreshToken(user, "session-1")
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, err = svc.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", -time.Minute, 24*time.Hour)

	token, err := svc.GenerateAccessToken(testUser(), "session-1")
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyAccessToken_Malformed(t *testing.T) {
	svc := newTestService()

	_, err := svc.VerifyAccessToken("not-a-token")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerifyAccessToken_WrongSecret(t *testing.T) {
	svc := newTestService()
	other := NewTokenService("different-secret", "refresh-secret", time.Hour, 24*time.Hour)

	token, err := other.GenerateAccessToken(testUser(), "session-1")
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestExtractBearer(t *testing.T) {
	assert.Equal(t, "abc123", ExtractBearer("Bearer abc123"))
	assert.Equal(t, "", ExtractBearer("abc123"))
	assert.Equal(t, "", ExtractBearer(""))
	assert.Equal(t, "", ExtractBearer("Basic abc123"))
}
