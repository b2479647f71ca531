package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/davidm/taskflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(data))
	require.NoError(t, err)
	return resp
}

func TestRegister_Success(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp := postJSON(t, ts.APIURL("/auth/register"), map[string]string{
		"email":      "jane@example.com",
		"password":   "password123",
		"first_name": "Jane",
		"last_name":  "Doe",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var authResp testutil.AuthResponse
	testutil.AssertJSONResponse(t, resp, &authResp)

	assert.Equal(t, "success", authResp.Status)
	assert.Equal(t, "jane@example.com", authResp.Data.User.Email)
	assert.NotEmpty(t, authResp.Data.AccessToken)
	assert.NotEmpty(t, authResp.Data.RefreshToken)
	assert.Len(t, authResp.Data.SessionID, 64)
	assert.Greater(t, authResp.Data.ExpiresIn, int64(0))
}

func TestRegister_MissingFields(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp := postJSON(t, ts.APIURL("/auth/register"), map[string]string{
		"email":    "jane@example.com",
		"password": "password123",
	})
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "required")
}

func TestRegister_DuplicateEmail(t *testing.T) {
	ts := testutil.NewTestServer(t)

	testutil.NewUserBuilder().WithEmail("jane@example.com").BuildAndAuthenticate(t, ts)

	resp := postJSON(t, ts.APIURL("/auth/register"), map[string]string{
		"email":      "jane@example.com",
		"password":   "password123",
		"first_name": "Jane",
		"last_name":  "Doe",
	})
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "already exists")
}

func TestLogin_Success(t *testing.T) {
	ts := testutil.NewTestServer(t)

	testutil.NewUserBuilder().
		WithEmail("jane@example.com").
		WithPassword("password123").
		Build(t, ts.DB.DB)

	resp := postJSON(t, ts.APIURL("/auth/login"), map[string]string{
		"email":    "jane@example.com",
		"password": "password123",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var authResp testutil.AuthResponse
	testutil.AssertJSONResponse(t, resp, &authResp)
	assert.NotEmpty(t, authResp.Data.AccessToken)
}

func TestLogin_WrongPassword(t *testing.T) {
	ts := testutil.NewTestServer(t)

	testutil.NewUserBuilder().
		WithEmail("jane@example.com").
		WithPassword("password123").
		Build(t, ts.DB.DB)

	resp := postJSON(t, ts.APIURL("/auth/login"), map[string]string{
		"email":    "jane@example.com",
		"password": "wrong-password",
	})
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "Invalid credentials")
}

func TestMe_RequiresToken(t *testing.T) {
	ts := testutil.NewTestServer(t)

	req := testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL("/auth/me"), nil, "")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "Authentication failed")
}

func TestMe_ReturnsCurrentUser(t *testing.T) {
	ts := testutil.NewTestServer(t)

	user, token := testutil.NewUserBuilder().
		WithEmail("jane@example.com").
		BuildAndAuthenticate(t, ts)

	req := testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL("/auth/me"), nil, token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			User struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"user"`
		} `json:"data"`
	}
	testutil.AssertJSONResponse(t, resp, &body)
	assert.Equal(t, user.ID.String(), body.Data.User.ID)
	assert.Equal(t, "jane@example.com", body.Data.User.Email)
}

func TestRefresh_RotatesTokens(t *testing.T) {
	ts := testutil.NewTestServer(t)

	auth := testutil.NewUserBuilder().BuildAndAuthenticateFull(t, ts)

	resp := postJSON(t, ts.APIURL("/auth/refresh"), map[string]string{
		"refreshToken": auth.Data.RefreshToken,
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rotated testutil.AuthResponse
	testutil.AssertJSONResponse(t, resp, &rotated)
	assert.NotEqual(t, auth.Data.SessionID, rotated.Data.SessionID)

	// The old refresh token is dead after rotation
	resp = postJSON(t, ts.APIURL("/auth/refresh"), map[string]string{
		"refreshToken": auth.Data.RefreshToken,
	})
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "Invalid refresh token")
}

func TestRefresh_RejectsGarbage(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp := postJSON(t, ts.APIURL("/auth/refresh"), map[string]string{
		"refreshToken": "garbage",
	})
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "Invalid refresh token")
}

func TestLogout_RevokesToken(t *testing.T) {
	ts := testutil.NewTestServer(t)

	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/auth/logout"), nil, token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The revoked token no longer opens authenticated routes
	req = testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL("/auth/me"), nil, token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "Authentication failed")
}

func TestLogout_WithoutTokenSucceeds(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp := postJSON(t, ts.APIURL("/auth/logout"), nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutAll_KillsOtherSessions(t *testing.T) {
	ts := testutil.NewTestServer(t)

	builder := testutil.NewUserBuilder().
		WithEmail("jane@example.com").
		WithPassword("password123")
	_, firstToken := builder.BuildAndAuthenticate(t, ts)

	// Second session for the same account
	loginResp := postJSON(t, ts.APIURL("/auth/login"), map[string]string{
		"email":    "jane@example.com",
		"password": "password123",
	})
	var second testutil.AuthResponse
	testutil.AssertJSONResponse(t, loginResp, &second)
	loginResp.Body.Close()

	req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/auth/logout-all"), nil, firstToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, token := range []string{firstToken, second.Data.AccessToken} {
		req = testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL("/auth/me"), nil, token)
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestVerify_ChecksSignatureOnly(t *testing.T) {
	ts := testutil.NewTestServer(t)

	auth := testutil.NewUserBuilder().BuildAndAuthenticateFull(t, ts)

	resp := postJSON(t, ts.APIURL("/auth/verify"), map[string]string{
		"token": auth.Data.AccessToken,
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			TokenInfo struct {
				UserID    string `json:"user_id"`
				ExpiresAt string `json:"expires_at"`
			} `json:"token_info"`
		} `json:"data"`
	}
	testutil.AssertJSONResponse(t, resp, &body)
	assert.Equal(t, auth.Data.User.ID.String(), body.Data.TokenInfo.UserID)
	assert.NotEmpty(t, body.Data.TokenInfo.ExpiresAt)

	resp = postJSON(t, ts.APIURL("/auth/verify"), map[string]string{
		"token": "garbage",
	})
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "Invalid token")
}
