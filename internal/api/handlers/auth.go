package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/davidm/taskflow/internal/auth"
	"github.com/davidm/taskflow/internal/api/middleware"
	"github.com/davidm/taskflow/internal/domain"
	"github.com/davidm/taskflow/internal/logger"
	"github.com/davidm/taskflow/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type VerifyRequest struct {
	Token string `json:"token"`
}

type authData struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
	SessionID    string       `json:"session_id"`
}

func newAuthData(result *service.AuthResult) authData {
	return authData{
		User:         result.User,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
		SessionID:    result.SessionID,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" {
		respondError(w, http.StatusBadRequest, "Email, password, first name and last name are required")
		return
	}

	result, err := h.authService.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmailExists) {
			respondError(w, http.StatusBadRequest, "User with this email already exists")
			return
		}
		logger.Error().Err(err).Msg("registration failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(w, http.StatusCreated, "User registered successfully", newAuthData(result))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	result, err := h.authService.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		logger.Error().Err(err).Msg("login failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(w, http.StatusOK, "Login successful", newAuthData(result))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	result, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if isAuthError(err) {
			respondError(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		logger.Error().Err(err).Msg("token refresh failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(w, http.StatusOK, "Token refreshed successfully", newAuthData(result))
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Token == "" {
		respondError(w, http.StatusBadRequest, "Token is required")
		return
	}

	user, claims, err := h.authService.Verify(r.Context(), req.Token)
	if err != nil {
		if isAuthError(err) {
			respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		logger.Error().Err(err).Msg("token verification failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(w, http.StatusOK, "Token is valid", map[string]interface{}{
		"user": user,
		"token_info": map[string]interface{}{
			"user_id":    claims.UserID,
			"email":      claims.Email,
			"role":       claims.Role,
			"issued_at":  claims.IssuedAt.Time.Format(time.RFC3339),
			"expires_at": claims.ExpiresAt.Time.Format(time.RFC3339),
		},
	})
}

// Logout revokes the presented access token. A request without a token still
// succeeds: there is nothing to revoke.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractBearer(r.Header.Get("Authorization"))
	if token != "" {
		if err := h.authService.Logout(r.Context(), token); err != nil {
			if isAuthError(err) {
				respondError(w, http.StatusUnauthorized, "Logout token verification failed")
				return
			}
			logger.Error().Err(err).Msg("logout failed")
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	respondSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.authService.LogoutAll(r.Context(), user.ID); err != nil {
		logger.Error().Err(err).Msg("logout-all failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(w, http.StatusOK, "Logged out from all devices successfully", nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	respondSuccess(w, http.StatusOK, "", map[string]interface{}{"user": user})
}

func isAuthError(err error) bool {
	return errors.Is(err, auth.ErrTokenExpired) ||
		errors.Is(err, auth.ErrTokenMalformed) ||
		errors.Is(err, auth.ErrTokenVerification) ||
		errors.Is(err, service.ErrTokenRevoked) ||
		errors.Is(err, service.ErrSessionInvalid) ||
		errors.Is(err, service.ErrUserNotFound)
}
