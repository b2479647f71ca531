package service

import (
	"context"
	"errors"
	"time"

	"github.com/davidm/taskflow/internal/auth"
	"github.com/davidm/taskflow/internal/config"
	"github.com/davidm/taskflow/internal/domain"
	"github.com/davidm/taskflow/internal/repository"
	"github.com/davidm/taskflow/internal/session"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("user with this email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrSessionInvalid     = errors.New("session is invalid or expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
)

// blacklistFallbackTTL bounds a blacklist entry when the revoked token's own
// expiry can no longer be read.
const blacklistFallbackTTL = 24 * time.Hour

type AuthService struct {
	userRepo repository.UserRepository
	sessions *session.Store
	tokens   *auth.TokenService
	cfg      *config.Config
}

func NewAuthService(userRepo repository.UserRepository, sessions *session.Store, tokens *auth.TokenService, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		sessions: sessions,
		tokens:   tokens,
		cfg:      cfg,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type LoginInput struct {
	Email    string
	Password string
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	SessionID    string `json:"session_id"`
}

type AuthResult struct {
	User *domain.User
	TokenPair
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	existing, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err == nil && existing != nil {
		return nil, ErrEmailExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         domain.RoleMember,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	user.LastLogin = &now
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

// issueTokens mints a fresh session id, signs both tokens against it and
// registers the session record plus its user-set entry, stamping both with
// the same TTL.
func (s *AuthService) issueTokens(ctx context.Context, user *domain.User) (*AuthResult, error) {
	sessionID, err := auth.GenerateSessionID()
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.GenerateAccessToken(user, sessionID)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.GenerateRefreshToken(user, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &session.Session{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         string(user.Role),
		CreatedAt:    now,
		LastActivity: now,
	}

	if err := s.sessions.Put(ctx, sessionID, sess, s.cfg.SessionTTL); err != nil {
		return nil, err
	}
	if err := s.sessions.AddToUserSet(ctx, user.ID, sessionID, s.cfg.SessionTTL); err != nil {
		return nil, err
	}

	return &AuthResult{
		User: user,
		TokenPair: TokenPair{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
			SessionID:    sessionID,
		},
	}, nil
}

// Refresh rotates the session: the presented refresh token's session is
// invalidated and a new pair with a distinct session id is issued, so the old
// refresh token cannot be reused.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionInvalid
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Invalidate(ctx, claims.SessionID, claims.UserID); err != nil {
		return nil, err
	}

	return result, nil
}

// Verify checks an access token's signature and expiry and resolves its user.
// It does not consult the session registry; authenticated boundaries use
// Authenticate instead.
func (s *AuthService) Verify(ctx context.Context, token string) (*domain.User, *auth.Claims, error) {
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}

	return user, claims, nil
}

// Authenticate runs the full chain required at authenticated boundaries:
// signature/expiry check, blacklist check, session resolution, user lookup.
// On success the session's last_activity is re-stamped.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, string, error) {
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, "", err
	}

	blacklisted, err := s.sessions.IsBlacklisted(ctx, token)
	if err != nil {
		return nil, "", err
	}
	if blacklisted {
		return nil, "", ErrTokenRevoked
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, "", err
	}
	if sess == nil {
		return nil, "", ErrSessionInvalid
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", err
	}

	if err := s.sessions.Touch(ctx, claims.SessionID, s.cfg.SessionTTL); err != nil {
		return nil, "", err
	}

	return user, claims.SessionID, nil
}

// Logout blacklists the presented access token for its remaining lifetime and
// destroys its session. The token stays signature-valid until natural expiry;
// the blacklist entry and the missing session are what make it unusable.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return err
	}

	ttl := blacklistFallbackTTL
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
			ttl = remaining
		}
	}

	if err := s.sessions.Blacklist(ctx, token, ttl); err != nil {
		return err
	}
	return s.sessions.Invalidate(ctx, claims.SessionID, claims.UserID)
}

// LogoutAll destroys every session registered under the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	return s.sessions.InvalidateAll(ctx, userID)
}

func (s *AuthService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}
