package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/civicwatch/civicwatch/internal/hash"
	"github.com/civicwatch/civicwatch/internal/logging"
	"github.com/civicwatch/civicwatch/internal/models"
	"github.com/civicwatch/civicwatch/internal/repo"
	"github.com/civicwatch/civicwatch/internal/tokens"
)

// SessionManager orchestrates login, refresh rotation, logout and
// identity resolution over the credential and session stores.
type SessionManager struct {
	Repo  repo.GormRepo
	Codec *tokens.Codec
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	City     string
	State    string
}

func (s *SessionManager) storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
}

// issueTokens mints an access/refresh pair for the given session.
// The refresh secret is a fresh random value on every call; its hash
// is what the session row must hold before the pair leaves here.
func (s *SessionManager) issueTokens(user *models.User, sessionID uuid.UUID) (*TokenPair, string, error) {
	now := time.Now()

	accessClaims := tokens.AccessClaims{
		Username:   user.Username,
		Email:      user.Email,
		Role:       user.Role,
		IsVerified: user.IsVerified,
	}
	accessClaims.Subject = user.ID.String()
	accessToken, err := s.Codec.SignAccess(accessClaims)
	if err != nil {
		return nil, "", err
	}

	secret := uuid.NewString()
	refreshToken, err := s.Codec.SignRefresh(user.ID.String(), sessionID.String(), secret)
	if err != nil {
		return nil, "", err
	}

	secretHash, err := hash.HashPassword(secret)
	if err != nil {
		return nil, "", err
	}

	pair := &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    now.Add(s.Codec.AccessTTL),
		RefreshExp:   now.Add(s.Codec.RefreshTTL),
	}
	return pair, secretHash, nil
}

func (s *SessionManager) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrValidation)
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	pwHash, err := hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_failed", "reason", "cannot hash password", "error", err)
		return nil, err
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
		IsVerified:   true,
		City:         in.City,
		State:        in.State,
	}

	if err := s.Repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			l.Warn("register_failed", "reason", "duplicate user", "username", in.Username)
			return nil, ErrDuplicateUser
		}
		l.Error("register_failed", "error", err)
		return nil, s.storeErr(err)
	}

	l.Info("user_registered", "user_id", user.ID)
	return user, nil
}

func (s *SessionManager) Login(ctx context.Context, username, password string) (*TokenPair, *models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	if username == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	user, err := s.Repo.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("login_failed", "reason", "unknown username")
			return nil, nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "error", err)
		return nil, nil, s.storeErr(err)
	}

	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "reason", "password mismatch")
		return nil, nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		l.Warn("login_failed", "reason", "not verified")
		return nil, nil, ErrNotVerified
	}

	// The row exists first so the refresh token can name its id. Its
	// initial secret is a throwaway: no token ever carries it, and it
	// is replaced below before the real pair leaves this call.
	initialHash, err := hash.HashPassword(uuid.NewString())
	if err != nil {
		return nil, nil, err
	}
	session, err := s.Repo.CreateRefreshSession(ctx, user.ID, initialHash)
	if err != nil {
		l.Error("login_failed", "error", err)
		return nil, nil, s.storeErr(err)
	}

	pair, secretHash, err := s.issueTokens(user, session.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Repo.SetSecretHash(ctx, session.ID, secretHash); err != nil {
		l.Error("login_failed", "error", err)
		return nil, nil, s.storeErr(err)
	}

	l.Info("login_successful", "user_id", user.ID, "session_id", session.ID)
	return pair, user, nil
}

// Refresh rotates the session's secret. All three inputs come from a
// signature-verified refresh token; the stored hash decides whether
// the presented secret is the current one or a replay.
func (s *SessionManager) Refresh(ctx context.Context, userID uuid.UUID, presentedSecret string, sessionID uuid.UUID) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh", "session_id", sessionID)

	var (
		user    *models.User
		session *models.RefreshSession
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.Repo.FindUserByID(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		session, err = s.Repo.FindRefreshSessionByID(gctx, sessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("refresh_denied", "reason", "unknown user or session")
			return nil, ErrAccessDenied
		}
		l.Error("refresh_failed", "error", err)
		return nil, s.storeErr(err)
	}

	if session.UserID != user.ID {
		l.Warn("refresh_denied", "reason", "session owned by another user")
		return nil, ErrAccessDenied
	}

	if !hash.CheckPassword(session.SecretHash, presentedSecret) {
		l.Warn("refresh_denied", "reason", "secret mismatch, possible replay")
		return nil, ErrAccessDenied
	}

	pair, newHash, err := s.issueTokens(user, session.ID)
	if err != nil {
		return nil, err
	}

	// Same row, same session id; only the secret changes. The swap is
	// conditional on the hash we just validated, so a concurrent
	// refresh that rotated first makes this one fail closed.
	if err := s.Repo.RotateSecretHash(ctx, session.ID, session.SecretHash, newHash); err != nil {
		if errors.Is(err, repo.ErrStaleSecret) {
			l.Warn("refresh_denied", "reason", "lost rotation race")
			return nil, ErrAccessDenied
		}
		l.Error("refresh_failed", "error", err)
		return nil, s.storeErr(err)
	}

	l.Info("refresh_rotated", "user_id", user.ID)
	return pair, nil
}

// Logout deletes the session named by the refresh token. The token is
// decoded without verification: a stale or already-rotated token must
// still log its session out. Idempotent.
func (s *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	sessionStr, ok := s.Codec.DecodeSessionID(refreshToken)
	if !ok {
		return nil
	}
	sessionID, err := uuid.Parse(sessionStr)
	if err != nil {
		return nil
	}

	if err := s.Repo.DeleteRefreshSession(ctx, sessionID); err != nil {
		l.Error("logout_failed", "error", err)
		return s.storeErr(err)
	}
	l.Info("session_deleted", "session_id", sessionID)
	return nil
}

// LogoutAll revokes every session of the user. Zero sessions is a
// no-op success.
func (s *SessionManager) LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	l := logging.FromContext(ctx).With("svc", "auth.logout_all", "user_id", userID)

	deleted, err := s.Repo.DeleteAllRefreshSessionsForUser(ctx, userID)
	if err != nil {
		l.Error("logout_all_failed", "error", err)
		return 0, s.storeErr(err)
	}
	l.Info("sessions_revoked", "count", deleted)
	return deleted, nil
}

// ResolveIdentity answers "who is this request" for every other
// subsystem. Codec-level failures surface as ErrAccessDenied; role
// checks are the caller's job and run strictly after this.
func (s *SessionManager) ResolveIdentity(accessToken string) (*tokens.AccessClaims, error) {
	claims, err := s.Codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	return claims, nil
}
