package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/civicwatch/civicwatch/internal/hash"
	"github.com/civicwatch/civicwatch/internal/models"
	"github.com/civicwatch/civicwatch/internal/repo"
	"github.com/civicwatch/civicwatch/internal/tokens"
)

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.RefreshSession{}))

	return &SessionManager{
		Repo: repo.GormRepo{DB: db},
		Codec: &tokens.Codec{
			Secret:     []byte("test-secret-which-is-long-enough-123"),
			Issuer:     "http://localhost:8000",
			Audience:   "http://localhost:3000",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
	}
}

func registerAlice(t *testing.T, svc *SessionManager) *models.User {
	t.Helper()

	user, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct-pw-8chars",
		City:     "Springfield",
		State:    "IL",
	})
	require.NoError(t, err)
	return user
}

// refreshIdentity pulls the verified triple (userID, secret,
// sessionID) out of a refresh token the way the transport adapter
// does before calling Refresh.
func refreshIdentity(t *testing.T, svc *SessionManager, refreshToken string) (uuid.UUID, string, uuid.UUID) {
	t.Helper()

	claims, err := svc.Codec.VerifyRefresh(refreshToken)
	require.NoError(t, err)

	userID, err := uuid.Parse(claims.Subject)
	require.NoError(t, err)
	sessionID, err := uuid.Parse(claims.SessionID)
	require.NoError(t, err)

	return userID, claims.Secret, sessionID
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input RegisterInput
	}{
		{name: "empty username", input: RegisterInput{Email: "a@b.c", Password: "password123"}},
		{name: "empty email", input: RegisterInput{Username: "a", Password: "password123"}},
		{name: "empty password", input: RegisterInput{Username: "a", Email: "a@b.c"}},
		{name: "short password", input: RegisterInput{Username: "a", Email: "a@b.c", Password: "short"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Register(ctx, tt.input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegister_DuplicateAndHashing(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()
	user := registerAlice(t, svc)

	assert.NotEqual(t, "correct-pw-8chars", user.PasswordHash)

	_, err := svc.Register(ctx, RegisterInput{
		Username: "alice",
		Email:    "fresh@example.com",
		Password: "another-password",
	})
	require.ErrorIs(t, err, ErrDuplicateUser)

	_, err = svc.Register(ctx, RegisterInput{
		Username: "fresh",
		Email:    "alice@example.com",
		Password: "another-password",
	})
	require.ErrorIs(t, err, ErrDuplicateUser)
}

func TestLogin_InvalidCredentialsIndistinguishable(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()
	registerAlice(t, svc)

	_, _, errUnknown := svc.Login(ctx, "nobody", "correct-pw-8chars")
	_, _, errWrongPw := svc.Login(ctx, "alice", "wrong-pw")

	// Unknown username and wrong password must be the same error.
	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrongPw.Error())
}

func TestLogin_NotVerified(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()

	user := &models.User{
		Username:     "pending",
		Email:        "pending@example.com",
		PasswordHash: mustHash(t, "correct-pw-8chars"),
		Role:         models.RoleUser,
		IsVerified:   false,
	}
	require.NoError(t, svc.Repo.CreateUser(ctx, user))

	_, _, err := svc.Login(ctx, "pending", "correct-pw-8chars")
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestLogin_AccessTokenSubjectMatchesUser(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()
	user := registerAlice(t, svc)

	pair, loggedIn, err := svc.Login(ctx, "alice", "correct-pw-8chars")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	claims, err := svc.ResolveIdentity(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, models.RoleUser, claims.Role)
}

func TestRefresh_RotationIsSingleUse(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()
	registerAlice(t, svc)

	pair1, _, err := svc.Login(ctx, "alice", "correct-pw-8chars")
	require.NoError(t, err)

	userID, secret1, sessionID := refreshIdentity(t, svc, pair1.RefreshToken)

	pair2, err := svc.Refresh(ctx, userID, secret1, sessionID)
	require.NoError(t, err)
	assert.NotEqual(t, pair1.RefreshToken, pair2.RefreshToken)
	assert.NotEqual(t, pair1.AccessToken, pair2.AccessToken)

	// Session identity is stable across rotations.
	_, secret2, sessionID2 := refreshIdentity(t, svc, pair2.RefreshToken)
	assert.Equal(t, sessionID, sessionID2)
	assert.NotEqual(t, secret1, secret2)

	// Replaying the already-rotated secret fails closed.
	_, err = svc.Refresh(ctx, userID, secret1, sessionID)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestRefresh_SequentialChainLinearizable(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()
	registerAlice(t, svc)

	pair, _, err := svc.Login(ctx, "alice", "correct-pw-8chars")
	require.NoError(t, err)

	secrets := make([]string, 0, 4)
	userID, secret, sessionID := refreshIdentity(t, svc, pair.RefreshToken)
	secrets = append(secrets, secret)

	for i := 0; i < 3; i++ {
		next, err := svc.Refresh(ctx, userID, secret, sessionID)
		require.NoError(t, err)
		_, secret, _ = refreshIdentity(t, svc, next.RefreshToken)
		secrets = append(secrets, secret)
	}

	// Every superseded secret is dead, only the newest refreshes.
	for _, stale := range secrets[:len(secrets)-1] {
		_, err := svc.Refresh(ctx, userID, stale, sessionID)
		assert.ErrorIs(t, err, ErrAccessDenied)
	}
	_, err = svc.Refresh(ctx, userID, secrets[len(secrets)-1], sessionID)
	assert.NoError(t, err)
}

func TestRefresh_CrossAccountSessionDenied(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()
	registerAlice(t, svc)
	_, err := svc.Register(ctx, RegisterInput{
		Username: "mallory",
		Email:    "mallory@example.com",
		Password: "mallory-pw-8chars",
	})
	require.NoError(t, err)

	alicePair, _, err := svc.Login(ctx, "alice", "correct-pw-8chars")
	require.NoError(t, err)
	malloryPair, mallory, err := svc.Login(ctx, "mallory", "mallory-pw-8chars")
	require.NoError(t, err)

	// Mallory presents her own valid secret against Alice's session.
	_, mallorySecret, _ := refreshIdentity(t, svc, malloryPair.RefreshToken)
	_, _, aliceSession := refreshIdentity(t, svc, alicePair.RefreshToken)

	_, err = svc.Refresh(ctx, mallory.ID, mallorySecret, aliceSession)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestRefresh_UnknownUserOrSessionDenied(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()
	registerAlice(t, svc)

	pair, user, err := svc.Login(ctx, "alice", "correct-pw-8chars")
	require.NoError(t, err)
	_, secret, sessionID := refreshIdentity(t, svc, pair.RefreshToken)

	_, err = svc.Refresh(ctx, uuid.New(), secret, sessionID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = svc.Refresh(ctx, user.ID, secret, uuid.New())
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestLogout_ScenarioAndIdempotence(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()
	registerAlice(t, svc)

	pair1, user, err := svc.Login(ctx, "alice", "correct-pw-8chars")
	require.NoError(t, err)

	userID, secret1, sessionID := refreshIdentity(t, svc, pair1.RefreshToken)
	pair2, err := svc.Refresh(ctx, userID, secret1, sessionID)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair2.RefreshToken))

	count, err := svc.Repo.CountRefreshSessionsForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// Neither the rotated-out nor the latest secret refreshes now.
	_, secret2, _ := refreshIdentity(t, svc, pair2.RefreshToken)
	_, err = svc.Refresh(ctx, userID, secret1, sessionID)
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = svc.Refresh(ctx, userID, secret2, sessionID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	// Logout twice with the same dead token never errors.
	require.NoError(t, svc.Logout(ctx, pair2.RefreshToken))
	require.NoError(t, svc.Logout(ctx, "garbage-token"))
}

func TestLogoutAll_TwoDevices(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()
	registerAlice(t, svc)

	deviceA, user, err := svc.Login(ctx, "alice", "correct-pw-8chars")
	require.NoError(t, err)
	deviceB, _, err := svc.Login(ctx, "alice", "correct-pw-8chars")
	require.NoError(t, err)

	// Two logins, two independent sessions.
	_, _, sessionA := refreshIdentity(t, svc, deviceA.RefreshToken)
	_, _, sessionB := refreshIdentity(t, svc, deviceB.RefreshToken)
	assert.NotEqual(t, sessionA, sessionB)

	count, err := svc.Repo.CountRefreshSessionsForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	deleted, err := svc.LogoutAll(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	// Device A logging out afterward is a no-op, not an error, and
	// logout-all on an empty user is a no-op success.
	require.NoError(t, svc.Logout(ctx, deviceA.RefreshToken))
	deleted, err = svc.LogoutAll(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted)
}

func TestResolveIdentity_Negatives(t *testing.T) {
	t.Parallel()

	svc := newTestManager(t)
	ctx := context.Background()
	registerAlice(t, svc)

	pair, _, err := svc.Login(ctx, "alice", "correct-pw-8chars")
	require.NoError(t, err)

	// Refresh tokens are not identities.
	_, err = svc.ResolveIdentity(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrAccessDenied)

	foreign := &tokens.Codec{
		Secret:     []byte("another-signing-secret-entirely-abcd"),
		Issuer:     svc.Codec.Issuer,
		Audience:   svc.Codec.Audience,
		AccessTTL:  svc.Codec.AccessTTL,
		RefreshTTL: svc.Codec.RefreshTTL,
	}
	claims := tokens.AccessClaims{Role: models.RoleUser}
	claims.Subject = uuid.NewString()
	forged, err := foreign.SignAccess(claims)
	require.NoError(t, err)
	_, err = svc.ResolveIdentity(forged)
	assert.ErrorIs(t, err, ErrAccessDenied)

	expiredCodec := *svc.Codec
	expiredCodec.AccessTTL = -time.Minute
	expired, err := expiredCodec.SignAccess(claims)
	require.NoError(t, err)
	_, err = svc.ResolveIdentity(expired)
	assert.ErrorIs(t, err, ErrAccessDenied)

	wrongIssuer := *svc.Codec
	wrongIssuer.Issuer = "http://evil.example.com"
	badIss, err := wrongIssuer.SignAccess(claims)
	require.NoError(t, err)
	_, err = svc.ResolveIdentity(badIss)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := hash.HashPassword(pw)
	require.NoError(t, err)
	return h
}
