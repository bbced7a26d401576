package auth

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"asset-tracker/internal/apperr"
	"asset-tracker/internal/logging"
	"asset-tracker/internal/user"
)

func TestAuthenticate_FailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)
	env.createUser(t, "bob", "BobPass1!", user.RoleUser)

	_, wrongPassword := env.manager.Authenticate(ctx, "bob", "nope")
	_, unknownUser := env.manager.Authenticate(ctx, "nobody", "nope")

	require.ErrorIs(t, wrongPassword, apperr.ErrAuthFailure)
	require.ErrorIs(t, unknownUser, apperr.ErrAuthFailure)
	assert.Equal(t, apperr.PublicMessage(wrongPassword), apperr.PublicMessage(unknownUser))
	assert.Equal(t, apperr.Status(wrongPassword), apperr.Status(unknownUser))

	u, err := env.manager.Authenticate(ctx, "bob", "BobPass1!")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username)
}

func TestAuthenticate_Throttles(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)
	env.createUser(t, "bob", "BobPass1!", user.RoleUser)

	for i := 0; i < 3; i++ {
		_, err := env.manager.Authenticate(ctx, "bob", "wrong")
		require.ErrorIs(t, err, apperr.ErrAuthFailure)
	}

	_, err := env.manager.Authenticate(ctx, "bob", "BobPass1!")
	require.ErrorIs(t, err, apperr.ErrTooManyAttempts)
	var throttled *ThrottledError
	require.True(t, errors.As(err, &throttled))
	assert.Greater(t, throttled.RetryAfter, time.Duration(0))

	// unknown names are throttled the same way
	for i := 0; i < 3; i++ {
		_, _ = env.manager.Authenticate(ctx, "ghost", "wrong")
	}
	_, err = env.manager.Authenticate(ctx, "ghost", "wrong")
	assert.ErrorIs(t, err, apperr.ErrTooManyAttempts)

	env.redis.FastForward(2 * time.Minute)
	_, err = env.manager.Authenticate(ctx, "bob", "BobPass1!")
	assert.NoError(t, err)
}

func TestAuthenticate_UpgradesLegacyDigest(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)
	legacy, err := bcrypt.GenerateFromPassword([]byte("BobPass1!"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &user.User{Username: "bob", PasswordHash: string(legacy), Role: user.RoleUser}
	require.NoError(t, env.users.Create(ctx, u))

	_, err = env.manager.Authenticate(ctx, "bob", "BobPass1!")
	require.NoError(t, err)

	stored, err := env.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, string(legacy), stored.PasswordHash)
	assert.False(t, env.hasher.NeedsUpgrade(stored.PasswordHash))
	assert.True(t, env.hasher.Verify(stored.PasswordHash, "BobPass1!"))
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)
	bob := env.createUser(t, "bob", "BobPass1!", user.RoleUser)

	_, err := env.manager.CurrentIdentity(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated, "no token is anonymous")

	u, token, err := env.manager.Login(ctx, "bob", "BobPass1!")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, u.ID)

	current, err := env.manager.CurrentIdentity(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "bob", current.Username)

	require.NoError(t, env.manager.EndSession(ctx, token))
	_, err = env.manager.CurrentIdentity(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestCurrentIdentity_RejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)
	bob := env.createUser(t, "bob", "BobPass1!", user.RoleUser)
	_, token, err := env.manager.Login(ctx, "bob", "BobPass1!")
	require.NoError(t, err)
	claims, err := ParseSessionToken(testSecret, token)
	require.NoError(t, err)

	now := time.Now()
	forged, err := SignSessionToken("other-secret", claims.ID, bob.ID, now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = env.manager.CurrentIdentity(ctx, forged)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated, "bad signature")

	swapped, err := SignSessionToken(testSecret, claims.ID, bob.ID+1, now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = env.manager.CurrentIdentity(ctx, swapped)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated, "session belongs to another user")

	unknown, err := SignSessionToken(testSecret, "no-such-session", bob.ID, now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = env.manager.CurrentIdentity(ctx, unknown)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestCurrentIdentity_IdleTimeout(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 30*time.Minute)
	env.createUser(t, "bob", "BobPass1!", user.RoleUser)
	_, token, err := env.manager.Login(ctx, "bob", "BobPass1!")
	require.NoError(t, err)

	env.advance(10 * time.Minute)
	_, err = env.manager.CurrentIdentity(ctx, token)
	require.NoError(t, err, "activity refreshes the idle clock")

	env.advance(10 * time.Minute)
	_, err = env.manager.CurrentIdentity(ctx, token)
	require.NoError(t, err)

	env.advance(31 * time.Minute)
	_, err = env.manager.CurrentIdentity(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	var count int64
	require.NoError(t, env.db.Model(&Session{}).Count(&count).Error)
	assert.Zero(t, count, "timed out session is removed")
}

func TestCurrentIdentity_AbsoluteExpiry(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)
	env.createUser(t, "bob", "BobPass1!", user.RoleUser)
	_, token, err := env.manager.Login(ctx, "bob", "BobPass1!")
	require.NoError(t, err)
	claims, err := ParseSessionToken(testSecret, token)
	require.NoError(t, err)

	// the token itself is still valid; the server-side row has expired
	require.NoError(t, env.db.Model(&Session{}).Where("id = ?", claims.ID).
		Update("expires_at", env.clock.Add(-time.Minute)).Error)
	_, err = env.manager.CurrentIdentity(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestCurrentIdentity_DeletedUser(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)
	bob := env.createUser(t, "bob", "BobPass1!", user.RoleUser)
	_, token, err := env.manager.Login(ctx, "bob", "BobPass1!")
	require.NoError(t, err)

	require.NoError(t, env.db.Delete(&user.User{}, bob.ID).Error)
	_, err = env.manager.CurrentIdentity(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	var remaining int64
	require.NoError(t, env.db.Model(&Session{}).Where("user_id = ?", bob.ID).Count(&remaining).Error)
	assert.Zero(t, remaining, "sessions of a deleted user are removed")
}

type failingDeleteStore struct {
	SessionStore
}

func (failingDeleteStore) DeleteByUser(context.Context, uint) error {
	return oops.Code("SESSION_DELETE_FAILED").Errorf("database is locked")
}

func TestCurrentIdentity_DeletedUserCleanupFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)
	bob := env.createUser(t, "bob", "BobPass1!", user.RoleUser)
	_, token, err := env.manager.Login(ctx, "bob", "BobPass1!")
	require.NoError(t, err)

	var logs bytes.Buffer
	env.manager.logger = logging.NewWithWriter(&logs, "info", "text")
	env.manager.sessions = failingDeleteStore{SessionStore: env.store}

	require.NoError(t, env.db.Delete(&user.User{}, bob.ID).Error)
	_, err = env.manager.CurrentIdentity(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	assert.Contains(t, logs.String(), "failed to remove sessions of deleted user")
	assert.Contains(t, logs.String(), "SESSION_DELETE_FAILED")
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)

	u, err := env.manager.Register(ctx, "carol", "Passw0rd$", "Passw0rd$")
	require.NoError(t, err)
	assert.Equal(t, user.RoleUser, u.Role)
	assert.True(t, env.hasher.Verify(u.PasswordHash, "Passw0rd$"))

	_, err = env.manager.Register(ctx, "carol", "Passw0rd$", "Passw0rd$")
	assert.ErrorIs(t, err, apperr.ErrDuplicateName)

	_, err = env.manager.Register(ctx, "dave", "password", "password")
	verr, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "password")
}

func TestChangePassword_EndsAllSessions(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)
	bob := env.createUser(t, "bob", "BobPass1!", user.RoleUser)
	_, first, err := env.manager.Login(ctx, "bob", "BobPass1!")
	require.NoError(t, err)
	_, second, err := env.manager.Login(ctx, "bob", "BobPass1!")
	require.NoError(t, err)

	err = env.manager.ChangePassword(ctx, bob, "wrong", "NewPass2@", "NewPass2@")
	verr, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "current_password")

	require.NoError(t, env.manager.ChangePassword(ctx, bob, "BobPass1!", "NewPass2@", "NewPass2@"))
	for _, token := range []string{first, second} {
		_, err := env.manager.CurrentIdentity(ctx, token)
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	}

	_, err = env.manager.Authenticate(ctx, "bob", "BobPass1!")
	assert.ErrorIs(t, err, apperr.ErrAuthFailure)
	_, err = env.manager.Authenticate(ctx, "bob", "NewPass2@")
	assert.NoError(t, err)
}

func TestActiveUsersAndPrune(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 30*time.Minute)
	env.createUser(t, "alice", "AlicePass1!", user.RoleAdmin)
	env.createUser(t, "bob", "BobPass1!", user.RoleUser)

	_, _, err := env.manager.Login(ctx, "alice", "AlicePass1!")
	require.NoError(t, err)
	_, _, err = env.manager.Login(ctx, "alice", "AlicePass1!")
	require.NoError(t, err)
	_, _, err = env.manager.Login(ctx, "bob", "BobPass1!")
	require.NoError(t, err)

	active, err := env.manager.ActiveUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), active, "counted per user, not per session")

	env.advance(time.Hour)
	active, err = env.manager.ActiveUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, active)

	pruned, err := env.manager.PruneSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pruned)
}

func TestNewManager_RequiresSecret(t *testing.T) {
	env := setupTestEnv(t, 0)
	_, err := NewManager(env.users, env.store, env.hasher, nil, Options{TTL: time.Hour}, nil, nil)
	assert.Error(t, err)
}

func TestUpdateAccount(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)
	admin := env.createUser(t, "admin", "AdminPass1!", user.RoleAdmin)
	bob := env.createUser(t, "bob", "BobPass1!", user.RoleUser)
	_, token, err := env.manager.Login(ctx, "bob", "BobPass1!")
	require.NoError(t, err)

	updated, err := env.manager.UpdateAccount(ctx, admin, bob.ID, AccountUpdate{Role: user.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin())
	_, err = env.manager.CurrentIdentity(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated, "a role change ends the account's sessions")

	_, err = env.manager.UpdateAccount(ctx, admin, admin.ID, AccountUpdate{Role: user.RoleUser})
	verr, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "role")

	_, err = env.manager.UpdateAccount(ctx, admin, bob.ID, AccountUpdate{Password: "NewPass2@", ConfirmPassword: "Mismatch2@"})
	verr, ok = apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "confirm_password")
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, 0)
	admin := env.createUser(t, "admin", "AdminPass1!", user.RoleAdmin)
	bob := env.createUser(t, "bob", "BobPass1!", user.RoleUser)
	_, token, err := env.manager.Login(ctx, "bob", "BobPass1!")
	require.NoError(t, err)

	_, ok := apperr.AsValidation(env.manager.DeleteAccount(ctx, admin, admin.ID))
	assert.True(t, ok, "admins cannot delete themselves")

	require.NoError(t, env.manager.DeleteAccount(ctx, admin, bob.ID))
	_, err = env.manager.CurrentIdentity(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	var remaining int64
	require.NoError(t, env.db.Model(&Session{}).Where("user_id = ?", bob.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	assert.ErrorIs(t, env.manager.DeleteAccount(ctx, admin, bob.ID), apperr.ErrNotFound)
}
