package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"asset-tracker/internal/apperr"
	"asset-tracker/internal/logging"
	"asset-tracker/internal/metrics"
	"asset-tracker/internal/user"
)

// ThrottledError is returned by Authenticate while the login limiter refuses
// attempts for a username.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string { return apperr.ErrTooManyAttempts.Error() }
func (e *ThrottledError) Unwrap() error { return apperr.ErrTooManyAttempts }

type Options struct {
	Secret      string
	TTL         time.Duration
	IdleTimeout time.Duration
	Policy      user.PasswordPolicy
}

// Manager owns the anonymous to authenticated transition: credential checks,
// session creation and identity resolution.
type Manager struct {
	users    user.Store
	sessions SessionStore
	hasher   user.Hasher
	limiter  LoginLimiter
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// dummyDigest is verified for unknown usernames so both failure paths
	// cost one hash computation.
	dummyDigest string
	now         func() time.Time
}

func NewManager(users user.Store, sessions SessionStore, hasher user.Hasher, limiter LoginLimiter, opts Options, logger *slog.Logger, m *metrics.Metrics) (*Manager, error) {
	if opts.Secret == "" {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("session secret is required")
	}
	if opts.TTL <= 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").With("ttl", opts.TTL).Errorf("session ttl must be positive")
	}
	if limiter == nil {
		limiter = NoopLimiter{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Wrap(err)
	}
	return &Manager{
		users:       users,
		sessions:    sessions,
		hasher:      hasher,
		limiter:     limiter,
		opts:        opts,
		logger:      logger,
		metrics:     m,
		dummyDigest: dummy,
		now:         time.Now,
	}, nil
}

func (m *Manager) TTL() time.Duration { return m.opts.TTL }

// Authenticate checks username and password. Unknown users and wrong
// passwords produce the same error.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*user.User, error) {
	allowed, retryAfter, err := m.limiter.Allow(ctx, username)
	if err != nil {
		logging.LogError(m.logger, "login limiter unavailable", err)
		allowed = true
	}
	if !allowed {
		m.metrics.RecordLogin("throttled")
		m.logger.Warn("login throttled", "username", username, "retry_after", retryAfter)
		return nil, &ThrottledError{RetryAfter: retryAfter}
	}

	u, lookupErr := m.users.GetByUsername(ctx, username)
	digest := m.dummyDigest
	switch {
	case lookupErr == nil:
		digest = u.PasswordHash
	case errors.Is(lookupErr, apperr.ErrNotFound):
		u = nil
	default:
		m.metrics.RecordLogin("error")
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get user by username").Wrap(lookupErr)
	}

	valid := m.hasher.Verify(digest, password)
	if u == nil || !valid {
		if err := m.limiter.Fail(ctx, username); err != nil {
			logging.LogError(m.logger, "failed to record login failure", err)
		}
		m.metrics.RecordLogin("failure")
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(apperr.ErrAuthFailure)
	}

	if m.hasher.NeedsUpgrade(u.PasswordHash) {
		if upgraded, err := m.hasher.Hash(password); err == nil {
			if err := m.users.UpdatePasswordHash(ctx, u.ID, upgraded); err != nil {
				logging.LogError(m.logger, "password digest upgrade failed", err)
			} else {
				u.PasswordHash = upgraded
			}
		}
	}
	if err := m.limiter.Reset(ctx, username); err != nil {
		logging.LogError(m.logger, "failed to reset login limiter", err)
	}
	m.metrics.RecordLogin("success")
	return u, nil
}

// Login authenticates and establishes a session. The returned token is the
// signed session cookie value.
func (m *Manager) Login(ctx context.Context, username, password string) (*user.User, string, error) {
	u, err := m.Authenticate(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	token, err := m.startSession(ctx, u)
	if err != nil {
		return nil, "", err
	}
	m.logger.Info("user logged in", "user_id", u.ID, "username", u.Username)
	return u, token, nil
}

func (m *Manager) startSession(ctx context.Context, u *user.User) (string, error) {
	now := m.now().UTC()
	sess := &Session{
		ID:         uuid.NewString(),
		UserID:     u.ID,
		ExpiresAt:  now.Add(m.opts.TTL),
		LastSeenAt: now,
		CreatedAt:  now,
	}
	if err := m.sessions.Create(ctx, sess); err != nil {
		return "", err
	}
	token, err := SignSessionToken(m.opts.Secret, sess.ID, u.ID, now, sess.ExpiresAt)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return token, nil
}

func unauthenticated(reason string) error {
	return oops.Code("AUTH_NO_SESSION").With("reason", reason).Wrap(apperr.ErrUnauthenticated)
}

// CurrentIdentity resolves token to its user. Any token that does not name a
// live session of an existing user yields apperr.ErrUnauthenticated.
func (m *Manager) CurrentIdentity(ctx context.Context, token string) (*user.User, error) {
	if token == "" {
		return nil, unauthenticated("missing token")
	}
	claims, err := ParseSessionToken(m.opts.Secret, token)
	if err != nil {
		return nil, unauthenticated("invalid token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, unauthenticated("invalid subject")
	}

	sess, err := m.sessions.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, unauthenticated("unknown session")
		}
		return nil, err
	}
	if sess.UserID != userID {
		return nil, unauthenticated("session mismatch")
	}
	now := m.now().UTC()
	if sess.Expired(now, m.opts.IdleTimeout) {
		if err := m.sessions.Delete(ctx, sess.ID); err != nil {
			logging.LogError(m.logger, "failed to remove expired session", err)
		}
		return nil, unauthenticated("session expired")
	}

	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			if err := m.sessions.DeleteByUser(ctx, userID); err != nil {
				logging.LogError(m.logger, "failed to remove sessions of deleted user", err)
			}
			return nil, unauthenticated("user removed")
		}
		return nil, err
	}
	if err := m.sessions.Touch(ctx, sess.ID, now); err != nil {
		logging.LogError(m.logger, "failed to refresh session", err)
	}
	return u, nil
}

// EndSession removes the session named by token. Tokens that no longer
// parse have nothing left to end.
func (m *Manager) EndSession(ctx context.Context, token string) error {
	claims, err := ParseSessionToken(m.opts.Secret, token)
	if err != nil {
		return nil
	}
	return m.sessions.Delete(ctx, claims.ID)
}

func (m *Manager) EndAllSessions(ctx context.Context, userID uint) error {
	return m.sessions.DeleteByUser(ctx, userID)
}

// Register creates a user-role account. Role is never taken from input.
func (m *Manager) Register(ctx context.Context, username, password, confirm string) (*user.User, error) {
	if err := user.ValidateRegistration(m.opts.Policy, username, password, confirm); err != nil {
		return nil, err
	}
	digest, err := m.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").Wrap(err)
	}
	u := &user.User{Username: username, PasswordHash: digest, Role: user.RoleUser}
	if err := m.users.Create(ctx, u); err != nil {
		return nil, err
	}
	m.logger.Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// ChangePassword replaces u's password after checking the current one and
// ends every session of u.
func (m *Manager) ChangePassword(ctx context.Context, u *user.User, current, password, confirm string) error {
	var verr apperr.ValidationError
	if !m.hasher.Verify(u.PasswordHash, current) {
		verr.Add("current_password", "is incorrect")
	}
	user.ValidateNewPassword(m.opts.Policy, password, confirm, &verr)
	if err := verr.OrNil(); err != nil {
		return err
	}
	digest, err := m.hasher.Hash(password)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("user_id", u.ID).Wrap(err)
	}
	if err := m.users.UpdatePasswordHash(ctx, u.ID, digest); err != nil {
		return err
	}
	u.PasswordHash = digest
	if err := m.EndAllSessions(ctx, u.ID); err != nil {
		return err
	}
	m.logger.Info("password changed", "user_id", u.ID)
	return nil
}

// AccountUpdate is an administrator's change to another account. Empty
// fields are left alone.
type AccountUpdate struct {
	Password        string
	ConfirmPassword string
	Role            user.Role
}

// UpdateAccount resets the password and/or changes the role of account id on
// behalf of admin. Either change ends every session of the account.
// Administrators cannot change their own role.
func (m *Manager) UpdateAccount(ctx context.Context, admin *user.User, id uint, upd AccountUpdate) (*user.User, error) {
	var verr apperr.ValidationError
	if upd.Password == "" && upd.Role == "" {
		verr.Add("password", "password or role is required")
	}
	if upd.Password != "" {
		user.ValidateNewPassword(m.opts.Policy, upd.Password, upd.ConfirmPassword, &verr)
	}
	if upd.Role != "" {
		if !upd.Role.Valid() {
			verr.Add("role", "must be user or admin")
		} else if admin.ID == id && upd.Role != admin.Role {
			verr.Add("role", "cannot change your own role")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	u, err := m.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Password != "" {
		digest, err := m.hasher.Hash(upd.Password)
		if err != nil {
			return nil, oops.Code("AUTH_PASSWORD_RESET_FAILED").With("user_id", id).Wrap(err)
		}
		if err := m.users.UpdatePasswordHash(ctx, id, digest); err != nil {
			return nil, err
		}
		u.PasswordHash = digest
	}
	if upd.Role != "" && upd.Role != u.Role {
		if err := m.users.UpdateRole(ctx, id, upd.Role); err != nil {
			return nil, err
		}
		u.Role = upd.Role
	}
	if err := m.EndAllSessions(ctx, id); err != nil {
		return nil, err
	}
	m.logger.Info("account updated", "user_id", id, "by", admin.ID, "password_reset", upd.Password != "", "role", u.Role)
	return u, nil
}

// DeleteAccount removes account id on behalf of admin together with its
// sessions. Administrators cannot delete themselves.
func (m *Manager) DeleteAccount(ctx context.Context, admin *user.User, id uint) error {
	if admin.ID == id {
		verr := &apperr.ValidationError{}
		verr.Add("id", "cannot delete your own account")
		return verr
	}
	if err := m.users.Delete(ctx, id); err != nil {
		return err
	}
	if err := m.EndAllSessions(ctx, id); err != nil {
		logging.LogError(m.logger, "failed to remove sessions of deleted user", err)
	}
	m.logger.Info("account deleted", "user_id", id, "by", admin.ID)
	return nil
}

// ActiveUsers counts users holding a live session.
func (m *Manager) ActiveUsers(ctx context.Context) (int64, error) {
	return m.sessions.CountActive(ctx, m.now().UTC(), m.opts.IdleTimeout)
}

// PruneSessions deletes every expired or idle session.
func (m *Manager) PruneSessions(ctx context.Context) (int64, error) {
	return m.sessions.DeleteExpired(ctx, m.now().UTC(), m.opts.IdleTimeout)
}
