package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"asset-tracker/internal/user"
)

var testPolicy = user.PasswordPolicy{MinLength: 8, RequireUpper: true, RequireDigit: true, RequireSpecial: true}

type testEnv struct {
	db      *gorm.DB
	users   *user.GormStore
	store   *GormSessionStore
	hasher  *user.PBKDF2Hasher
	manager *Manager
	clock   *time.Time
	redis   *miniredis.Miniredis
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory sqlite")
	require.NoError(t, db.AutoMigrate(&user.User{}, &Session{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// setupTestEnv wires a Manager over sqlite and a miniredis backed limiter
// allowing three failures per minute. The manager clock is controllable.
func setupTestEnv(t *testing.T, idle time.Duration) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		db:     db,
		users:  user.NewGormStore(db, true),
		store:  NewGormSessionStore(db),
		hasher: user.NewPBKDF2Hasher(1000),
		redis:  mr,
	}
	m, err := NewManager(env.users, env.store, env.hasher,
		NewRedisLimiter(rdb, true, 3, time.Minute),
		Options{Secret: testSecret, TTL: time.Hour, IdleTimeout: idle, Policy: testPolicy},
		nil, nil)
	require.NoError(t, err)
	now := time.Now().UTC()
	env.clock = &now
	m.now = func() time.Time { return *env.clock }
	env.manager = m
	return env
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func (e *testEnv) createUser(t *testing.T, username, password string, role user.Role) *user.User {
	t.Helper()
	digest, err := e.hasher.Hash(password)
	require.NoError(t, err)
	u := &user.User{Username: username, PasswordHash: digest, Role: role}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}
