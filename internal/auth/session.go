package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"gorm.io/gorm"

	"asset-tracker/internal/apperr"
)

// Session is the server-side half of a login. It carries no foreign key so
// removing a user never fails on stale sessions.
type Session struct {
	ID         string    `gorm:"primaryKey;size:36"`
	UserID     uint      `gorm:"index;not null"`
	ExpiresAt  time.Time `gorm:"index;not null"`
	LastSeenAt time.Time `gorm:"not null"`
	CreatedAt  time.Time
}

// Expired reports whether s is past its absolute expiry or has been idle
// longer than idleTimeout at now. A zero idleTimeout disables the idle rule.
func (s *Session) Expired(now time.Time, idleTimeout time.Duration) bool {
	if !now.Before(s.ExpiresAt) {
		return true
	}
	return idleTimeout > 0 && now.Sub(s.LastSeenAt) >= idleTimeout
}

type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID uint) error
	// DeleteExpired removes sessions past expiry or idle longer than
	// idleTimeout and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int64, error)
	// CountActive returns the number of distinct users with a live session.
	CountActive(ctx context.Context, now time.Time, idleTimeout time.Duration) (int64, error)
}

type GormSessionStore struct {
	db *gorm.DB
}

func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

func (s *GormSessionStore) Create(ctx context.Context, sess *Session) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("user_id", sess.UserID).Wrap(err)
	}
	return nil
}

func (s *GormSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var sess Session
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, oops.Code("SESSION_NOT_FOUND").Wrap(apperr.ErrNotFound)
		}
		return nil, oops.Code("SESSION_LOOKUP_FAILED").Wrap(err)
	}
	return &sess, nil
}

func (s *GormSessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Update("last_seen_at", at).Error
	if err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").Wrap(err)
	}
	return nil
}

func (s *GormSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Session{}).Error; err != nil {
		return oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	return nil
}

func (s *GormSessionStore) DeleteByUser(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&Session{}).Error; err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

func (s *GormSessionStore) DeleteExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int64, error) {
	q := s.db.WithContext(ctx).Where("expires_at <= ?", now)
	if idleTimeout > 0 {
		q = q.Or("last_seen_at <= ?", now.Add(-idleTimeout))
	}
	res := q.Delete(&Session{})
	if res.Error != nil {
		return 0, oops.Code("SESSION_PRUNE_FAILED").Wrap(res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormSessionStore) CountActive(ctx context.Context, now time.Time, idleTimeout time.Duration) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Session{}).Where("expires_at > ?", now)
	if idleTimeout > 0 {
		q = q.Where("last_seen_at > ?", now.Add(-idleTimeout))
	}
	var count int64
	if err := q.Distinct("user_id").Count(&count).Error; err != nil {
		return 0, oops.Code("SESSION_COUNT_FAILED").Wrap(err)
	}
	return count, nil
}
