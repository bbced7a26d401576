package user

import (
	"context"
	"errors"

	"github.com/samber/oops"
	"gorm.io/gorm"

	"asset-tracker/internal/apperr"
)

// Store persists users and their password digests.
type Store interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uint) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	UpdatePasswordHash(ctx context.Context, id uint, digest string) error
	UpdateRole(ctx context.Context, id uint, role Role) error
	// Delete removes the user. A user still owning assets is kept and a
	// ValidationError returned.
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context) ([]User, error)
	Count(ctx context.Context) (int64, error)
}

type GormStore struct {
	db            *gorm.DB
	caseSensitive bool
}

// NewGormStore returns a Store over db. With caseSensitive false, lookups and
// the availability check ignore letter case.
func NewGormStore(db *gorm.DB, caseSensitive bool) *GormStore {
	return &GormStore{db: db, caseSensitive: caseSensitive}
}

const usernameFoldIndex = "idx_users_username_fold"

// EnsureUsernameIndex makes the database reject usernames that differ only in
// letter case when caseSensitive is false, and drops that index otherwise.
// The users table must already exist.
func EnsureUsernameIndex(db *gorm.DB, caseSensitive bool) error {
	stmt := "DROP INDEX IF EXISTS " + usernameFoldIndex
	if !caseSensitive {
		stmt = "CREATE UNIQUE INDEX IF NOT EXISTS " + usernameFoldIndex + " ON users (LOWER(username))"
	}
	if err := db.Exec(stmt).Error; err != nil {
		return oops.Code("USER_INDEX_FAILED").
			With("case_sensitive", caseSensitive).
			Hint("existing usernames may differ only in case").
			Wrap(err)
	}
	return nil
}

func (s *GormStore) byUsername(tx *gorm.DB, username string) *gorm.DB {
	if s.caseSensitive {
		return tx.Where("username = ?", username)
	}
	return tx.Where("LOWER(username) = LOWER(?)", username)
}

// Create inserts u. The availability check and the insert share one
// transaction; the unique index backs it up against concurrent writers.
func (s *GormStore) Create(ctx context.Context, u *User) error {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if !u.Role.Valid() {
		return oops.Code("USER_INVALID_ROLE").With("role", u.Role).Errorf("unknown role %q", u.Role)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := s.byUsername(tx.Model(&User{}), u.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.ErrDuplicateName
		}
		return tx.Create(u).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperr.ErrDuplicateName), errors.Is(err, gorm.ErrDuplicatedKey):
		return oops.Code("USER_USERNAME_TAKEN").With("username", u.Username).Wrap(apperr.ErrDuplicateName)
	}
	return oops.Code("USER_CREATE_FAILED").With("username", u.Username).Wrap(err)
}

func (s *GormStore) GetByID(ctx context.Context, id uint) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, "id", id)
	}
	return &u, nil
}

func (s *GormStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := s.byUsername(s.db.WithContext(ctx), username).First(&u).Error; err != nil {
		return nil, notFound(err, "username", username)
	}
	return &u, nil
}

func (s *GormStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := s.byUsername(s.db.WithContext(ctx).Model(&User{}), username).Count(&count).Error; err != nil {
		return false, oops.Code("USER_LOOKUP_FAILED").With("username", username).Wrap(err)
	}
	return count > 0, nil
}

func (s *GormStore) UpdatePasswordHash(ctx context.Context, id uint, digest string) error {
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("password_hash", digest)
	if res.Error != nil {
		return oops.Code("USER_UPDATE_FAILED").With("id", id).Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(apperr.ErrNotFound)
	}
	return nil
}

func (s *GormStore) UpdateRole(ctx context.Context, id uint, role Role) error {
	if !role.Valid() {
		return oops.Code("USER_INVALID_ROLE").With("role", role).Errorf("unknown role %q", role)
	}
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return oops.Code("USER_UPDATE_FAILED").With("id", id).Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(apperr.ErrNotFound)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&User{}, id)
	if errors.Is(res.Error, gorm.ErrForeignKeyViolated) {
		verr := &apperr.ValidationError{}
		verr.Add("id", "user still owns assets")
		return oops.Code("USER_HAS_ASSETS").With("id", id).Wrap(verr)
	}
	if res.Error != nil {
		return oops.Code("USER_DELETE_FAILED").With("id", id).Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(apperr.ErrNotFound)
	}
	return nil
}

func (s *GormStore) List(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, oops.Code("USER_LIST_FAILED").Wrap(err)
	}
	return users, nil
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&count).Error; err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").Wrap(err)
	}
	return count, nil
}

func notFound(err error, key string, value any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return oops.Code("USER_NOT_FOUND").With(key, value).Wrap(apperr.ErrNotFound)
	}
	return oops.Code("USER_LOOKUP_FAILED").With(key, value).Wrap(err)
}
