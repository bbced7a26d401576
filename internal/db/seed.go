package db

import (
	"context"

	"github.com/samber/oops"
	"gorm.io/gorm"

	"asset-tracker/internal/asset"
	"asset-tracker/internal/user"
)

type SeedOptions struct {
	AdminPassword string
	UserPassword  string
}

// SeedResult reports what Seed wrote. Skipped is set when users already
// existed and nothing was written.
type SeedResult struct {
	Users   int
	Assets  int
	Skipped bool
}

type sampleAsset struct {
	name, description, owner string
}

var sampleAssets = []sampleAsset{
	{"Laptop", "Dell XPS 13", "admin"},
	{"Monitor", "ASUS 27-inch", "admin"},
	{"Keyboard", "Mechanical Keyboard", "user"},
	{"Mouse", "Logitech Wireless", "user"},
}

// Seed creates the default admin and user accounts plus four sample assets.
// It only runs against an empty users table.
func Seed(ctx context.Context, db *gorm.DB, hasher user.Hasher, opts SeedOptions) (SeedResult, error) {
	if opts.AdminPassword == "" {
		opts.AdminPassword = "adminpass"
	}
	if opts.UserPassword == "" {
		opts.UserPassword = "userpass"
	}

	var result SeedResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&user.User{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			result.Skipped = true
			return nil
		}

		owners := make(map[string]*user.User, 2)
		for _, acct := range []struct {
			username, password string
			role               user.Role
		}{
			{"admin", opts.AdminPassword, user.RoleAdmin},
			{"user", opts.UserPassword, user.RoleUser},
		} {
			digest, err := hasher.Hash(acct.password)
			if err != nil {
				return err
			}
			u := &user.User{Username: acct.username, PasswordHash: digest, Role: acct.role}
			if err := tx.Create(u).Error; err != nil {
				return err
			}
			owners[u.Username] = u
			result.Users++
		}

		repo := asset.NewGormRepository(tx)
		for _, s := range sampleAssets {
			if _, err := repo.Create(ctx, s.name, s.description, owners[s.owner]); err != nil {
				return err
			}
			result.Assets++
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, oops.Code("DB_SEED_FAILED").Wrap(err)
	}
	return result, nil
}

// CreateAdmin provisions an admin account. This is the only path that
// assigns the admin role.
func CreateAdmin(ctx context.Context, store user.Store, hasher user.Hasher, policy user.PasswordPolicy, username, password string) (*user.User, error) {
	if err := user.ValidateRegistration(policy, username, password, password); err != nil {
		return nil, err
	}
	digest, err := hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("DB_CREATE_ADMIN_FAILED").Wrap(err)
	}
	u := &user.User{Username: username, PasswordHash: digest, Role: user.RoleAdmin}
	if err := store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
