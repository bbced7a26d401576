package asset

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"gorm.io/gorm"

	"asset-tracker/internal/apperr"
	"asset-tracker/internal/user"
)

type Repository interface {
	Create(ctx context.Context, name, description string, owner *user.User) (*Asset, error)
	ListAll(ctx context.Context) ([]Asset, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]Asset, error)
	Get(ctx context.Context, id uint) (*Asset, error)
	Update(ctx context.Context, id uint, name, description string) (*Asset, error)
	Delete(ctx context.Context, id uint) error
	NameTaken(ctx context.Context, name string, excludeID uint) (bool, error)
}

type GormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db, now: time.Now}
}

// Create stores a new asset owned by owner. The creator name is a snapshot
// of owner.Username and is never refreshed.
func (r *GormRepository) Create(ctx context.Context, name, description string, owner *user.User) (*Asset, error) {
	if owner == nil {
		return nil, oops.Code("ASSET_OWNER_REQUIRED").Wrap(apperr.ErrUnauthenticated)
	}
	if err := ValidateFields(name, description); err != nil {
		return nil, err
	}
	a := &Asset{
		Name:        name,
		Description: description,
		OwnerID:     owner.ID,
		DateCreated: r.now().UTC(),
		CreatedBy:   owner.Username,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownerExists(tx, owner.ID); err != nil {
			return err
		}
		if err := CheckNameAvailable(ctx, name, "", nameLookup(tx, 0)); err != nil {
			return err
		}
		return tx.Create(a).Error
	})
	if err != nil {
		return nil, wrapWriteError("ASSET_CREATE_FAILED", name, err)
	}
	return a, nil
}

func (r *GormRepository) ListAll(ctx context.Context) ([]Asset, error) {
	var assets []Asset
	if err := r.db.WithContext(ctx).Order("id").Find(&assets).Error; err != nil {
		return nil, oops.Code("ASSET_LIST_FAILED").Wrap(err)
	}
	return assets, nil
}

func (r *GormRepository) ListByOwner(ctx context.Context, ownerID uint) ([]Asset, error) {
	var assets []Asset
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id").Find(&assets).Error; err != nil {
		return nil, oops.Code("ASSET_LIST_FAILED").With("owner_id", ownerID).Wrap(err)
	}
	return assets, nil
}

func (r *GormRepository) Get(ctx context.Context, id uint) (*Asset, error) {
	return get(r.db.WithContext(ctx), id)
}

// Update changes name and description only; owner, creation date and
// creator name stay as they were.
func (r *GormRepository) Update(ctx context.Context, id uint, name, description string) (*Asset, error) {
	if err := ValidateFields(name, description); err != nil {
		return nil, err
	}
	var updated *Asset
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := get(tx, id)
		if err != nil {
			return err
		}
		if err := CheckNameAvailable(ctx, name, current.Name, nameLookup(tx, id)); err != nil {
			return err
		}
		if err := tx.Model(current).Updates(map[string]any{
			"name":        name,
			"description": description,
		}).Error; err != nil {
			return err
		}
		current.Name = name
		current.Description = description
		updated = current
		return nil
	})
	if err != nil {
		return nil, wrapWriteError("ASSET_UPDATE_FAILED", name, err)
	}
	return updated, nil
}

func (r *GormRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&Asset{}, id)
	if res.Error != nil {
		return oops.Code("ASSET_DELETE_FAILED").With("id", id).Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return oops.Code("ASSET_NOT_FOUND").With("id", id).Wrap(apperr.ErrNotFound)
	}
	return nil
}

func (r *GormRepository) NameTaken(ctx context.Context, name string, excludeID uint) (bool, error) {
	return nameLookup(r.db.WithContext(ctx), excludeID)(ctx, name)
}

func get(tx *gorm.DB, id uint) (*Asset, error) {
	var a Asset
	if err := tx.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, oops.Code("ASSET_NOT_FOUND").With("id", id).Wrap(apperr.ErrNotFound)
		}
		return nil, oops.Code("ASSET_GET_FAILED").With("id", id).Wrap(err)
	}
	return &a, nil
}

func nameLookup(tx *gorm.DB, excludeID uint) NameLookup {
	return func(_ context.Context, name string) (bool, error) {
		q := tx.Model(&Asset{}).Where("name = ?", name)
		if excludeID != 0 {
			q = q.Where("id <> ?", excludeID)
		}
		var count int64
		if err := q.Count(&count).Error; err != nil {
			return false, err
		}
		return count > 0, nil
	}
}

func ownerExists(tx *gorm.DB, ownerID uint) error {
	var count int64
	if err := tx.Model(&user.User{}).Where("id = ?", ownerID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return &apperr.ValidationError{Fields: map[string]string{"owner": "does not exist"}}
	}
	return nil
}

// wrapWriteError keeps recoverable kinds visible to errors.Is and maps the
// storage unique index onto the duplicate-name kind.
func wrapWriteError(code, name string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, apperr.ErrDuplicateName):
		return oops.Code("ASSET_DUPLICATE_NAME").With("name", name).Wrap(apperr.ErrDuplicateName)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &apperr.ValidationError{Fields: map[string]string{"owner": "does not exist"}}
	case apperr.IsRecoverable(err):
		return err
	}
	return oops.Code(code).With("name", name).Wrap(err)
}
