package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/marmos91/miniserver/internal/telemetry"
	"github.com/marmos91/miniserver/pkg/models"
)

// ============================================
// USER OPERATIONS
// ============================================

func (s *GORMStore) CreateUser(ctx context.Context, user *models.User) (string, error) {
	ctx, span := s.span(ctx, "create_user")
	defer span.End()

	if err := s.validate.StructCtx(ctx, user); err != nil {
		return "", fmt.Errorf("invalid user: %w", err)
	}
	if err := create(s.db, ctx, user, models.ErrDuplicateUser); err != nil {
		telemetry.RecordError(ctx, err)
		return "", err
	}
	return user.ID, nil
}

func (s *GORMStore) GetUser(ctx context.Context, name string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "name", name, models.ErrUserNotFound)
}

func (s *GORMStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "id", id, models.ErrUserNotFound)
}

func (s *GORMStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	return listWhere[models.User](s.db, ctx, "name", nil)
}

func (s *GORMStore) DeleteUser(ctx context.Context, name string) error {
	ctx, span := s.span(ctx, "delete_user")
	defer span.End()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("name = ?", name).First(&user).Error; err != nil {
			return convertNotFoundError(err, models.ErrUserNotFound)
		}

		// Soft-deleted credentials still hold the foreign key.
		var refs int64
		if err := tx.Unscoped().Model(&models.UserCredentials{}).Where("model_id = ?", user.ID).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return models.ErrUserInUse
		}

		return tx.Delete(&user).Error
	})
}

// PurgeUser permanently removes a user with all of its credentials,
// soft-deleted ones included, and their tokens.
func (s *GORMStore) PurgeUser(ctx context.Context, name string) error {
	ctx, span := s.span(ctx, "purge_user")
	defer span.End()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("name = ?", name).First(&user).Error; err != nil {
			return convertNotFoundError(err, models.ErrUserNotFound)
		}

		credIDs := tx.Unscoped().Model(&models.UserCredentials{}).Select("id").Where("model_id = ?", user.ID)
		if err := tx.Where("parent IN (?)", credIDs).Delete(&models.UserToken{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("model_id = ?", user.ID).Delete(&models.UserCredentials{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}
