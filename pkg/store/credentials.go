package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/marmos91/miniserver/pkg/models"
)

// ============================================
// CREDENTIAL OPERATIONS
// ============================================

func (s *GORMStore) CreateCredentials(ctx context.Context, creds *models.UserCredentials) (string, error) {
	ctx, span := s.span(ctx, "create_credentials")
	defer span.End()

	if _, err := s.GetUserByID(ctx, creds.ModelID); err != nil {
		return "", err
	}
	if err := create(s.db, ctx, creds, models.ErrDuplicateCredentials); err != nil {
		return "", err
	}
	return creds.ID, nil
}

func (s *GORMStore) GetCredentials(ctx context.Context, id string) (*models.UserCredentials, error) {
	return getByField[models.UserCredentials](s.db, ctx, "id", id, models.ErrCredentialsNotFound)
}

func (s *GORMStore) ListCredentialsForUser(ctx context.Context, userID string) ([]*models.UserCredentials, error) {
	return listWhere[models.UserCredentials](s.db, ctx, "created", "model_id = ?", userID)
}

func (s *GORMStore) DeleteCredentials(ctx context.Context, id string) error {
	ctx, span := s.span(ctx, "delete_credentials")
	defer span.End()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Soft delete keeps the row, so the cascade never fires.
		if err := tx.Where("parent = ?", id).Delete(&models.UserToken{}).Error; err != nil {
			return err
		}
		return deleteByField[models.UserCredentials](tx, ctx, "id", id, models.ErrCredentialsNotFound)
	})
}
