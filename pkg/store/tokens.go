package store

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/miniserver/pkg/models"
)

// ============================================
// TOKEN OPERATIONS
// ============================================

func (s *GORMStore) CreateToken(ctx context.Context, token *models.UserToken) (string, error) {
	ctx, span := s.span(ctx, "create_token")
	defer span.End()

	if err := s.validate.StructCtx(ctx, token); err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if token.Key == "" {
		return "", fmt.Errorf("invalid token: key is required")
	}
	if _, err := s.GetCredentials(ctx, token.ParentID); err != nil {
		return "", err
	}
	if err := create(s.db, ctx, token, models.ErrDuplicateToken); err != nil {
		return "", err
	}
	return token.ID, nil
}

func (s *GORMStore) GetTokenByKey(ctx context.Context, key string) (*models.UserToken, error) {
	return getByField[models.UserToken](s.db, ctx, `"key"`, key, models.ErrTokenNotFound)
}

func (s *GORMStore) ListTokens(ctx context.Context, credentialsID string) ([]*models.UserToken, error) {
	return listWhere[models.UserToken](s.db, ctx, "created", "parent = ?", credentialsID)
}

func (s *GORMStore) DeleteToken(ctx context.Context, id string) error {
	return deleteByField[models.UserToken](s.db, ctx, "id", id, models.ErrTokenNotFound)
}

func (s *GORMStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := s.span(ctx, "delete_expired_tokens")
	defer span.End()

	result := s.db.WithContext(ctx).
		Where("expired IS NULL OR expired < ?", now).
		Delete(&models.UserToken{})
	return result.RowsAffected, result.Error
}
