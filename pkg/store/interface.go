package store

import (
	"context"
	"time"

	"github.com/marmos91/miniserver/pkg/models"
)

// Store is the persistence interface consumed by the HTTP layer, the token
// service and the CLI.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// ============================================
	// USER OPERATIONS
	// ============================================

	// CreateUser inserts a user and returns its id.
	// Returns models.ErrDuplicateUser if the name is taken.
	CreateUser(ctx context.Context, user *models.User) (string, error)

	// GetUser returns a user by name.
	GetUser(ctx context.Context, name string) (*models.User, error)

	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// ListUsers returns all users ordered by name.
	ListUsers(ctx context.Context) ([]*models.User, error)

	// DeleteUser removes a user by name.
	// Returns models.ErrUserInUse while credentials still reference it.
	DeleteUser(ctx context.Context, name string) error

	// PurgeUser removes a user with all of its credentials and tokens.
	PurgeUser(ctx context.Context, name string) error

	// ============================================
	// CREDENTIAL OPERATIONS
	// ============================================

	CreateCredentials(ctx context.Context, creds *models.UserCredentials) (string, error)
	GetCredentials(ctx context.Context, id string) (*models.UserCredentials, error)
	ListCredentialsForUser(ctx context.Context, userID string) ([]*models.UserCredentials, error)

	// DeleteCredentials soft-deletes credentials and removes their tokens.
	DeleteCredentials(ctx context.Context, id string) error

	// ============================================
	// TOKEN OPERATIONS
	// ============================================

	// CreateToken stores a token. Returns models.ErrDuplicateToken if the
	// key already exists.
	CreateToken(ctx context.Context, token *models.UserToken) (string, error)
	GetTokenByKey(ctx context.Context, key string) (*models.UserToken, error)
	ListTokens(ctx context.Context, credentialsID string) ([]*models.UserToken, error)
	DeleteToken(ctx context.Context, id string) error

	// DeleteExpiredTokens removes tokens that are no longer valid at now
	// and returns how many were removed.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)

	// ============================================
	// HEALTH & LIFECYCLE
	// ============================================

	Ping(ctx context.Context) error
	Close() error
}
