package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/miniserver/internal/logger"
	"github.com/marmos91/miniserver/pkg/auth"
	"github.com/marmos91/miniserver/pkg/models"
	"github.com/marmos91/miniserver/pkg/store"
)

// ============================================================================
// Test routes
// ============================================================================

type testHandler struct {
	store store.Store
}

// Hello handles GET /test/hello/{name}.
func (h *testHandler) Hello(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, fmt.Sprintf("Hello, %s!", chi.URLParam(r, "name")))
}

// User handles GET /test/user. It seeds the fixed test user and its
// credentials when missing and renders both descriptions.
func (h *testHandler) User(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeText(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	user, creds, err := seedTestUser(r.Context(), h.store)
	if err != nil {
		logger.WarnCtx(r.Context(), "Seeding test user failed", logger.Err(err))
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeText(w, http.StatusOK, fmt.Sprintf("%s \n%s", user.Description(), creds.Description()))
}

func seedTestUser(ctx context.Context, st store.Store) (*models.User, *models.UserCredentials, error) {
	user, err := st.GetUserByID(ctx, models.TestUserID)
	if errors.Is(err, models.ErrUserNotFound) {
		tag := models.TestUserName
		_, err = st.CreateUser(ctx, &models.User{ID: models.TestUserID, Name: models.TestUserName, Tag: &tag})
		if err != nil && !errors.Is(err, models.ErrDuplicateUser) {
			return nil, nil, err
		}
		user, err = st.GetUserByID(ctx, models.TestUserID)
	}
	if err != nil {
		return nil, nil, err
	}

	creds, err := st.GetCredentials(ctx, models.TestCredentialsID)
	if errors.Is(err, models.ErrCredentialsNotFound) {
		_, err = st.CreateCredentials(ctx, &models.UserCredentials{ID: models.TestCredentialsID, ModelID: models.TestUserID})
		if err != nil && !errors.Is(err, models.ErrDuplicateCredentials) {
			return nil, nil, err
		}
		creds, err = st.GetCredentials(ctx, models.TestCredentialsID)
	}
	if err != nil {
		return nil, nil, err
	}
	return user, creds, nil
}

// ============================================================================
// API
// ============================================================================

// UserResponse is the public view of a user.
type UserResponse struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Tag  *string `json:"tag,omitempty"`
}

// Me handles GET /api/v1/me.
func Me(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse("not authenticated"))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(UserResponse{ID: user.ID, Name: user.Name, Tag: user.Tag}))
}
