package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasksync/tasksync-api/internal/api/shared"
	"github.com/tasksync/tasksync-api/internal/domain"
	"github.com/tasksync/tasksync-api/internal/service"
)

func userRouter(handler *UserHandler, userID uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), shared.UserIDContextKey, userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/api/users/me", handler.GetMe)
	r.Put("/api/users/me", handler.UpdateMe)
	r.Delete("/api/users/me", handler.DeleteMe)
	return r
}

func TestUserHandlerGetMe(t *testing.T) {
	t.Parallel()

	user, err := domain.NewUser("me@example.com", "Me", "long-enough-password")
	require.NoError(t, err)
	svc := &mockUserService{
		getFn: func(ctx context.Context, id uuid.UUID) (*domain.User, error) {
			assert.Equal(t, user.ID, id)
			return user, nil
		},
	}
	router := userRouter(NewUserHandler(svc), user.ID)

	w := doJSON(t, router, http.MethodGet, "/api/users/me", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "me@example.com", resp.Email)
	assert.Equal(t, user.ID.String(), resp.ID)
}

func TestUserHandlerUpdateMe(t *testing.T) {
	t.Parallel()

	t.Run("applies partial update", func(t *testing.T) {
		t.Parallel()
		user, err := domain.NewUser("me@example.com", "Me", "long-enough-password")
		require.NoError(t, err)
		svc := &mockUserService{
			updateProfileFn: func(ctx context.Context, id uuid.UUID, input service.UpdateProfileInput) (*domain.User, error) {
				require.NotNil(t, input.Bio)
				user.Bio = *input.Bio
				return user, nil
			},
		}
		router := userRouter(NewUserHandler(svc), user.ID)

		bio := "Shipping"
		w := doJSON(t, router, http.MethodPut, "/api/users/me", UpdateProfileRequest{Bio: &bio})
		require.Equal(t, http.StatusOK, w.Code)

		var resp UserResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Shipping", resp.Bio)
	})

	t.Run("rejects a malformed picture URL", func(t *testing.T) {
		t.Parallel()
		router := userRouter(NewUserHandler(&mockUserService{}), uuid.New())
		bad := "not a url"
		w := doJSON(t, router, http.MethodPut, "/api/users/me", UpdateProfileRequest{PictureURL: &bad})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUserHandlerDeleteMe(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	deleted := false
	svc := &mockUserService{
		deleteFn: func(ctx context.Context, id uuid.UUID) error {
			assert.Equal(t, userID, id)
			deleted = true
			return nil
		},
	}
	router := userRouter(NewUserHandler(svc), userID)

	w := doJSON(t, router, http.MethodDelete, "/api/users/me", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, deleted)
}
