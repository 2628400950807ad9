package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasksync/tasksync-api/internal/api/shared"
	"github.com/tasksync/tasksync-api/internal/config"
	"github.com/tasksync/tasksync-api/internal/domain"
	"github.com/tasksync/tasksync-api/internal/service/auth"
	"github.com/tasksync/tasksync-api/internal/store"
)

const gateTestSecret = "test-secret-key-that-is-long-enough!"

// fakeUserFinder resolves users from an in-memory map.
type fakeUserFinder struct {
	byID    map[uuid.UUID]*domain.User
	byEmail map[string]*domain.User
}

func newFakeUserFinder() *fakeUserFinder {
	return &fakeUserFinder{
		byID:    make(map[uuid.UUID]*domain.User),
		byEmail: make(map[string]*domain.User),
	}
}

func (f *fakeUserFinder) add(u *domain.User) {
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u
}

func (f *fakeUserFinder) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeUserFinder) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

type gateHarness struct {
	server   *httptest.Server
	registry *Registry
	verifier auth.JWTService
	users    *fakeUserFinder
}

func newGateHarness(t *testing.T) *gateHarness {
	t.Helper()

	verifier, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:                   gateTestSecret,
		TokenLifetimeMinutes:        60,
		RefreshTokenLifetimeMinutes: 1440,
	})
	require.NoError(t, err)

	users := newFakeUserFinder()
	registry := NewRegistry(nil, nil)
	t.Cleanup(registry.Close)

	gate := NewGate(verifier, users, registry, config.RealtimeConfig{
		SendBufferSize:      16,
		WriteTimeoutSeconds: 5,
		PingIntervalSeconds: 30,
	}, nil)

	server := httptest.NewServer(gate)
	t.Cleanup(server.Close)

	return &gateHarness{server: server, registry: registry, verifier: verifier, users: users}
}

func (h *gateHarness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http")
}

// dial attempts the handshake and returns the rejection body when it fails.
func (h *gateHarness) dial(t *testing.T, header http.Header, query string) (*websocket.Conn, int, string) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.wsURL()+query, header)
	if err == nil {
		return conn, resp.StatusCode, ""
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)

	var errResp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	return nil, resp.StatusCode, errResp.Error
}

func bearerHeader(token string) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return header
}

func TestGateAdmitsValidCredential(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	user, err := domain.NewUser("gate@example.com", "Gate User", "long-enough-password")
	require.NoError(t, err)
	h.users.add(user)

	token, err := h.verifier.GenerateToken(context.Background(), user.ID, user.Email)
	require.NoError(t, err)

	conn, _, rejection := h.dial(t, bearerHeader(token), "")
	require.NotNil(t, conn, "handshake rejected: %s", rejection)
	defer conn.Close()

	// The join confirmation is the first frame.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	event, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, EventConnected, event.Event)
	assert.Equal(t, user.ID.String(), event.RoomKey)
	assert.NotEmpty(t, event.ConnectionID)

	assert.Equal(t, 1, h.registry.ConnectionCount(user.ID))
}

func TestGateAcceptsQueryParameterCredential(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	user, err := domain.NewUser("query@example.com", "Query User", "long-enough-password")
	require.NoError(t, err)
	h.users.add(user)

	token, err := h.verifier.GenerateToken(context.Background(), user.ID, user.Email)
	require.NoError(t, err)

	conn, _, rejection := h.dial(t, nil, "?token="+token)
	require.NotNil(t, conn, "handshake rejected: %s", rejection)
	conn.Close()
}

func TestGateRejectsMissingCredential(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	conn, status, message := h.dial(t, nil, "")
	assert.Nil(t, conn)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "credential required", message)
}

func TestGateRejectsGarbageCredential(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	conn, status, message := h.dial(t, bearerHeader("not-a-jwt"), "")
	assert.Nil(t, conn)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid credential", message)
}

func TestGateRejectsExpiredCredential(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	user, err := domain.NewUser("stale@example.com", "Stale User", "long-enough-password")
	require.NoError(t, err)
	h.users.add(user)

	// Sign a token that expired well beyond the validator's clock skew.
	issued := time.Now().Add(-2 * time.Hour)
	claims := jwt.MapClaims{
		"uid":   user.ID.String(),
		"email": user.Email,
		"type":  "access",
		"sub":   user.ID.String(),
		"iat":   issued.Unix(),
		"exp":   issued.Add(30 * time.Minute).Unix(),
		"jti":   uuid.New().String(),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(gateTestSecret))
	require.NoError(t, err)

	conn, status, message := h.dial(t, bearerHeader(expired), "")
	assert.Nil(t, conn)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "credential expired", message)
}

func TestGateRejectsUnknownUser(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	// Valid credential for an identity with no user record.
	token, err := h.verifier.GenerateToken(context.Background(), uuid.New(), "")
	require.NoError(t, err)

	conn, status, message := h.dial(t, bearerHeader(token), "")
	assert.Nil(t, conn)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "user not found", message)
}

func TestGateFallsBackToEmailLookup(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	user, err := domain.NewUser("moved@example.com", "Moved User", "long-enough-password")
	require.NoError(t, err)
	// Reachable by email only; the credential carries a stale identifier.
	h.users.byEmail[user.Email] = user

	token, err := h.verifier.GenerateToken(context.Background(), uuid.New(), user.Email)
	require.NoError(t, err)

	conn, _, rejection := h.dial(t, bearerHeader(token), "")
	require.NotNil(t, conn, "handshake rejected: %s", rejection)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	event, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), event.RoomKey)
}

func TestGateDeliversPushedEvents(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	user, err := domain.NewUser("push@example.com", "Push User", "long-enough-password")
	require.NoError(t, err)
	h.users.add(user)

	token, err := h.verifier.GenerateToken(context.Background(), user.ID, user.Email)
	require.NoError(t, err)

	conn, _, rejection := h.dial(t, bearerHeader(token), "")
	require.NotNil(t, conn, "handshake rejected: %s", rejection)
	defer conn.Close()

	// Drain the join confirmation.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	view := emitterView(user.ID)
	payload, err := NewTaskEvent(EventTaskCreated, view, time.Now().UTC()).Encode()
	require.NoError(t, err)
	require.NoError(t, h.registry.Push(context.Background(), user.ID, payload))

	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	event, err := DecodeEvent(frame)
	require.NoError(t, err)
	assert.Equal(t, EventTaskCreated, event.Event)
	require.NotNil(t, event.Task)
	assert.Equal(t, view.ID, event.Task.ID)
}

func TestGateCleansUpOnDisconnect(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	user, err := domain.NewUser("leave@example.com", "Leave User", "long-enough-password")
	require.NoError(t, err)
	h.users.add(user)

	token, err := h.verifier.GenerateToken(context.Background(), user.ID, user.Email)
	require.NoError(t, err)

	conn, _, rejection := h.dial(t, bearerHeader(token), "")
	require.NotNil(t, conn, "handshake rejected: %s", rejection)
	require.Eventually(t, func() bool {
		return h.registry.ConnectionCount(user.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return h.registry.ConnectionCount(user.ID) == 0 && h.registry.RoomCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
