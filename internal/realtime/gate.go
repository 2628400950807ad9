package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tasksync/tasksync-api/internal/api/shared"
	"github.com/tasksync/tasksync-api/internal/config"
	"github.com/tasksync/tasksync-api/internal/domain"
	"github.com/tasksync/tasksync-api/internal/service/auth"
	"github.com/tasksync/tasksync-api/internal/store"
)

// Gate rejection messages, returned verbatim to the client.
const (
	msgCredentialRequired = "credential required"
	msgCredentialExpired  = "credential expired"
	msgInvalidCredential  = "invalid credential"
	msgUserNotFound       = "user not found"
)

// UserFinder resolves verified credentials to user records.
// Satisfied by store.UserStore.
type UserFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Gate authenticates every new realtime connection before admission. It
// extracts a bearer credential from the handshake, verifies it with the
// identity verifier, resolves the user record, and only then upgrades the
// connection and joins it to the user's delivery room. Rejection closes the
// attempt; the gate never retries on the client's behalf.
type Gate struct {
	verifier auth.JWTService
	users    UserFinder
	registry *Registry
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewGate creates a connection gate in front of the given registry.
func NewGate(
	verifier auth.JWTService,
	users UserFinder,
	registry *Registry,
	cfg config.RealtimeConfig,
	logger *slog.Logger,
) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		verifier: verifier,
		users:    users,
		registry: registry,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			// The REST layer owns origin policy; the gate authenticates by
			// bearer credential, not by origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "connection_gate")),
	}
}

// ServeHTTP handles GET /ws: authenticate, admit, join, then pump events
// until the connection closes.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := g.authenticate(w, r)
	if !ok {
		return
	}

	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error response.
		g.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := NewConn(sock, user.ID, g.cfg.SendBufferSize, g.logger)
	room := g.registry.Join(conn)
	if room == nil {
		// Registry is shutting down.
		return
	}
	defer func() {
		g.registry.Leave(conn)
		conn.Close()
	}()

	// Join confirmation, for client-side diagnostics. Queued before the
	// write pump starts so it is always the first frame delivered.
	confirmation := NewConnectedEvent(room.Key(), conn.ID(), time.Now().UTC())
	if payload, err := confirmation.Encode(); err == nil {
		_ = conn.Enqueue(payload)
	}

	writeTimeout := time.Duration(g.cfg.WriteTimeoutSeconds) * time.Second
	pingInterval := time.Duration(g.cfg.PingIntervalSeconds) * time.Second
	go conn.WritePump(writeTimeout, pingInterval)

	g.logger.Info("connection admitted",
		slog.String("user_id", user.ID.String()),
		slog.String("connection_id", conn.ID()))

	g.readLoop(conn, sock, pingInterval)
}

// authenticate runs the gate contract: extract credential, verify, resolve
// user. On failure it writes the rejection and reports !ok.
func (g *Gate) authenticate(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	token := bearerCredential(r)
	if token == "" {
		shared.RespondWithError(w, r, http.StatusUnauthorized, msgCredentialRequired)
		return nil, false
	}

	claims, err := g.verifier.ValidateToken(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			// Client should refresh and retry; the gate does not.
			shared.RespondWithError(w, r, http.StatusUnauthorized, msgCredentialExpired)
		default:
			shared.RespondWithError(w, r, http.StatusUnauthorized, msgInvalidCredential)
		}
		return nil, false
	}

	user, err := g.users.GetByID(r.Context(), claims.UserID)
	if err != nil && errors.Is(err, store.ErrNotFound) && claims.Email != "" {
		// Fall back to the verified email when the stable identifier
		// resolves nothing.
		user, err = g.users.GetByEmail(r.Context(), claims.Email)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			shared.RespondWithError(w, r, http.StatusUnauthorized, msgUserNotFound)
		} else {
			g.logger.Error("user lookup failed during admission",
				slog.String("error", err.Error()))
			shared.RespondWithError(w, r, http.StatusInternalServerError, "admission failed")
		}
		return nil, false
	}

	return user, true
}

// readLoop consumes (and discards) client frames until the connection drops.
// Its real job is liveness: pong responses extend the read deadline, and any
// read error is the signal to clean up room membership.
func (g *Gate) readLoop(conn *Conn, sock *websocket.Conn, pingInterval time.Duration) {
	readWait := 2 * pingInterval
	sock.SetReadLimit(4096)
	_ = sock.SetReadDeadline(time.Now().Add(readWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		if _, _, err := sock.ReadMessage(); err != nil {
			g.logger.Debug("connection closed",
				slog.String("connection_id", conn.ID()),
				slog.String("error", err.Error()))
			return
		}
	}
}

// bearerCredential extracts the token from the Authorization header or, for
// browser clients that cannot set websocket headers, from the token query
// parameter.
func bearerCredential(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
