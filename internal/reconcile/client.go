package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/tasksync/tasksync-api/internal/realtime"
)

// ErrRetryBudgetExhausted is returned by Run when the stream endpoint stays
// unreachable for a full attempt cycle. Early dial failures are expected
// while the server warms up; running out of the budget is a hard failure the
// caller must surface rather than mask behind further retries.
var ErrRetryBudgetExhausted = errors.New("connection attempt budget exhausted")

// defaultMaxAttempts bounds one connection attempt cycle: the initial dial
// plus this many retries.
const defaultMaxAttempts = 10

// Loader fetches the full visible task set, typically from the REST API.
// It is invoked after every successful (re)connection, before stream events
// are applied, so the cache always converges regardless of what was missed
// while disconnected.
type Loader interface {
	Load(ctx context.Context) ([]*realtime.TaskView, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) ([]*realtime.TaskView, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context) ([]*realtime.TaskView, error) {
	return f(ctx)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDialer overrides the websocket dialer.
func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) { c.dialer = dialer }
}

// WithBackOff overrides the reconnect backoff factory. Each connection
// attempt cycle gets a fresh policy from the factory.
func WithBackOff(factory func() backoff.BackOff) ClientOption {
	return func(c *Client) { c.newBackOff = factory }
}

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = log }
}

// WithMaxAttempts overrides the number of consecutive failed dials tolerated
// per connection attempt cycle before Run fails with ErrRetryBudgetExhausted.
func WithMaxAttempts(n uint64) ClientOption {
	return func(c *Client) { c.maxAttempts = n }
}

// Client maintains a live connection to the push stream and keeps a TaskCache
// converged with the server. It reconnects with exponential backoff under a
// bounded attempt budget and performs a full reload through its Loader after
// every (re)connection.
type Client struct {
	url         string
	credential  string
	cache       *TaskCache
	loader      Loader
	dialer      *websocket.Dialer
	newBackOff  func() backoff.BackOff
	maxAttempts uint64
	logger      *slog.Logger
}

// NewClient creates a stream client. The credential is presented as a bearer
// token during the websocket handshake.
func NewClient(url, credential string, cache *TaskCache, loader Loader, opts ...ClientOption) *Client {
	c := &Client{
		url:         url,
		credential:  credential,
		cache:       cache,
		loader:      loader,
		dialer:      websocket.DefaultDialer,
		maxAttempts: defaultMaxAttempts,
		logger:      slog.Default(),
		newBackOff: func() backoff.BackOff {
			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = 500 * time.Millisecond
			policy.MaxInterval = 30 * time.Second
			policy.MaxElapsedTime = 0 // The attempt budget, not elapsed time, bounds a cycle
			return policy
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "stream_client"))
	return c
}

// Cache returns the client's task cache.
func (c *Client) Cache() *TaskCache { return c.cache }

// Run connects, reloads, and applies stream events until the context is
// cancelled or the attempt budget of a connection cycle is exhausted, in
// which case it returns ErrRetryBudgetExhausted. Connection loss triggers
// reconnection; the backoff and the budget reset after each session.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.connect(ctx)
		if err != nil {
			return err
		}

		if err := c.session(ctx, conn); err != nil && ctx.Err() == nil {
			c.logger.Warn("stream session ended, reconnecting",
				slog.String("error", err.Error()))
		}
		_ = conn.Close()
	}
}

// connect dials the stream endpoint, retrying with backoff until it succeeds,
// the context is cancelled, or the attempt budget runs out.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.credential)

	var conn *websocket.Conn
	operation := func() error {
		var err error
		conn, _, err = c.dialer.DialContext(ctx, c.url, header) //nolint:bodyclose
		if err != nil {
			c.logger.Debug("dial failed", slog.String("error", err.Error()))
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxAttempts), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to connect to stream: %w", err)
		}
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryBudgetExhausted, c.maxAttempts+1, err)
	}
	return conn, nil
}

// session runs one connected session: reload first, then apply events until
// the connection drops or the context is cancelled.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) error {
	// The reload happens after connecting, not before, so no mutation
	// committed between reload and subscription can be missed.
	views, err := c.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload task set: %w", err)
	}
	c.cache.Replace(views)
	c.logger.Info("task set reloaded", slog.Int("tasks", len(views)))

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		event, err := realtime.DecodeEvent(payload)
		if err != nil {
			c.logger.Warn("discarding malformed stream frame",
				slog.String("error", err.Error()))
			continue
		}
		c.cache.Apply(event)
	}
}
