// Package notify carries permission change events between rolesync processes.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/platinummonkey/rolesync/pkg/async"
	"github.com/platinummonkey/rolesync/pkg/observability"
	"github.com/platinummonkey/rolesync/pkg/rbac"
)

// DefaultChannel is the Redis pub/sub channel used when none is configured.
const DefaultChannel = "rolesync:permissions"

type message struct {
	Instance     string            `json:"instance"`
	Kind         rbac.EventKind    `json:"kind"`
	Notification rbac.Notification `json:"notification"`
	At           time.Time         `json:"at"`
}

// RedisRelay publishes broadcasts to a Redis channel and turns messages from other
// instances into local notifier events.
type RedisRelay struct {
	client   *redis.Client
	channel  string
	instance string
	logger   *observability.Logger
}

// NewRedisRelay connects to redisURL and checks the connection.
func NewRedisRelay(ctx context.Context, redisURL, channel string, logger *observability.Logger) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisRelayFromClient(client, channel, logger), nil
}

// NewRedisRelayFromClient wraps an existing client.
func NewRedisRelayFromClient(client *redis.Client, channel string, logger *observability.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
		logger:   observability.OrNop(logger).Component("redis_relay"),
	}
}

// Instance identifies this relay in published messages.
func (r *RedisRelay) Instance() string {
	return r.instance
}

// Client returns the underlying Redis client, for health checks.
func (r *RedisRelay) Client() *redis.Client {
	return r.client
}

// Broadcast publishes n as a permissions changed message.
func (r *RedisRelay) Broadcast(ctx context.Context, n rbac.Notification) error {
	payload, err := json.Marshal(message{
		Instance:     r.instance,
		Kind:         rbac.EventPermissionsChanged,
		Notification: n,
		At:           time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Listen subscribes to the channel and publishes every message from another instance on
// notifier, marked Remote, until ctx is done. ready, if not nil, is closed once the
// subscription is active.
func (r *RedisRelay) Listen(ctx context.Context, notifier *rbac.Notifier, ready chan<- struct{}) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe failed: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	r.logger.WithField("channel", r.channel).Info("listening for remote permission changes")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(notifier, msg.Payload)
		}
	}
}

// Start runs Listen in the background until ctx is done.
func (r *RedisRelay) Start(ctx context.Context, notifier *rbac.Notifier) <-chan struct{} {
	ready := make(chan struct{})
	async.SafeGo(ctx, 0, "redis relay", func(ctx context.Context) error {
		return r.Listen(ctx, notifier, ready)
	})
	return ready
}

func (r *RedisRelay) deliver(notifier *rbac.Notifier, payload string) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		r.logger.WithError(err).Warn("ignoring malformed relay message")
		return
	}
	if m.Instance == r.instance {
		return
	}
	kind := m.Kind
	if kind == "" {
		kind = rbac.EventPermissionsChanged
	}
	notifier.Publish(rbac.Event{Kind: kind, Remote: true, At: m.At})
}

// Close closes the Redis client.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
