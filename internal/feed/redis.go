package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/NetoRibeiro/ovpfh-v2/internal/logging"
)

type changeMessage struct {
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// RedisNotifier tells other instances that the catalog changed so they reload
// without waiting for their next tick.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

func NewRedisNotifier(addr, channel string, logger *slog.Logger) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisNotifier{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}, nil
}

// Notify publishes a change event. Nil receivers are a no-op so callers can keep an
// optional notifier without checks.
func (n *RedisNotifier) Notify(ctx context.Context) error {
	if n == nil {
		return nil
	}
	data, err := json.Marshal(changeMessage{Origin: n.origin, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Listen calls onChange for every change event published by another instance until
// ctx is done.
func (n *RedisNotifier) Listen(ctx context.Context, onChange func()) {
	if n == nil {
		return
	}
	sub := n.client.Subscribe(ctx, n.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if n.fromSelf(msg.Payload) {
				continue
			}
			onChange()
		}
	}
}

func (n *RedisNotifier) fromSelf(payload string) bool {
	var m changeMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		if n.logger != nil {
			n.logger.Warn("ignoring malformed change message", logging.FieldError, err)
		}
		return true
	}
	return m.Origin == n.origin
}

func (n *RedisNotifier) Close() error {
	if n == nil {
		return nil
	}
	return n.client.Close()
}
