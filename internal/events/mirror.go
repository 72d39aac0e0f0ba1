package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/carpool-client/internal/observability"
	"github.com/example/carpool-client/internal/views"
)

// UpdatesChannel is the redis pub/sub channel every mirrored update is
// re-published on.
const UpdatesChannel = "carpool:updates"

func mirrorKey(view string) string { return "carpool:view:" + view }

// MirrorStore is the subset of redis operations the mirror needs.
type MirrorStore interface {
	HSet(ctx context.Context, key string, values map[string]any) error
	Publish(ctx context.Context, channel string, msg []byte) error
}

type RedisMirrorStore struct{ c *redis.Client }

func NewRedisMirrorStore(addr, password string) *RedisMirrorStore {
	return &RedisMirrorStore{c: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

func (r *RedisMirrorStore) HSet(ctx context.Context, key string, values map[string]any) error {
	return r.c.HSet(ctx, key, values).Err()
}

func (r *RedisMirrorStore) Publish(ctx context.Context, channel string, msg []byte) error {
	return r.c.Publish(ctx, channel, msg).Err()
}

func (r *RedisMirrorStore) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

func (r *RedisMirrorStore) Close() error { return r.c.Close() }

// messageReader is the part of *kafka.Reader the mirror uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Mirror consumes the view-update topic written by KafkaPublisher and keeps
// the latest state and notice of every view in redis, so processes that
// never talk to the backend (desktop notifiers, status bars) can read them.
type Mirror struct {
	reader   messageReader
	store    MirrorStore
	logger   *slog.Logger
	attempts int
	delay    time.Duration
}

func NewKafkaMirror(brokers []string, topic, group string, store MirrorStore, logger *slog.Logger) *Mirror {
	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 1, MaxBytes: 10e6})
	return newMirrorWith(r, store, logger)
}

func newMirrorWith(r messageReader, store MirrorStore, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{reader: r, store: store, logger: logger, attempts: 3, delay: 200 * time.Millisecond}
}

// wireUpdate is views.Update with the payload left encoded.
type wireUpdate struct {
	View    string           `json:"view"`
	Kind    views.UpdateKind `json:"kind"`
	Payload json.RawMessage  `json:"payload"`
	At      time.Time        `json:"at"`
}

var errInvalidUpdate = errors.New("invalid update")

// Run reads until ctx is cancelled. Read errors back off exponentially up
// to 30s; a bad message is counted and skipped.
func (m *Mirror) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		msg, err := m.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Warn("mirror_read_failed", "error", err, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
		observability.MirrorMessagesTotal.WithLabelValues("consumed").Inc()

		if err := m.apply(ctx, msg.Value); err != nil {
			if errors.Is(err, errInvalidUpdate) {
				observability.MirrorMessagesTotal.WithLabelValues("invalid").Inc()
				m.logger.Warn("mirror_invalid_message", "offset", msg.Offset, "error", err)
				continue
			}
			observability.MirrorMessagesTotal.WithLabelValues("failed").Inc()
			m.logger.Error("mirror_store_failed", "offset", msg.Offset, "error", err)
			continue
		}
		observability.MirrorMessagesTotal.WithLabelValues("stored").Inc()
	}
}

func (m *Mirror) apply(ctx context.Context, raw []byte) error {
	var u wireUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return fmt.Errorf("%w: %v", errInvalidUpdate, err)
	}
	if u.View == "" {
		return fmt.Errorf("%w: missing view", errInvalidUpdate)
	}

	values := map[string]any{"at": u.At.UTC().Format(time.RFC3339Nano)}
	switch u.Kind {
	case views.UpdateNotice:
		var notice string
		if err := json.Unmarshal(u.Payload, &notice); err != nil {
			return fmt.Errorf("%w: notice payload: %v", errInvalidUpdate, err)
		}
		values["notice"] = notice
	default:
		values["state"] = string(u.Payload)
	}
	return storeWithRetry(ctx, m.store, mirrorKey(u.View), values, raw, m.attempts, m.delay)
}

// storeWithRetry writes the hash then re-publishes the raw update, retrying
// the failing step with a doubling delay.
func storeWithRetry(ctx context.Context, s MirrorStore, key string, values map[string]any, raw []byte, attempts int, delay time.Duration) error {
	steps := []func() error{
		func() error { return s.HSet(ctx, key, values) },
		func() error { return s.Publish(ctx, UpdatesChannel, raw) },
	}
	for _, step := range steps {
		var err error
		for i := 0; i < attempts; i++ {
			if err = step(); err == nil {
				break
			}
			if i == attempts-1 {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil
}

func (m *Mirror) Close() error { return m.reader.Close() }
