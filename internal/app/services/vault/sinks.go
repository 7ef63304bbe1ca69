package vault

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/storage"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// LogSink writes every event to the structured log.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.NewDefault("vault-events")
	}
	return &LogSink{log: log}
}

func (s *LogSink) Publish(_ context.Context, event domain.Event) error {
	s.log.WithFields(logrus.Fields{
		"event_id": event.ID,
		"kind":     event.Kind,
		"user":     event.User,
		"handler":  event.Handler,
		"amount":   event.Amount,
		"block":    event.Block,
		"version":  event.Version,
	}).Info("ledger event")
	return nil
}

// RedisPublisher is the subset of the redis client used by RedisSink.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes events as JSON on a redis pub/sub channel.
type RedisSink struct {
	client  RedisPublisher
	channel string
}

// DefaultRedisChannel is used when no channel is configured.
const DefaultRedisChannel = "yield-ledger.events"

func NewRedisSink(client RedisPublisher, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}
	return nil
}

// JournalSink appends events to a store that keeps the event history.
type JournalSink struct {
	journal storage.JournalStore
}

func NewJournalSink(journal storage.JournalStore) *JournalSink {
	return &JournalSink{journal: journal}
}

func (s *JournalSink) Publish(ctx context.Context, event domain.Event) error {
	return s.journal.AppendEvent(ctx, event)
}
