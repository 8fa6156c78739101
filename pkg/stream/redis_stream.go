package stream

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one delivered stream record.
type Entry struct {
	ID     string
	Fields map[string]string
}

// RedisStream binds the append-only log contract to one Redis stream key.
// All consumer-group cursor state lives in Redis; this type holds no
// mutable coordination state of its own.
type RedisStream struct {
	client *redis.Client
	key    string
	maxLen int64
}

type Config struct {
	Addr     string
	Password string
	Key      string
	MaxLen   int64
}

func NewRedisStream(cfg Config) (*RedisStream, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		return nil, errors.New("stream key required")
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisStream{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		key:    key,
		maxLen: maxLen,
	}, nil
}

// Key returns the stream key this instance is bound to.
func (s *RedisStream) Key() string {
	return s.key
}

// DeadLetterKey is the side stream receiving entries that exhausted their
// delivery budget.
func (s *RedisStream) DeadLetterKey() string {
	return s.key + ":dead"
}

// Append adds an entry and returns its generated ID. The stream is capped
// at MaxLen entries (approximate trim).
func (s *RedisStream) Append(ctx context.Context, fields map[string]string) (string, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Result()
}

// EnsureGroup creates the consumer group at startID, creating the stream if
// needed. Creating a group that already exists is a no-op.
func (s *RedisStream) EnsureGroup(ctx context.Context, group, startID string) error {
	if startID == "" {
		startID = "0"
	}
	err := s.client.XGroupCreateMkStream(ctx, s.key, group, startID).Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// ReadGroup block-reads up to count entries not yet delivered to this group.
// Returns an empty slice, not an error, when nothing arrives within block.
func (s *RedisStream) ReadGroup(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{s.key, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	for _, str := range streams {
		for _, msg := range str.Messages {
			entries = append(entries, entryFromMessage(msg))
		}
	}
	return entries, nil
}

// Ack acknowledges a delivered entry. Acking an unknown or already-acked
// entry is not an error.
func (s *RedisStream) Ack(ctx context.Context, group, entryID string) error {
	return s.client.XAck(ctx, s.key, group, entryID).Err()
}

// ClaimStale transfers ownership of pending entries idle past minIdle to
// this consumer, so entries stranded by a crashed sibling get reprocessed.
func (s *RedisStream) ClaimStale(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]Entry, error) {
	msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.key,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, entryFromMessage(msg))
	}
	return entries, nil
}

// PendingDeliveries returns the delivery count per pending entry ID for the
// group's whole pending list.
func (s *RedisStream) PendingDeliveries(ctx context.Context, group string, count int64) (map[string]int64, error) {
	if count <= 0 {
		count = 100
	}
	ext, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.key,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	deliveries := make(map[string]int64, len(ext))
	for _, p := range ext {
		deliveries[p.ID] = p.RetryCount
	}
	return deliveries, nil
}

// DeadLetter moves an entry to the side stream and acknowledges the
// original, so it stops being redelivered. Both writes go in one pipeline.
func (s *RedisStream) DeadLetter(ctx context.Context, group string, entry Entry, reason string) error {
	values := make(map[string]any, len(entry.Fields)+2)
	for k, v := range entry.Fields {
		values[k] = v
	}
	values["origin_entry_id"] = entry.ID
	values["failure_reason"] = reason

	pipe := s.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.DeadLetterKey(),
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	})
	pipe.XAck(ctx, s.key, group, entry.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStream) Close() error {
	return s.client.Close()
}

func entryFromMessage(msg redis.XMessage) Entry {
	fields := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		if str, ok := v.(string); ok {
			fields[k] = str
		}
	}
	return Entry{ID: msg.ID, Fields: fields}
}
