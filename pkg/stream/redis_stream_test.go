package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"sentistream/pkg/domain"
)

func newTestStream(t *testing.T) (*RedisStream, context.Context) {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	s, err := NewRedisStream(Config{
		Addr: redisSrv.Addr(),
		Key:  "test:posts",
	})
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	return s, context.Background()
}

func TestAppendAndReadGroupRoundTrip(t *testing.T) {
	s, ctx := newTestStream(t)

	post := domain.Post{
		PostID:    "post_1700000000000_ab12cd34",
		Source:    "reddit",
		Content:   "I absolutely love ChatGPT!",
		Author:    "user_4242",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	entryID, err := s.Append(ctx, EncodePost(post))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entryID == "" {
		t.Fatalf("expected entry id")
	}

	if err := s.EnsureGroup(ctx, "workers", "0"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	entries, err := s.ReadGroup(ctx, "workers", "w-1", 10, time.Millisecond)
	if err != nil {
		t.Fatalf("read group: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}

	got, err := DecodePost(entries[0].Fields)
	if err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if got.PostID != post.PostID || got.Source != post.Source || got.Content != post.Content || got.Author != post.Author {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(post.CreatedAt) {
		t.Fatalf("created_at mismatch: got %v want %v", got.CreatedAt, post.CreatedAt)
	}
}

func TestReadGroupEmptyReturnsNoEntries(t *testing.T) {
	s, ctx := newTestStream(t)

	if err := s.EnsureGroup(ctx, "workers", "0"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	entries, err := s.ReadGroup(ctx, "workers", "w-1", 10, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("expected no error on empty read, got %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty batch, got %d entries", len(entries))
	}
}

func TestEnsureGroupIdempotent(t *testing.T) {
	s, ctx := newTestStream(t)

	if err := s.EnsureGroup(ctx, "workers", "0"); err != nil {
		t.Fatalf("first ensure group: %v", err)
	}
	if err := s.EnsureGroup(ctx, "workers", "0"); err != nil {
		t.Fatalf("expected duplicate group creation to be a no-op, got %v", err)
	}
}

func TestAckIdempotent(t *testing.T) {
	s, ctx := newTestStream(t)

	if err := s.EnsureGroup(ctx, "workers", "0"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if _, err := s.Append(ctx, map[string]string{FieldPostID: "p1", FieldContent: "hello world post"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, err := s.ReadGroup(ctx, "workers", "w-1", 1, time.Millisecond)
	if err != nil || len(entries) != 1 {
		t.Fatalf("read group: %v (%d entries)", err, len(entries))
	}

	if err := s.Ack(ctx, "workers", entries[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := s.Ack(ctx, "workers", entries[0].ID); err != nil {
		t.Fatalf("second ack should not error: %v", err)
	}
	if err := s.Ack(ctx, "workers", "99999-0"); err != nil {
		t.Fatalf("ack of unknown entry should not error: %v", err)
	}
}

func TestClaimStaleTakesOverUnackedEntry(t *testing.T) {
	s, ctx := newTestStream(t)

	if err := s.EnsureGroup(ctx, "workers", "0"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if _, err := s.Append(ctx, map[string]string{FieldPostID: "p1", FieldContent: "terrible experience here"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// w-1 reads but never acks, simulating a crash before acknowledgment.
	if _, err := s.ReadGroup(ctx, "workers", "w-1", 1, time.Millisecond); err != nil {
		t.Fatalf("read group: %v", err)
	}

	claimed, err := s.ClaimStale(ctx, "workers", "w-2", 0, 10)
	if err != nil {
		t.Fatalf("claim stale: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected one claimed entry, got %d", len(claimed))
	}
	if claimed[0].Fields[FieldPostID] != "p1" {
		t.Fatalf("unexpected claimed payload: %+v", claimed[0].Fields)
	}
}

func TestDeadLetterMovesEntryAndAcks(t *testing.T) {
	s, ctx := newTestStream(t)

	if err := s.EnsureGroup(ctx, "workers", "0"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if _, err := s.Append(ctx, map[string]string{FieldPostID: "p1", FieldContent: "content that always fails"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, err := s.ReadGroup(ctx, "workers", "w-1", 1, time.Millisecond)
	if err != nil || len(entries) != 1 {
		t.Fatalf("read group: %v (%d entries)", err, len(entries))
	}

	if err := s.DeadLetter(ctx, "workers", entries[0], "delivery budget exhausted"); err != nil {
		t.Fatalf("dead letter: %v", err)
	}

	pending, err := s.client.XPending(ctx, s.key, "workers").Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending entries after dead-letter, got %d", pending.Count)
	}

	dead, err := s.client.XRange(ctx, s.DeadLetterKey(), "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange dead letter: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("expected one dead-lettered entry, got %d", len(dead))
	}
	if dead[0].Values["failure_reason"] != "delivery budget exhausted" {
		t.Fatalf("unexpected dead letter payload: %+v", dead[0].Values)
	}
	if dead[0].Values["origin_entry_id"] != entries[0].ID {
		t.Fatalf("dead letter should record origin entry id: %+v", dead[0].Values)
	}
}

func TestPendingDeliveriesCountsRedeliveries(t *testing.T) {
	s, ctx := newTestStream(t)

	if err := s.EnsureGroup(ctx, "workers", "0"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if _, err := s.Append(ctx, map[string]string{FieldPostID: "p1", FieldContent: "still pending content"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, err := s.ReadGroup(ctx, "workers", "w-1", 1, time.Millisecond)
	if err != nil || len(entries) != 1 {
		t.Fatalf("read group: %v (%d entries)", err, len(entries))
	}

	deliveries, err := s.PendingDeliveries(ctx, "workers", 100)
	if err != nil {
		t.Fatalf("pending deliveries: %v", err)
	}
	if deliveries[entries[0].ID] < 1 {
		t.Fatalf("expected at least one delivery recorded, got %+v", deliveries)
	}
}

func TestUnackedEntryVisibleToOtherConsumerViaClaim(t *testing.T) {
	s, ctx := newTestStream(t)

	if err := s.EnsureGroup(ctx, "workers", "0"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if _, err := s.Append(ctx, map[string]string{FieldPostID: "p1", FieldContent: "redelivery check content"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	first, err := s.ReadGroup(ctx, "workers", "w-1", 1, time.Millisecond)
	if err != nil || len(first) != 1 {
		t.Fatalf("read group: %v (%d entries)", err, len(first))
	}

	// A fresh ">" read must not see the pending entry again.
	again, err := s.ReadGroup(ctx, "workers", "w-1", 1, time.Millisecond)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("pending entry should not be redelivered on '>' read, got %d", len(again))
	}

	// But a claiming consumer takes it over.
	claimed, err := s.ClaimStale(ctx, "workers", "w-2", 0, 10)
	if err != nil {
		t.Fatalf("claim stale: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != first[0].ID {
		t.Fatalf("expected claimed redelivery of %s, got %+v", first[0].ID, claimed)
	}

	err = s.Ack(ctx, "workers", claimed[0].ID)
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	pending, err := s.client.XPending(ctx, s.key, "workers").Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected empty pending list after ack, got %d", pending.Count)
	}
}

func TestDecodePostRejectsMalformedEntries(t *testing.T) {
	if _, err := DecodePost(map[string]string{FieldContent: "has content, no id"}); err == nil {
		t.Fatalf("expected error for missing post_id")
	}
	if _, err := DecodePost(map[string]string{FieldPostID: "p1"}); err == nil {
		t.Fatalf("expected error for missing content")
	}
	if _, err := DecodePost(map[string]string{FieldPostID: "p1", FieldContent: "ok content", FieldCreatedAt: "not-a-time"}); err == nil {
		t.Fatalf("expected error for bad created_at")
	}
}
