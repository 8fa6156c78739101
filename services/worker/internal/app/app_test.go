package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"sentistream/pkg/classify"
	"sentistream/pkg/domain"
	"sentistream/pkg/store"
	"sentistream/pkg/stream"
)

type fakeBackend struct {
	err error
}

func (f *fakeBackend) Scores(_ context.Context, model, _ string) ([]classify.Score, error) {
	if f.err != nil {
		return nil, f.err
	}
	if model == "emotion-model" {
		return []classify.Score{
			{Label: "sadness", Score: 0.88},
			{Label: "joy", Score: 0.12},
		}, nil
	}
	return []classify.Score{
		{Label: "negative", Score: 0.91},
		{Label: "positive", Score: 0.09},
	}, nil
}

type failingStore struct {
	*store.MemoryStore
}

func (f *failingStore) SavePostAnalysis(context.Context, domain.Post, domain.AnalysisResult) error {
	return errors.New("connection reset")
}

func newTestApp(t *testing.T, dataStore store.Store) (*App, *stream.RedisStream, string) {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	postStream, err := stream.NewRedisStream(stream.Config{
		Addr: redisSrv.Addr(),
		Key:  "test:posts",
	})
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}

	analyzer := classify.NewAnalyzer(&fakeBackend{}, "sentiment-model", "emotion-model")
	worker, err := New(Config{
		Stream:   postStream,
		Store:    dataStore,
		Analyzer: analyzer,
		Group:    "sentiment_workers",
		Consumer: "w-1",
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	ctx := context.Background()
	if err := postStream.EnsureGroup(ctx, worker.group, "0"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	return worker, postStream, redisSrv.Addr()
}

func publishAndRead(t *testing.T, postStream *stream.RedisStream, worker *App, fields map[string]string) stream.Entry {
	t.Helper()
	ctx := context.Background()
	if _, err := postStream.Append(ctx, fields); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, err := postStream.ReadGroup(ctx, worker.group, worker.consumer, 10, time.Millisecond)
	if err != nil || len(entries) != 1 {
		t.Fatalf("read group: %v (%d entries)", err, len(entries))
	}
	return entries[0]
}

func testPostFields() map[string]string {
	return stream.EncodePost(domain.Post{
		PostID:    "post_1700000000000_ab12cd34",
		Source:    "reddit",
		Content:   "Terrible experience with Netflix",
		Author:    "user_1234",
		CreatedAt: time.Now().UTC(),
	})
}

func pendingCount(t *testing.T, postStream *stream.RedisStream, group string) int {
	t.Helper()
	deliveries, err := postStream.PendingDeliveries(context.Background(), group, 100)
	if err != nil {
		t.Fatalf("pending deliveries: %v", err)
	}
	return len(deliveries)
}

func TestProcessEntryPersistsAndAcks(t *testing.T) {
	dataStore := store.NewMemoryStore()
	worker, postStream, _ := newTestApp(t, dataStore)
	ctx := context.Background()

	entry := publishAndRead(t, postStream, worker, testPostFields())
	worker.processEntry(ctx, entry)

	post, ok, err := dataStore.GetPost(ctx, "post_1700000000000_ab12cd34")
	if err != nil || !ok {
		t.Fatalf("expected persisted post: ok=%v err=%v", ok, err)
	}
	if post.Source != "reddit" {
		t.Fatalf("unexpected post: %+v", post)
	}
	count, err := dataStore.AnalysisCount(ctx, post.PostID)
	if err != nil || count != 1 {
		t.Fatalf("expected one analysis, got %d (err=%v)", count, err)
	}
	if got := pendingCount(t, postStream, worker.group); got != 0 {
		t.Fatalf("expected entry acked, %d still pending", got)
	}
}

func TestRedeliveryYieldsOnePostManyAnalyses(t *testing.T) {
	dataStore := store.NewMemoryStore()
	worker, postStream, _ := newTestApp(t, dataStore)
	ctx := context.Background()

	entry := publishAndRead(t, postStream, worker, testPostFields())

	// Same entry delivered three times, as after repeated crashes before ack.
	for i := 0; i < 3; i++ {
		worker.processEntry(ctx, entry)
	}

	count, err := dataStore.AnalysisCount(ctx, "post_1700000000000_ab12cd34")
	if err != nil {
		t.Fatalf("analysis count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 analysis rows, got %d", count)
	}
	if _, ok, _ := dataStore.GetPost(ctx, "post_1700000000000_ab12cd34"); !ok {
		t.Fatalf("expected post present")
	}
}

func TestPersistenceFailureLeavesEntryPending(t *testing.T) {
	dataStore := &failingStore{store.NewMemoryStore()}
	worker, postStream, _ := newTestApp(t, dataStore)
	ctx := context.Background()

	entry := publishAndRead(t, postStream, worker, testPostFields())
	worker.processEntry(ctx, entry)

	if got := pendingCount(t, postStream, worker.group); got != 1 {
		t.Fatalf("expected entry left pending for redelivery, got %d pending", got)
	}
}

func TestMalformedEntryIsDeadLettered(t *testing.T) {
	dataStore := store.NewMemoryStore()
	worker, postStream, addr := newTestApp(t, dataStore)
	ctx := context.Background()

	entry := publishAndRead(t, postStream, worker, map[string]string{
		stream.FieldPostID: "post_broken",
		// no content field: redelivery can never fix this
	})
	worker.processEntry(ctx, entry)

	if got := pendingCount(t, postStream, worker.group); got != 0 {
		t.Fatalf("malformed entry should be acked away, got %d pending", got)
	}

	deadStream, err := stream.NewRedisStream(stream.Config{Addr: addr, Key: postStream.DeadLetterKey()})
	if err != nil {
		t.Fatalf("open dead letter stream: %v", err)
	}
	if err := deadStream.EnsureGroup(ctx, "inspect", "0"); err != nil {
		t.Fatalf("ensure inspect group: %v", err)
	}
	dead, err := deadStream.ReadGroup(ctx, "inspect", "i-1", 10, time.Millisecond)
	if err != nil {
		t.Fatalf("read dead letter: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("expected one dead-lettered entry, got %d", len(dead))
	}
	if dead[0].Fields["origin_entry_id"] != entry.ID {
		t.Fatalf("dead letter should reference origin entry: %+v", dead[0].Fields)
	}
}

func TestBatchIsolatesFailures(t *testing.T) {
	dataStore := store.NewMemoryStore()
	worker, postStream, _ := newTestApp(t, dataStore)
	ctx := context.Background()

	good1 := stream.EncodePost(domain.Post{PostID: "p1", Source: "reddit", Content: "I absolutely love ChatGPT!", CreatedAt: time.Now().UTC()})
	bad := map[string]string{stream.FieldPostID: "p2"}
	good2 := stream.EncodePost(domain.Post{PostID: "p3", Source: "twitter", Content: "Very disappointed with Amazon Prime", CreatedAt: time.Now().UTC()})
	for _, fields := range []map[string]string{good1, bad, good2} {
		if _, err := postStream.Append(ctx, fields); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := postStream.ReadGroup(ctx, worker.group, worker.consumer, 10, time.Millisecond)
	if err != nil || len(entries) != 3 {
		t.Fatalf("read group: %v (%d entries)", err, len(entries))
	}
	worker.processBatch(ctx, entries)

	for _, id := range []string{"p1", "p3"} {
		if _, ok, _ := dataStore.GetPost(ctx, id); !ok {
			t.Fatalf("expected %s persisted despite sibling failure", id)
		}
	}
	if _, ok, _ := dataStore.GetPost(ctx, "p2"); ok {
		t.Fatalf("malformed entry must not be persisted")
	}
	if got := pendingCount(t, postStream, worker.group); got != 0 {
		t.Fatalf("expected all entries resolved, got %d pending", got)
	}
}

func TestProcessBatchDrainsAfterCancel(t *testing.T) {
	dataStore := store.NewMemoryStore()
	worker, postStream, _ := newTestApp(t, dataStore)

	entry := publishAndRead(t, postStream, worker, testPostFields())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	worker.processBatch(ctx, []stream.Entry{entry})

	if _, ok, _ := dataStore.GetPost(context.Background(), "post_1700000000000_ab12cd34"); !ok {
		t.Fatalf("in-flight entry should finish after shutdown signal")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dataStore := store.NewMemoryStore()
	worker, _, _ := newTestApp(t, dataStore)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop on context cancel")
	}
}

type fakeStream struct {
	stale       []stream.Entry
	deliveries  map[string]int64
	deadLetters []string
	acked       []string
}

func (f *fakeStream) EnsureGroup(context.Context, string, string) error { return nil }

func (f *fakeStream) ReadGroup(context.Context, string, string, int64, time.Duration) ([]stream.Entry, error) {
	return nil, nil
}

func (f *fakeStream) Ack(_ context.Context, _ string, entryID string) error {
	f.acked = append(f.acked, entryID)
	return nil
}

func (f *fakeStream) ClaimStale(context.Context, string, string, time.Duration, int64) ([]stream.Entry, error) {
	stale := f.stale
	f.stale = nil
	return stale, nil
}

func (f *fakeStream) PendingDeliveries(context.Context, string, int64) (map[string]int64, error) {
	return f.deliveries, nil
}

func (f *fakeStream) DeadLetter(_ context.Context, _ string, entry stream.Entry, _ string) error {
	f.deadLetters = append(f.deadLetters, entry.ID)
	return nil
}

func TestReapStaleDeadLettersExhaustedEntries(t *testing.T) {
	exhausted := stream.Entry{ID: "1-0", Fields: testPostFields()}
	fresh := stream.Entry{ID: "2-0", Fields: stream.EncodePost(domain.Post{
		PostID: "p_retry", Source: "reddit", Content: "Just tried Amazon Prime today", CreatedAt: time.Now().UTC(),
	})}
	fs := &fakeStream{
		stale:      []stream.Entry{exhausted, fresh},
		deliveries: map[string]int64{"1-0": 5, "2-0": 2},
	}
	dataStore := store.NewMemoryStore()
	analyzer := classify.NewAnalyzer(&fakeBackend{}, "sentiment-model", "emotion-model")
	worker, err := New(Config{
		Stream:        fs,
		Store:         dataStore,
		Analyzer:      analyzer,
		Group:         "sentiment_workers",
		Consumer:      "w-1",
		MaxDeliveries: 5,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	worker.reapStale(context.Background())

	if len(fs.deadLetters) != 1 || fs.deadLetters[0] != "1-0" {
		t.Fatalf("expected entry 1-0 dead-lettered, got %v", fs.deadLetters)
	}
	if _, ok, _ := dataStore.GetPost(context.Background(), "p_retry"); !ok {
		t.Fatalf("entry under budget should be reprocessed")
	}
	if len(fs.acked) != 1 || fs.acked[0] != "2-0" {
		t.Fatalf("expected reprocessed entry acked, got %v", fs.acked)
	}
}
