package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/cache"
	"github.com/marminbh/discourse-autoreply/internal/canned"
	"github.com/marminbh/discourse-autoreply/internal/config"
	"github.com/marminbh/discourse-autoreply/internal/consumer"
	"github.com/marminbh/discourse-autoreply/internal/dispatcher"
	"github.com/marminbh/discourse-autoreply/internal/forum"
	"github.com/marminbh/discourse-autoreply/internal/models"
)

// fakeDiscourse serves topics 1..n owned by "alice" except topic 2, which fails.
type fakeDiscourse struct {
	mu           sync.Mutex
	server       *httptest.Server
	cannedFetch  int
	recipients   []string
	messageTexts []string
}

func newFakeDiscourse(t *testing.T) *fakeDiscourse {
	t.Helper()
	f := &fakeDiscourse{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/posts/1234.json":
			f.cannedFetch++
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 1234, "raw": "Hi {original_poster}, {has a solution here}"})
		case r.Method == http.MethodGet && r.URL.Path == "/t/2.json":
			w.WriteHeader(http.StatusInternalServerError)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/t/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"details": map[string]any{"created_by": map[string]any{"username": "alice"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/posts.json":
			var pm models.PrivateMessage
			_ = json.NewDecoder(r.Body).Decode(&pm)
			f.recipients = append(f.recipients, pm.TargetRecipients)
			f.messageTexts = append(f.messageTexts, pm.Raw)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 1})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeDiscourse) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messageTexts...)
}

func (f *fakeDiscourse) cannedFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cannedFetch
}

func newTestWorker(t *testing.T, f *fakeDiscourse, source Source) *Worker {
	t.Helper()
	logger := zap.NewNop()
	client := forum.NewClient(config.ForumConfig{BaseURL: f.server.URL, Timeout: 2 * time.Second}, logger)
	provider := canned.NewProvider(canned.Config{PostID: 1234, TTL: time.Hour}, client, cache.NewMemoryStore(), logger)
	replies := dispatcher.NewDispatcher(dispatcher.Config{Mode: models.ReplyModePrivateMessage}, client, logger)
	return NewWorker(config.QueueConfig{Name: "solved-events", BatchSize: 3, BatchWait: 50 * time.Millisecond}, source, provider, replies, logger)
}

type ackLog struct {
	mu     sync.Mutex
	events []string
}

func (l *ackLog) delivery(id string, body string) consumer.Delivery {
	return consumer.Delivery{
		ID:   id,
		Body: []byte(body),
		Ack: func() error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.events = append(l.events, "ack:"+id)
			return nil
		},
		Nack: func(requeue bool) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.events = append(l.events, fmt.Sprintf("nack:%s:%v", id, requeue))
			return nil
		},
	}
}

func (l *ackLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func event(topicID int, username string) string {
	return fmt.Sprintf(`{"post_number":4,"topic_id":%d,"category_id":1,"username":%q}`, topicID, username)
}

func TestBatchContinuesPastFailedDispatch(t *testing.T) {
	f := newFakeDiscourse(t)
	w := newTestWorker(t, f, nil)
	acks := &ackLog{}

	batch := []consumer.Delivery{
		acks.delivery("m1", event(1, "bob")),
		acks.delivery("m2", event(2, "bob")),
		acks.delivery("m3", event(3, "bob")),
	}
	consumer.ProcessBatch(context.Background(), zap.NewNop(), "solved-events", batch, w)

	sent := f.sent()
	want := []string{
		"Hi @alice, [has a solution here](" + f.server.URL + "/t/1/4)",
		"Hi @alice, [has a solution here](" + f.server.URL + "/t/3/4)",
	}
	if len(sent) != len(want) || sent[0] != want[0] || sent[1] != want[1] {
		t.Fatalf("expected messages %v, got %v", want, sent)
	}
	// Dispatch failures are logged, not retried through the queue.
	got := acks.snapshot()
	if strings.Join(got, ",") != "ack:m1,ack:m2,ack:m3" {
		t.Fatalf("expected all messages acked, got %v", got)
	}
	if f.cannedFetches() != 1 {
		t.Fatalf("expected one canned fetch for the batch, got %d", f.cannedFetches())
	}
}

func TestBatchRejectsUndecodableMessage(t *testing.T) {
	f := newFakeDiscourse(t)
	w := newTestWorker(t, f, nil)
	acks := &ackLog{}

	batch := []consumer.Delivery{
		acks.delivery("m1", `not json`),
		acks.delivery("m2", `{"topic_id":3}`),
		acks.delivery("m3", event(3, "bob")),
	}
	consumer.ProcessBatch(context.Background(), zap.NewNop(), "solved-events", batch, w)

	got := strings.Join(acks.snapshot(), ",")
	if got != "nack:m1:false,nack:m2:false,ack:m3" {
		t.Fatalf("unexpected ack sequence %s", got)
	}
	if len(f.sent()) != 1 {
		t.Fatalf("expected one message sent, got %d", len(f.sent()))
	}
}

func TestSelfAnswerIsAckedWithoutPost(t *testing.T) {
	f := newFakeDiscourse(t)
	w := newTestWorker(t, f, nil)
	acks := &ackLog{}

	consumer.ProcessBatch(context.Background(), zap.NewNop(), "solved-events",
		[]consumer.Delivery{acks.delivery("m1", event(1, "alice"))}, w)

	if len(f.sent()) != 0 {
		t.Fatalf("expected no post for self answer, got %v", f.sent())
	}
	if strings.Join(acks.snapshot(), ",") != "ack:m1" {
		t.Fatalf("expected self answer to be acked, got %v", acks.snapshot())
	}
}

type countingTemplates struct {
	calls int
	err   error
}

func (c *countingTemplates) Get(context.Context) (string, error) {
	c.calls++
	return "template", c.err
}

type recordingDispatcher struct {
	topics []int
}

func (r *recordingDispatcher) Dispatch(_ context.Context, ev models.SolvedAnswerEvent, template string) dispatcher.Result {
	r.topics = append(r.topics, ev.TopicID)
	return dispatcher.Result{Outcome: dispatcher.OutcomeSent}
}

func TestTemplateResolvedOncePerBatch(t *testing.T) {
	templates := &countingTemplates{}
	replies := &recordingDispatcher{}
	w := NewWorker(config.QueueConfig{Name: "solved-events"}, nil, templates, replies, zap.NewNop())
	acks := &ackLog{}

	batch := []consumer.Delivery{
		acks.delivery("m1", event(1, "bob")),
		acks.delivery("m2", event(2, "bob")),
	}
	consumer.ProcessBatch(context.Background(), zap.NewNop(), "solved-events", batch, w)

	if templates.calls != 1 {
		t.Fatalf("expected one template resolution, got %d", templates.calls)
	}
	if len(replies.topics) != 2 || replies.topics[0] != 1 || replies.topics[1] != 2 {
		t.Fatalf("expected topics dispatched in order [1 2], got %v", replies.topics)
	}
}

func TestTemplateFailureRequeuesBatch(t *testing.T) {
	templates := &countingTemplates{err: errors.New("canned response unavailable")}
	replies := &recordingDispatcher{}
	w := NewWorker(config.QueueConfig{Name: "solved-events"}, nil, templates, replies, zap.NewNop())
	acks := &ackLog{}

	consumer.ProcessBatch(context.Background(), zap.NewNop(), "solved-events",
		[]consumer.Delivery{acks.delivery("m1", event(1, "bob"))}, w)

	if len(replies.topics) != 0 {
		t.Fatalf("expected nothing dispatched, got %v", replies.topics)
	}
	if strings.Join(acks.snapshot(), ",") != "nack:m1:true" {
		t.Fatalf("expected requeue, got %v", acks.snapshot())
	}
}

type chanSource struct {
	ch chan consumer.Delivery
}

func (s *chanSource) Deliveries(context.Context) (<-chan consumer.Delivery, error) {
	return s.ch, nil
}

func TestStartConsumesUntilStopped(t *testing.T) {
	f := newFakeDiscourse(t)
	source := &chanSource{ch: make(chan consumer.Delivery)}
	w := newTestWorker(t, f, source)
	acks := &ackLog{}

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	source.ch <- acks.delivery("m1", event(3, "bob"))

	deadline := time.Now().Add(2 * time.Second)
	for len(acks.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected message to be processed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(f.sent()) != 1 {
		t.Fatalf("expected one message sent, got %d", len(f.sent()))
	}
}

func TestStartRequiresQueueName(t *testing.T) {
	w := NewWorker(config.QueueConfig{}, &chanSource{}, &countingTemplates{}, &recordingDispatcher{}, zap.NewNop())
	if err := w.Start(); err == nil {
		t.Fatalf("expected error without queue name")
	}
}
