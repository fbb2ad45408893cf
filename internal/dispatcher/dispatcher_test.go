package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/models"
)

type fakeForum struct {
	owners   map[int]string
	topicErr error
	postErr  error
	posts    []any
	lookups  int
}

func (f *fakeForum) GetTopic(_ context.Context, topicID int) (*models.Topic, error) {
	f.lookups++
	if f.topicErr != nil {
		return nil, f.topicErr
	}
	topic := &models.Topic{ID: topicID}
	if owner, ok := f.owners[topicID]; ok {
		topic.Details.CreatedBy = &models.TopicUser{Username: owner}
	}
	return topic, nil
}

func (f *fakeForum) CreatePost(_ context.Context, payload any) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, payload)
	return nil
}

func (f *fakeForum) TopicURL(topicID, postNumber int) string {
	return fmt.Sprintf("http://x/t/%d/%d", topicID, postNumber)
}

const template = "Hi {original_poster}, you have {has a solution here}."

func TestDispatchSkipsSelfAnswer(t *testing.T) {
	forum := &fakeForum{owners: map[int]string{5: "bob"}}
	d := NewDispatcher(Config{Mode: models.ReplyModePrivateMessage}, forum, zap.NewNop())

	result := d.Dispatch(context.Background(), models.SolvedAnswerEvent{TopicID: 5, PostNumber: 2, Username: "bob"}, template)
	if result.Outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", result.Outcome)
	}
	if len(forum.posts) != 0 {
		t.Fatalf("expected zero posts for self answer, got %d", len(forum.posts))
	}
}

func TestDispatchSendsPersonalizedPrivateMessage(t *testing.T) {
	forum := &fakeForum{owners: map[int]string{5: "alice"}}
	d := NewDispatcher(Config{Mode: models.ReplyModePrivateMessage}, forum, zap.NewNop())

	result := d.Dispatch(context.Background(), models.SolvedAnswerEvent{TopicID: 5, PostNumber: 2, CategoryID: 3, Username: "bob"}, template)
	if result.Outcome != OutcomeSent {
		t.Fatalf("expected sent, got %s (%v)", result.Outcome, result.Err)
	}
	if len(forum.posts) != 1 {
		t.Fatalf("expected one post, got %d", len(forum.posts))
	}
	pm, ok := forum.posts[0].(models.PrivateMessage)
	if !ok {
		t.Fatalf("expected private message payload, got %T", forum.posts[0])
	}
	want := models.PrivateMessage{
		Archetype:        "private_message",
		AutoLockPM:       true,
		TargetRecipients: "alice",
		Raw:              "Hi @alice, you have [has a solution here](http://x/t/5/2).",
		Title:            "Someone has answered your topic",
	}
	if pm != want {
		t.Fatalf("expected %+v, got %+v", want, pm)
	}
}

func TestDispatchFailsWhenTopicLookupFails(t *testing.T) {
	forum := &fakeForum{topicErr: errors.New("boom")}
	d := NewDispatcher(Config{}, forum, zap.NewNop())

	result := d.Dispatch(context.Background(), models.SolvedAnswerEvent{TopicID: 5, PostNumber: 2, Username: "bob"}, template)
	if result.Outcome != OutcomeFailed || result.Err == nil {
		t.Fatalf("expected failure with error, got %+v", result)
	}
	if len(forum.posts) != 0 {
		t.Fatalf("expected no post when lookup fails")
	}
}

func TestDispatchFailsWithoutKnownOwner(t *testing.T) {
	forum := &fakeForum{owners: map[int]string{}}
	d := NewDispatcher(Config{}, forum, zap.NewNop())

	result := d.Dispatch(context.Background(), models.SolvedAnswerEvent{TopicID: 5, PostNumber: 2, Username: "bob"}, template)
	if !errors.Is(result.Err, ErrUnknownOwner) {
		t.Fatalf("expected ErrUnknownOwner, got %v", result.Err)
	}
	if len(forum.posts) != 0 {
		t.Fatalf("expected no post without recipient")
	}
}

func TestDispatchReportsPostFailure(t *testing.T) {
	forum := &fakeForum{owners: map[int]string{5: "alice"}, postErr: errors.New("HTTP 422")}
	d := NewDispatcher(Config{}, forum, zap.NewNop())

	result := d.Dispatch(context.Background(), models.SolvedAnswerEvent{TopicID: 5, PostNumber: 2, Username: "bob"}, template)
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", result.Outcome)
	}
}

func TestDispatchTopicReplyPostsCannedResponseVerbatim(t *testing.T) {
	forum := &fakeForum{owners: map[int]string{5: "bob"}}
	d := NewDispatcher(Config{Mode: models.ReplyModeTopicReply}, forum, zap.NewNop())

	result := d.Dispatch(context.Background(), models.SolvedAnswerEvent{TopicID: 5, PostNumber: 2, CategoryID: 7, Username: "bob"}, template)
	if result.Outcome != OutcomeSent {
		t.Fatalf("expected sent, got %s", result.Outcome)
	}
	if forum.lookups != 0 {
		t.Fatalf("topic reply mode must not look up the topic, got %d lookups", forum.lookups)
	}
	reply, ok := forum.posts[0].(models.TopicReply)
	if !ok {
		t.Fatalf("expected topic reply payload, got %T", forum.posts[0])
	}
	want := models.TopicReply{CategoryID: 7, TopicID: 5, Raw: template}
	if reply != want {
		t.Fatalf("expected %+v, got %+v", want, reply)
	}
}
