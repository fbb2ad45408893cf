package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/composer"
	"github.com/marminbh/discourse-autoreply/internal/models"
)

// Forum is the subset of the forum client the dispatcher needs.
type Forum interface {
	GetTopic(ctx context.Context, topicID int) (*models.Topic, error)
	CreatePost(ctx context.Context, payload any) error
	TopicURL(topicID, postNumber int) string
}

// Outcome classifies a dispatch attempt.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ErrUnknownOwner is reported when the topic owner cannot be determined.
var ErrUnknownOwner = errors.New("topic owner unknown")

// Result describes what a dispatch did.
type Result struct {
	Outcome Outcome
	Reason  string
	Err     error
}

type Config struct {
	Mode    models.ReplyMode
	PMTitle string
}

// Dispatcher turns a solved event into a forum post
type Dispatcher struct {
	cfg    Config
	forum  Forum
	logger *zap.Logger
}

// NewDispatcher creates a new dispatcher instance with dependencies
func NewDispatcher(cfg Config, forum Forum, logger *zap.Logger) *Dispatcher {
	if cfg.Mode == "" {
		cfg.Mode = models.ReplyModePrivateMessage
	}
	if cfg.PMTitle == "" {
		cfg.PMTitle = "Someone has answered your topic"
	}
	return &Dispatcher{
		cfg:    cfg,
		forum:  forum,
		logger: logger,
	}
}

// Dispatch sends the reply for one event. It never returns an error; failures
// are logged and reported in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, event models.SolvedAnswerEvent, template string) Result {
	var result Result
	switch d.cfg.Mode {
	case models.ReplyModeTopicReply:
		result = d.replyToTopic(ctx, event, template)
	default:
		result = d.sendPrivateMessage(ctx, event, template)
	}

	fields := []zap.Field{
		zap.String("mode", string(d.cfg.Mode)),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("topic_id", event.TopicID),
		zap.Int("post_number", event.PostNumber),
		zap.String("username", event.Username),
	}
	switch result.Outcome {
	case OutcomeFailed:
		d.logger.Error("Failed to dispatch solved reply", append(fields, zap.Error(result.Err))...)
	case OutcomeSkipped:
		d.logger.Info("Skipped solved reply", append(fields, zap.String("reason", result.Reason))...)
	default:
		d.logger.Info("Dispatched solved reply", fields...)
	}
	return result
}

func (d *Dispatcher) sendPrivateMessage(ctx context.Context, event models.SolvedAnswerEvent, template string) Result {
	topic, err := d.forum.GetTopic(ctx, event.TopicID)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("lookup original poster: %w", err)}
	}

	owner := topic.OwnerUsername()
	if owner == event.Username {
		return Result{Outcome: OutcomeSkipped, Reason: "user marked their own answer as the solution"}
	}
	if owner == "" {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("topic %d: %w", event.TopicID, ErrUnknownOwner)}
	}

	link := d.forum.TopicURL(event.TopicID, event.PostNumber)
	raw := composer.Compose(template, composer.SolutionParams(composer.Mention(owner), link)...)

	payload := models.PrivateMessage{
		Archetype:        models.ArchetypePrivateMessage,
		AutoLockPM:       true,
		TargetRecipients: owner,
		Raw:              raw,
		Title:            d.cfg.PMTitle,
	}
	if err := d.forum.CreatePost(ctx, payload); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	return Result{Outcome: OutcomeSent}
}

func (d *Dispatcher) replyToTopic(ctx context.Context, event models.SolvedAnswerEvent, template string) Result {
	payload := models.TopicReply{
		CategoryID: event.CategoryID,
		TopicID:    event.TopicID,
		Raw:        template,
	}
	if err := d.forum.CreatePost(ctx, payload); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	return Result{Outcome: OutcomeSent}
}
