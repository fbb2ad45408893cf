package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrValidation marks an inbound payload that cannot become a SolvedAnswerEvent.
var ErrValidation = errors.New("invalid solved event")

// SolvedAnswerEvent is the queue message body: the subset of the accepted-answer
// payload the reply pipeline consumes.
type SolvedAnswerEvent struct {
	PostNumber int    `json:"post_number"`
	TopicID    int    `json:"topic_id"`
	CategoryID int    `json:"category_id"`
	Username   string `json:"username"`
}

// AcceptedAnswerWebhook is the body Discourse posts when an answer is accepted.
type AcceptedAnswerWebhook struct {
	Solved *SolvedPost `json:"solved"`
}

// SolvedPost is the accepted post as serialized by Discourse. Only a handful of
// its fields are read; the rest are kept for logging and debugging.
type SolvedPost struct {
	ID                int    `json:"id"`
	Username          string `json:"username"`
	PostNumber        int    `json:"post_number"`
	PostType          int    `json:"post_type"`
	TopicID           int    `json:"topic_id"`
	TopicSlug         string `json:"topic_slug"`
	TopicTitle        string `json:"topic_title"`
	TopicArchetype    string `json:"topic_archetype"`
	CategoryID        int    `json:"category_id"`
	CategorySlug      string `json:"category_slug"`
	UserID            int    `json:"user_id"`
	ReplyToPostNumber *int   `json:"reply_to_post_number"`
	CreatedAt         string `json:"created_at"`
	Raw               string `json:"raw"`
}

// Event projects the accepted post onto the queue message.
func (p *SolvedPost) Event() SolvedAnswerEvent {
	return SolvedAnswerEvent{
		PostNumber: p.PostNumber,
		TopicID:    p.TopicID,
		CategoryID: p.CategoryID,
		Username:   p.Username,
	}
}

// ParseAcceptedAnswer decodes a webhook body and returns the validated event.
func ParseAcceptedAnswer(body []byte) (SolvedAnswerEvent, error) {
	var payload AcceptedAnswerWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return SolvedAnswerEvent{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if payload.Solved == nil {
		return SolvedAnswerEvent{}, fmt.Errorf("%w: missing solved object", ErrValidation)
	}

	event := payload.Solved.Event()
	if err := event.Validate(); err != nil {
		return SolvedAnswerEvent{}, err
	}
	return event, nil
}

// DecodeSolvedEvent decodes and validates a queue message body.
func DecodeSolvedEvent(body []byte) (SolvedAnswerEvent, error) {
	var event SolvedAnswerEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return SolvedAnswerEvent{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := event.Validate(); err != nil {
		return SolvedAnswerEvent{}, err
	}
	return event, nil
}

// Validate reports every required field that is missing.
func (e SolvedAnswerEvent) Validate() error {
	var missing []string
	if e.TopicID <= 0 {
		missing = append(missing, "topic_id")
	}
	if e.PostNumber <= 0 {
		missing = append(missing, "post_number")
	}
	if strings.TrimSpace(e.Username) == "" {
		missing = append(missing, "username")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}
