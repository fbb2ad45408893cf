package models

import (
	"fmt"
	"strings"
)

// ReplyMode selects how the service answers a solved topic
type ReplyMode string

const (
	// ReplyModePrivateMessage sends a personalized private message to the topic owner.
	ReplyModePrivateMessage ReplyMode = "private_message"
	// ReplyModeTopicReply posts the canned response publicly into the topic.
	ReplyModeTopicReply ReplyMode = "topic_reply"
)

// ParseReplyMode parses a string into a ReplyMode
// Returns an error if the mode is unknown
func ParseReplyMode(name string) (ReplyMode, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	validModes := []ReplyMode{
		ReplyModePrivateMessage,
		ReplyModeTopicReply,
	}

	for _, mode := range validModes {
		if string(mode) == name {
			return mode, nil
		}
	}

	return "", fmt.Errorf("unknown reply mode: %s", name)
}
