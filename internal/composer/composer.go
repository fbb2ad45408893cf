// Package composer fills canned response templates with per-event values.
package composer

import (
	"fmt"
	"strings"
)

const (
	ParamOriginalPoster = "original_poster"
	ParamSolutionLink   = "has a solution here"
)

// Param is one placeholder substitution. Params apply in order.
type Param struct {
	Key   string
	Value string
}

// Compose replaces the first "{key}" occurrence for each param, one key at a
// time, in param order. Later occurrences of a key are left untouched. A value
// is not rescanned for its own key, but later params see the text earlier
// values inserted and can replace placeholders inside them.
func Compose(template string, params ...Param) string {
	message := template
	for _, p := range params {
		message = strings.Replace(message, "{"+p.Key+"}", p.Value, 1)
	}
	return message
}

// Mention addresses a user, or "there" when the user is unknown.
func Mention(username string) string {
	if strings.TrimSpace(username) == "" {
		return "there"
	}
	return "@" + username
}

// SolutionParams are the substitutions used for the solved-topic message.
func SolutionParams(mention, link string) []Param {
	return []Param{
		{Key: ParamOriginalPoster, Value: mention},
		{Key: ParamSolutionLink, Value: fmt.Sprintf("[%s](%s)", ParamSolutionLink, link)},
	}
}
