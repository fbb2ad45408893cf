package models

// Topic is the subset of GET /t/{id}.json the dispatcher reads.
type Topic struct {
	ID      int          `json:"id"`
	Title   string       `json:"title"`
	Details TopicDetails `json:"details"`
}

type TopicDetails struct {
	CreatedBy *TopicUser `json:"created_by"`
}

type TopicUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// OwnerUsername returns the topic creator, or "" when the forum did not say.
func (t *Topic) OwnerUsername() string {
	if t == nil || t.Details.CreatedBy == nil {
		return ""
	}
	return t.Details.CreatedBy.Username
}

// Post is the subset of GET /posts/{id}.json used for the canned response.
type Post struct {
	ID  int    `json:"id"`
	Raw string `json:"raw"`
}

// PrivateMessage is the POST /posts.json body for a private message.
type PrivateMessage struct {
	Archetype        string `json:"archetype"`
	AutoLockPM       bool   `json:"auto_lock_pm"`
	TargetRecipients string `json:"target_recipients"`
	Raw              string `json:"raw"`
	Title            string `json:"title"`
}

// TopicReply is the POST /posts.json body for a public reply.
type TopicReply struct {
	CategoryID int    `json:"category_id,omitempty"`
	TopicID    int    `json:"topic_id"`
	Raw        string `json:"raw"`
}

const ArchetypePrivateMessage = "private_message"
