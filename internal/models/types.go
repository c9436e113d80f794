package models

import (
	"time"
)

// Message roles used in conversation history and model prompts.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents one turn of a chat's rolling conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is an unread conversation reported by the platform bridge.
type Chat struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	UnreadCount int    `json:"unread_count"`
}

// PlatformMessage is a raw message as returned by the platform bridge.
// SortKey is a monotonically comparable position marker; messages with
// SortKey at or below a chat's watermark are already processed.
type PlatformMessage struct {
	ID        string   `json:"id"`
	SortKey   int64    `json:"sort_key"`
	Text      string   `json:"text"`
	IsFromMe  bool     `json:"is_from_me"`
	Reactions []string `json:"reactions,omitempty"`
}

// StyleProfile is a derived summary of a contact's historical texting
// idiosyncrasies used to condition generated replies.
type StyleProfile struct {
	Summary    string
	Guidelines []string
	Examples   []string
	// Source is the contact whose corpus the profile was derived from.
	// It differs from the chat's contact when the profile was borrowed
	// from the largest available corpus.
	Source string
}

// Borrowed reports whether the profile was derived from a different
// contact's corpus than the given one.
func (p *StyleProfile) Borrowed(contact string) bool {
	return p != nil && p.Source != "" && p.Source != contact
}

// MemoryHit is one result from the external memory retrieval tool.
type MemoryHit struct {
	Score           float64  `json:"score"`
	Tags            []string `json:"tags"`
	ContextMessages []string `json:"context_messages"`
}

// CorpusMessage is a single historical message from the conversation dataset.
type CorpusMessage struct {
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"-"`
	Text      string    `json:"text"`
}
