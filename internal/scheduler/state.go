package scheduler

import (
	"context"
	"time"

	"github.com/ReplAI-Neo/ReplAI/internal/models"
	"github.com/ReplAI-Neo/ReplAI/pkg/logger"
)

// ChatState is the per-chat mutable state. It is created on the first unread
// message observed for a chat and lives for the process lifetime. All fields
// are guarded by the scheduler's mutex.
type ChatState struct {
	ChatID      string
	ContactName string

	// LastSeenSortKey is the watermark: messages at or below it are already
	// processed. It only ever advances, via max over each observed batch.
	LastSeenSortKey int64

	// History is the rolling conversation, bounded to the scheduler's
	// maxHistory; the oldest entries are evicted first.
	History []models.Message

	// Generating is true exactly while a response generation is in flight
	// for this chat; cancel is its handle, present iff Generating.
	Generating bool
	cancel     context.CancelFunc

	// debounce is the pending settle timer, at most one per chat.
	debounce *time.Timer

	LastMessageAt time.Time
}

// getOrCreate returns the chat's state, creating it with the given seed when
// absent. The seed arguments are ignored on a hit. Callers must hold s.mu.
func (s *Scheduler) getOrCreate(chatID, contactName string, startingSortKey int64) *ChatState {
	if st, ok := s.chats[chatID]; ok {
		return st
	}
	st := &ChatState{
		ChatID:          chatID,
		ContactName:     contactName,
		LastSeenSortKey: startingSortKey,
	}
	s.chats[chatID] = st
	logger.WithChat(s.logger, chatID, contactName).Info("Tracking new chat")
	return st
}

// appendHistory appends a turn and trims to the history bound, evicting the
// oldest entries. Callers must hold s.mu.
func (s *Scheduler) appendHistory(st *ChatState, msg models.Message) {
	st.History = append(st.History, msg)
	if len(st.History) > s.maxHistory {
		st.History = st.History[len(st.History)-s.maxHistory:]
	}
}
