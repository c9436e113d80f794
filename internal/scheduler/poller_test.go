package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ReplAI-Neo/ReplAI/internal/middleware"
	"github.com/ReplAI-Neo/ReplAI/internal/models"
	"github.com/ReplAI-Neo/ReplAI/internal/platform"
)

type fakeBridge struct {
	fakePlatform
	chats   []models.Chat
	msgs    map[string][]models.PlatformMessage
	listErr error
}

func (f *fakeBridge) ListUnreadChats(ctx context.Context) ([]models.Chat, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.chats, nil
}

func (f *fakeBridge) ListRecentMessages(ctx context.Context, chatID string, limit int) ([]models.PlatformMessage, error) {
	return f.msgs[chatID], nil
}

func newTestPoller(bridge *fakeBridge) (*Poller, *Scheduler) {
	comp := &fakeComposer{reply: "ok"}
	// Debounce long enough that nothing reaches the queue mid-test.
	s := New(Config{
		Debounce:     time.Minute,
		MaxQueueSize: 10,
		MaxHistory:   30,
		SendPacing:   time.Millisecond,
	}, bridge, comp, fakeStyle{}, middleware.NewMetrics(), testLogger())
	return NewPoller(bridge, s, 0, 0, 25, testLogger()), s
}

func TestPollOnce_FeedsScheduler(t *testing.T) {
	bridge := &fakeBridge{
		chats: []models.Chat{{ID: "c1", Title: "Alice", UnreadCount: 1}},
		msgs: map[string][]models.PlatformMessage{
			"c1": {{SortKey: 4, Text: "hello"}},
		},
	}
	p, s := newTestPoller(bridge)

	if err := p.pollOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.mu.Lock()
	st, ok := s.chats["c1"]
	var history []models.Message
	if ok {
		history = append(history, st.History...)
	}
	s.mu.Unlock()

	if !ok {
		t.Fatal("expected chat state to be created")
	}
	if len(history) != 1 || history[0].Content != "hello" {
		t.Fatalf("expected one observed message, got %v", history)
	}
}

func TestPollOnce_SeedSkipsAlreadyReadMessages(t *testing.T) {
	bridge := &fakeBridge{
		chats: []models.Chat{{ID: "c1", Title: "Alice", UnreadCount: 2}},
		msgs: map[string][]models.PlatformMessage{
			"c1": {
				{SortKey: 1, Text: "old one"},
				{SortKey: 2, Text: "old two"},
				{SortKey: 3, Text: "new one"},
				{SortKey: 4, Text: "new two"},
			},
		},
	}
	p, s := newTestPoller(bridge)

	if err := p.pollOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.mu.Lock()
	history := append([]models.Message(nil), s.chats["c1"].History...)
	s.mu.Unlock()

	if len(history) != 2 {
		t.Fatalf("expected only the unread tail, got %v", history)
	}
	if history[0].Content != "new one" || history[1].Content != "new two" {
		t.Fatalf("unexpected history: %v", history)
	}
}

func TestPollOnce_PropagatesPlatformError(t *testing.T) {
	bridge := &fakeBridge{listErr: platform.ErrPlatform}
	p, _ := newTestPoller(bridge)

	err := p.pollOnce(context.Background())
	if !errors.Is(err, platform.ErrPlatform) {
		t.Fatalf("expected platform error, got %v", err)
	}
}

func TestSeedWatermark(t *testing.T) {
	msgs := []models.PlatformMessage{
		{SortKey: 10}, {SortKey: 20}, {SortKey: 30},
	}

	if got := seedWatermark(models.Chat{UnreadCount: 1}, msgs); got != 20 {
		t.Fatalf("expected seed 20, got %d", got)
	}
	if got := seedWatermark(models.Chat{UnreadCount: 3}, msgs); got != 0 {
		t.Fatalf("expected seed 0 when everything is unread, got %d", got)
	}
	if got := seedWatermark(models.Chat{UnreadCount: 0}, msgs); got != 0 {
		t.Fatalf("expected seed 0 for zero unread, got %d", got)
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName(models.Chat{ID: "c1", Title: " Alice "}); got != "Alice" {
		t.Fatalf("expected trimmed title, got %q", got)
	}
	if got := displayName(models.Chat{ID: "c1"}); got != "c1" {
		t.Fatalf("expected fallback to id, got %q", got)
	}
}
