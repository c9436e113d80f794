package scheduler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ReplAI-Neo/ReplAI/internal/middleware"
	"github.com/ReplAI-Neo/ReplAI/internal/models"
	"github.com/ReplAI-Neo/ReplAI/pkg/logger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// segmentDelimiter splits one model response into multiple outbound texts.
const segmentDelimiter = "|||"

// Platform is the slice of the bridge client the scheduler sends through.
type Platform interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Composer builds the prompt for a chat and returns the model's reply.
type Composer interface {
	Compose(ctx context.Context, contactName string, profile *models.StyleProfile, history []models.Message) (string, error)
}

// StyleService memoizes per-contact style profiles.
type StyleService interface {
	Profile(ctx context.Context, contactName string) (*models.StyleProfile, error)
}

// Config holds the orchestration constants.
type Config struct {
	Debounce     time.Duration
	MaxQueueSize int
	MaxHistory   int
	SendPacing   time.Duration
}

// Scheduler owns all chat state, absorbs bursts of inbound messages into a
// single response per chat, and serializes generation to one chat at a time
// through a bounded front-priority queue.
type Scheduler struct {
	mu    sync.Mutex
	chats map[string]*ChatState
	queue *responseQueue
	// busy is true while any chat's generation is in flight.
	busy bool
	sent int64

	debounce   time.Duration
	pacing     time.Duration
	maxHistory int

	platform Platform
	composer Composer
	style    StyleService
	metrics  *middleware.Metrics
	logger   *logrus.Logger

	wg sync.WaitGroup
}

// New creates a scheduler.
func New(cfg Config, platform Platform, composer Composer, style StyleService, metrics *middleware.Metrics, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		chats:      make(map[string]*ChatState),
		queue:      newResponseQueue(cfg.MaxQueueSize),
		debounce:   cfg.Debounce,
		pacing:     cfg.SendPacing,
		maxHistory: cfg.MaxHistory,
		platform:   platform,
		composer:   composer,
		style:      style,
		metrics:    metrics,
		logger:     logger,
	}
}

// Observe feeds one chat's freshly fetched messages into its state. Messages
// at or below the chat's watermark, outbound messages, and empty texts are
// ignored. A chat with new inbound messages has any in-flight generation
// canceled and its settle timer restarted.
func (s *Scheduler) Observe(chatID, contactName string, startingSortKey int64, msgs []models.PlatformMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreate(chatID, contactName, startingSortKey)

	fresh := make([]models.PlatformMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.SortKey <= st.LastSeenSortKey || m.IsFromMe || strings.TrimSpace(m.Text) == "" {
			continue
		}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].SortKey < fresh[j].SortKey })

	// A new message invalidates any in-progress response for this chat.
	if st.Generating && st.cancel != nil {
		logger.WithChat(s.logger, chatID, st.ContactName).Info("New message arrived, canceling in-flight generation")
		st.cancel()
	}

	if st.debounce != nil {
		st.debounce.Stop()
		st.debounce = nil
	}

	for _, m := range fresh {
		s.appendHistory(st, models.Message{Role: models.RoleUser, Content: strings.TrimSpace(m.Text)})
		if m.SortKey > st.LastSeenSortKey {
			st.LastSeenSortKey = m.SortKey
		}
		s.metrics.RecordMessageObserved()
	}
	st.LastMessageAt = time.Now()

	s.logger.WithFields(logrus.Fields{
		"chat_id":   chatID,
		"contact":   st.ContactName,
		"new":       len(fresh),
		"watermark": st.LastSeenSortKey,
	}).Debug("Buffered new messages, debouncing")

	st.debounce = time.AfterFunc(s.debounce, func() { s.debounceFired(chatID) })
}

// debounceFired runs when a chat's burst has settled: the chat moves to the
// front of the response queue, displacing any stale position it held.
func (s *Scheduler) debounceFired(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.chats[chatID]
	if !ok {
		return
	}
	st.debounce = nil

	if !s.queue.pushFront(chatID) {
		// Queue full: admission silently dropped. The messages stay in
		// history and a later burst re-queues the chat.
		s.logger.WithField("chat_id", chatID).Warn("Response queue full, dropping admission")
		s.metrics.RecordQueueDrop()
	} else {
		s.metrics.RecordDebounceFire()
	}
	s.metrics.SetQueueDepth(float64(s.queue.len()))
}

// DispatchNext pops the front chat and starts its response generation,
// unless one is already in flight system-wide. It reports whether a
// generation was started.
func (s *Scheduler) DispatchNext(ctx context.Context) bool {
	s.mu.Lock()

	if s.busy {
		s.mu.Unlock()
		return false
	}
	chatID, ok := s.queue.popFront()
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.metrics.SetQueueDepth(float64(s.queue.len()))

	st := s.chats[chatID]
	s.busy = true
	st.Generating = true
	genCtx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	if st.debounce != nil {
		st.debounce.Stop()
		st.debounce = nil
	}

	contact := st.ContactName
	history := append([]models.Message(nil), st.History...)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.generate(genCtx, cancel, st, contact, history)
	return true
}

// generate runs the response protocol for one chat:
// Idle -> Generating -> {Sent | Canceled | Failed} -> Idle.
func (s *Scheduler) generate(ctx context.Context, cancel context.CancelFunc, st *ChatState, contact string, history []models.Message) {
	defer s.wg.Done()
	defer cancel()
	defer s.clearGenerating(st)

	log := logger.WithChat(s.logger, st.ChatID, contact).WithField("attempt_id", uuid.NewString())
	log.Info("Generating response")
	started := time.Now()

	profile, err := s.style.Profile(ctx, contact)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("Generation canceled during style profiling")
			s.metrics.RecordGeneration("canceled")
			return
		}
		log.WithError(err).Warn("Style profile unavailable, continuing without it")
		profile = nil
	}
	if ctx.Err() != nil {
		log.Info("Generation canceled")
		s.metrics.RecordGeneration("canceled")
		return
	}

	text, err := s.composer.Compose(ctx, contact, profile, history)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("Generation canceled during composition")
			s.metrics.RecordGeneration("canceled")
		} else {
			log.WithError(err).Error("Response generation failed")
			s.metrics.RecordGeneration("failed")
		}
		return
	}
	s.metrics.RecordModelRequest(time.Since(started))

	if ctx.Err() != nil {
		log.Info("Generation canceled before sending")
		s.metrics.RecordGeneration("canceled")
		return
	}

	s.mu.Lock()
	s.appendHistory(st, models.Message{Role: models.RoleAssistant, Content: text})
	s.mu.Unlock()

	segments := splitSegments(text)
	for i, segment := range segments {
		if i > 0 {
			select {
			case <-ctx.Done():
				log.WithField("sent_segments", i).Info("Generation canceled between sends")
				s.metrics.RecordGeneration("canceled")
				return
			case <-time.After(s.pacing):
			}
		}
		if err := s.platform.SendMessage(ctx, st.ChatID, segment); err != nil {
			if ctx.Err() != nil {
				log.WithField("sent_segments", i).Info("Generation canceled during send")
				s.metrics.RecordGeneration("canceled")
			} else {
				log.WithError(err).Error("Failed to send response segment")
				s.metrics.RecordGeneration("failed")
			}
			return
		}
		s.metrics.RecordSend()
		log.WithFields(logrus.Fields{
			"segment": i + 1,
			"of":      len(segments),
		}).Info("Sent message")
	}

	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	s.metrics.RecordGeneration("sent")
	log.WithField("segments", len(segments)).Info("Response complete")
}

func (s *Scheduler) clearGenerating(st *ChatState) {
	s.mu.Lock()
	st.Generating = false
	st.cancel = nil
	s.busy = false
	s.mu.Unlock()
}

// splitSegments splits a response on the multi-message delimiter into
// trimmed, non-empty segments.
func splitSegments(text string) []string {
	parts := strings.Split(text, segmentDelimiter)
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// Summary is the final state snapshot logged at shutdown.
type Summary struct {
	TrackedChats  int
	QueuedChats   int
	ResponsesSent int64
}

func (s *Scheduler) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		TrackedChats:  len(s.chats),
		QueuedChats:   s.queue.len(),
		ResponsesSent: s.sent,
	}
}

// Wait blocks until any in-flight generation has unwound.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
