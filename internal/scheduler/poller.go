package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/ReplAI-Neo/ReplAI/internal/models"
	"github.com/ReplAI-Neo/ReplAI/internal/platform"
	"github.com/sirupsen/logrus"
)

// Poller drives the agent: each tick it scans for unread chats, feeds new
// messages into the scheduler, and dispatches at most one queued chat.
type Poller struct {
	client       platform.Client
	sched        *Scheduler
	interval     time.Duration
	backoff      time.Duration
	messageLimit int
	logger       *logrus.Logger
}

// NewPoller creates a poller.
func NewPoller(client platform.Client, sched *Scheduler, interval, backoff time.Duration, messageLimit int, logger *logrus.Logger) *Poller {
	return &Poller{
		client:       client,
		sched:        sched,
		interval:     interval,
		backoff:      backoff,
		messageLimit: messageLimit,
		logger:       logger,
	}
}

// Run loops until ctx is canceled. Platform failures are logged and followed
// by a fixed backoff; the loop itself never terminates on a recoverable
// error.
func (p *Poller) Run(ctx context.Context) {
	p.logger.WithFields(logrus.Fields{
		"interval": p.interval,
		"backoff":  p.backoff,
	}).Info("Poll loop started")

	for {
		wait := p.interval
		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("Poll loop stopped")
				return
			}
			if errors.Is(err, platform.ErrPlatform) {
				p.logger.WithError(err).Warn("Platform API error, backing off")
			} else {
				p.logger.WithError(err).Error("Poll cycle failed, backing off")
			}
			wait = p.backoff
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Poll loop stopped")
			return
		case <-time.After(wait):
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	chats, err := p.client.ListUnreadChats(ctx)
	if err != nil {
		return err
	}

	for _, chat := range chats {
		msgs, err := p.client.ListRecentMessages(ctx, chat.ID, p.messageLimit)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.WithError(err).WithField("chat_id", chat.ID).Warn("Failed to fetch messages, skipping chat")
			continue
		}

		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].SortKey < msgs[j].SortKey })
		p.sched.Observe(chat.ID, displayName(chat), seedWatermark(chat, msgs), msgs)
	}

	p.sched.DispatchNext(ctx)
	return nil
}

// seedWatermark picks the starting watermark for a chat seen for the first
// time: everything older than the unread tail counts as already processed.
// Existing chats keep their own watermark; the seed is ignored on a hit.
func seedWatermark(chat models.Chat, msgs []models.PlatformMessage) int64 {
	if chat.UnreadCount <= 0 || chat.UnreadCount >= len(msgs) {
		return 0
	}
	return msgs[len(msgs)-chat.UnreadCount-1].SortKey
}

func displayName(chat models.Chat) string {
	if name := strings.TrimSpace(chat.Title); name != "" {
		return name
	}
	return chat.ID
}
