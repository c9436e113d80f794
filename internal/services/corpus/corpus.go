package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// conversation mirrors one entry of the historical dataset: a JSON array of
// conversation objects, each holding the participants and their messages.
type conversation struct {
	Participants []string     `json:"participants"`
	Messages     []rawMessage `json:"messages"`
}

type rawMessage struct {
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// Loader loads the historical conversation dataset at most once per process.
// Both a successful load and a failed one are cached; callers after a failure
// get the same error without re-reading the file.
type Loader struct {
	path   string
	owner  string
	logger *logrus.Logger

	once      sync.Once
	byContact map[string][]string
	loadErr   error
}

// NewLoader creates a corpus loader for the dataset at path. owner is the
// dataset owner's sender name; only the owner's outgoing messages feed style
// profiles.
func NewLoader(path, owner string, logger *logrus.Logger) *Loader {
	return &Loader{
		path:   path,
		owner:  strings.TrimSpace(owner),
		logger: logger,
	}
}

// NormalizeContact maps a display name to its corpus lookup key.
func NormalizeContact(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// MessagesFor returns the owner's outgoing messages in conversations with the
// given contact, oldest first. A missing contact yields an empty slice.
func (l *Loader) MessagesFor(contact string) ([]string, error) {
	l.load()
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	return l.byContact[NormalizeContact(contact)], nil
}

// LargestContact returns the contact with the most outgoing messages in the
// whole dataset, used as the style fallback. ok is false when the corpus is
// empty.
func (l *Loader) LargestContact() (name string, messages []string, ok bool, err error) {
	l.load()
	if l.loadErr != nil {
		return "", nil, false, l.loadErr
	}

	for contact, msgs := range l.byContact {
		if len(msgs) > len(messages) || (len(msgs) == len(messages) && contact < name) {
			name = contact
			messages = msgs
		}
	}
	return name, messages, name != "", nil
}

func (l *Loader) load() {
	l.once.Do(func() {
		data, err := os.ReadFile(l.path)
		if err != nil {
			l.loadErr = fmt.Errorf("failed to read corpus: %w", err)
			l.logger.WithError(err).WithField("path", l.path).Warn("Corpus unavailable")
			return
		}

		var conversations []conversation
		if err := json.Unmarshal(data, &conversations); err != nil {
			l.loadErr = fmt.Errorf("failed to parse corpus: %w", err)
			l.logger.WithError(err).WithField("path", l.path).Warn("Corpus unparseable")
			return
		}

		type stamped struct {
			at   time.Time
			text string
		}
		perContact := make(map[string][]stamped)

		owner := NormalizeContact(l.owner)
		for _, conv := range conversations {
			contact := l.counterpart(conv.Participants)
			if contact == "" {
				continue
			}
			for _, msg := range conv.Messages {
				if NormalizeContact(msg.Sender) != owner {
					continue
				}
				text := strings.TrimSpace(msg.Text)
				if text == "" {
					continue
				}
				perContact[contact] = append(perContact[contact], stamped{
					at:   parseTimestamp(msg.Timestamp),
					text: text,
				})
			}
		}

		l.byContact = make(map[string][]string, len(perContact))
		total := 0
		for contact, msgs := range perContact {
			sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].at.Before(msgs[j].at) })
			texts := make([]string, len(msgs))
			for i, m := range msgs {
				texts[i] = m.text
			}
			l.byContact[contact] = texts
			total += len(texts)
		}

		l.logger.WithFields(logrus.Fields{
			"contacts": len(l.byContact),
			"messages": total,
		}).Info("Corpus loaded")
	})
}

// counterpart picks the first non-owner participant of a conversation.
func (l *Loader) counterpart(participants []string) string {
	owner := NormalizeContact(l.owner)
	for _, p := range participants {
		if key := NormalizeContact(p); key != owner && key != "" {
			return key
		}
	}
	return ""
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
