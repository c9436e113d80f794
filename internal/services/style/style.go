package style

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ReplAI-Neo/ReplAI/internal/models"
	"github.com/ReplAI-Neo/ReplAI/internal/services/ai"
	"github.com/ReplAI-Neo/ReplAI/internal/services/corpus"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const maxGuidelines = 6

// Fallback used when the model cannot produce parseable structured output.
const (
	genericSummary = "Casual, friendly texter who keeps messages short and conversational."
)

var genericGuidelines = []string{
	"Keep replies short, usually one sentence.",
	"Write casually, lowercase is fine.",
	"Match the other person's energy and tone.",
}

// Corpus is the slice of the historical dataset the profiler needs.
type Corpus interface {
	MessagesFor(contact string) ([]string, error)
	LargestContact() (name string, messages []string, ok bool, err error)
}

// Service computes writing-style profiles for contacts.
type Service interface {
	// Profile returns the contact's style profile, computing and memoizing
	// it on first call. A nil profile with nil error means no corpus is
	// available for anyone; that result is terminal for the process.
	Profile(ctx context.Context, contactName string) (*models.StyleProfile, error)
}

// LLMProfiler derives style profiles by asking the model to analyze a sample
// of the contact's historical outgoing messages.
type LLMProfiler struct {
	corpus      Corpus
	ai          ai.Client
	cache       *gocache.Cache
	minMessages int
	maxExamples int
	logger      *logrus.Logger
}

// NewLLMProfiler creates a profiler. Profiles are memoized for the process
// lifetime, including the "no profile available" result.
func NewLLMProfiler(c Corpus, client ai.Client, minMessages, maxExamples int, logger *logrus.Logger) *LLMProfiler {
	return &LLMProfiler{
		corpus:      c,
		ai:          client,
		cache:       gocache.New(gocache.NoExpiration, gocache.NoExpiration),
		minMessages: minMessages,
		maxExamples: maxExamples,
		logger:      logger,
	}
}

func (p *LLMProfiler) Profile(ctx context.Context, contactName string) (*models.StyleProfile, error) {
	key := corpus.NormalizeContact(contactName)

	if val, found := p.cache.Get(key); found {
		return val.(*models.StyleProfile), nil
	}

	profile, err := p.compute(ctx, key)
	if err != nil {
		// Cancellation is not a terminal answer; leave the cache empty so a
		// later generation can retry.
		return nil, err
	}

	p.cache.Set(key, profile, gocache.NoExpiration)
	return profile, nil
}

func (p *LLMProfiler) compute(ctx context.Context, contact string) (*models.StyleProfile, error) {
	sample, source, err := p.sampleMessages(contact)
	if err != nil || len(sample) == 0 {
		if err != nil {
			p.logger.WithError(err).WithField("contact", contact).Warn("Corpus lookup failed, no style profile")
		} else {
			p.logger.WithField("contact", contact).Info("No corpus messages, no style profile")
		}
		return nil, nil
	}

	summary, guidelines, err := p.analyze(ctx, source, sample)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.WithError(err).WithFields(logrus.Fields{
			"contact": contact,
			"source":  source,
		}).Warn("Style analysis failed, using generic profile")
		summary = genericSummary
		guidelines = genericGuidelines
	}

	profile := &models.StyleProfile{
		Summary:    summary,
		Guidelines: guidelines,
		Examples:   exampleSample(sample, p.maxExamples),
		Source:     source,
	}

	p.logger.WithFields(logrus.Fields{
		"contact":    contact,
		"source":     source,
		"sampled":    len(sample),
		"guidelines": len(profile.Guidelines),
		"examples":   len(profile.Examples),
	}).Info("Style profile computed")

	return profile, nil
}

// sampleMessages applies the corpus policy: the contact's most recent
// minMessages when they have enough history, all of it when they have some,
// and the largest corpus in the dataset as a fallback when they have none.
// The returned sample is ordered most recent first.
func (p *LLMProfiler) sampleMessages(contact string) ([]string, string, error) {
	msgs, err := p.corpus.MessagesFor(contact)
	if err != nil {
		return nil, "", err
	}

	source := contact
	if len(msgs) == 0 {
		name, fallback, ok, err := p.corpus.LargestContact()
		if err != nil || !ok {
			return nil, "", err
		}
		msgs = fallback
		source = name
	}

	recent := make([]string, len(msgs))
	for i, m := range msgs {
		recent[len(msgs)-1-i] = m
	}
	if len(recent) > p.minMessages {
		recent = recent[:p.minMessages]
	}
	return recent, source, nil
}

func (p *LLMProfiler) analyze(ctx context.Context, source string, sample []string) (string, []string, error) {
	var sb strings.Builder
	for i, msg := range sample {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, msg)
	}

	messages := []models.Message{
		{
			Role: models.RoleSystem,
			Content: "You analyze a person's texting style from their real messages. " +
				"Respond with JSON only, no prose: " +
				`{"summary": "<one short sentence describing their style>", ` +
				`"guidelines": ["<3 to 6 short imperatives for imitating them>"]}`,
		},
		{
			Role: models.RoleUser,
			Content: fmt.Sprintf("Here are %d recent messages %s sent, most recent first:\n\n%s",
				len(sample), source, sb.String()),
		},
	}

	raw, err := p.ai.Complete(ctx, messages)
	if err != nil {
		return "", nil, err
	}

	summary, guidelines, err := parseAnalysis(raw)
	if err != nil {
		return "", nil, err
	}
	return summary, guidelines, nil
}

func parseAnalysis(raw string) (string, []string, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed struct {
		Summary    string   `json:"summary"`
		Guidelines []string `json:"guidelines"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return "", nil, fmt.Errorf("unparseable style analysis: %w", err)
	}

	summary := strings.TrimSpace(parsed.Summary)
	guidelines := make([]string, 0, len(parsed.Guidelines))
	for _, g := range parsed.Guidelines {
		if g = strings.TrimSpace(g); g != "" {
			guidelines = append(guidelines, g)
		}
	}
	if summary == "" || len(guidelines) == 0 {
		return "", nil, fmt.Errorf("style analysis missing summary or guidelines")
	}
	if len(guidelines) > maxGuidelines {
		guidelines = guidelines[:maxGuidelines]
	}
	return summary, guidelines, nil
}

// exampleSample takes an evenly-strided sample across the most-recent-first
// message list, then reverses it so the retained examples read in
// chronological order.
func exampleSample(recent []string, max int) []string {
	if max <= 0 || len(recent) == 0 {
		return nil
	}

	picked := recent
	if len(recent) > max {
		picked = make([]string, 0, max)
		step := float64(len(recent)) / float64(max)
		for i := 0; i < max; i++ {
			picked = append(picked, recent[int(float64(i)*step)])
		}
	}

	examples := make([]string, len(picked))
	for i, msg := range picked {
		examples[len(picked)-1-i] = msg
	}
	return examples
}
