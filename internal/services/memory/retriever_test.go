package memory

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ReplAI-Neo/ReplAI/internal/config"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestParseHits(t *testing.T) {
	hits, err := parseHits([]byte(`[
		{"score": 0.91, "tags": ["plans", "dinner"], "context_messages": ["them: free friday?", "me: always"]},
		{"score": 0.42, "context_messages": ["them: lol"]}
	]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Score != 0.91 || len(hits[0].Tags) != 2 || len(hits[0].ContextMessages) != 2 {
		t.Fatalf("first hit parsed incorrectly: %+v", hits[0])
	}
}

func TestParseHits_EmptyOutput(t *testing.T) {
	for _, output := range []string{"", "  \n"} {
		hits, err := parseHits([]byte(output))
		if err != nil {
			t.Fatalf("expected empty output to yield no hits, got %v", err)
		}
		if hits != nil {
			t.Fatalf("expected nil hits for %q", output)
		}
	}
}

func TestParseHits_Garbage(t *testing.T) {
	_, err := parseHits([]byte("not json"))
	if !errors.Is(err, ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
}

func TestNewToolRetriever_DisabledIsNil(t *testing.T) {
	if r := NewToolRetriever(&config.MemoryConfig{Enabled: false, Command: "echo"}, testLogger()); r != nil {
		t.Fatal("expected nil retriever when disabled")
	}
	if r := NewToolRetriever(&config.MemoryConfig{Enabled: true, Command: ""}, testLogger()); r != nil {
		t.Fatal("expected nil retriever without a command")
	}
}

func TestSearch_RunsTool(t *testing.T) {
	r := NewToolRetriever(&config.MemoryConfig{
		Enabled: true,
		Command: "sh",
		Args:    []string{"-c", `echo '[{"score": 0.5, "context_messages": ["them: hi"]}]' # $0 $1`},
		Timeout: 5 * time.Second,
	}, testLogger())

	hits, err := r.Search(context.Background(), "hi there", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Score != 0.5 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestSearch_ToolFailure(t *testing.T) {
	r := NewToolRetriever(&config.MemoryConfig{
		Enabled: true,
		Command: "sh",
		Args:    []string{"-c", "echo boom >&2; exit 1"},
	}, testLogger())

	_, err := r.Search(context.Background(), "q", 1)
	if !errors.Is(err, ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
}

func TestSearch_CancellationIsNotRetrievalError(t *testing.T) {
	r := NewToolRetriever(&config.MemoryConfig{
		Enabled: true,
		Command: "sh",
		Args:    []string{"-c", "sleep 10"},
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := r.Search(ctx, "q", 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrRetrieval) {
		t.Fatal("cancellation must not be classified as a retrieval failure")
	}
}
