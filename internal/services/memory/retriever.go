package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ReplAI-Neo/ReplAI/internal/config"
	"github.com/ReplAI-Neo/ReplAI/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrRetrieval marks memory-retrieval failures. They are never fatal;
// generation proceeds without memory context.
var ErrRetrieval = errors.New("memory retrieval error")

// Retriever fetches semantically similar historical conversation snippets.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]models.MemoryHit, error)
}

// ToolRetriever shells out to an external retrieval tool. The subprocess is
// started under the caller's context so a canceled generation kills it
// mid-flight.
type ToolRetriever struct {
	command string
	args    []string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewToolRetriever creates a retriever for the configured tool, or nil when
// retrieval is disabled.
func NewToolRetriever(cfg *config.MemoryConfig, logger *logrus.Logger) *ToolRetriever {
	if !cfg.Enabled || cfg.Command == "" {
		return nil
	}
	return &ToolRetriever{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Search invokes the tool with the query and result limit as trailing
// arguments and parses its stdout as a JSON array of hits.
func (r *ToolRetriever) Search(ctx context.Context, query string, limit int) ([]models.MemoryHit, error) {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := append(append([]string{}, r.args...), query, strconv.Itoa(limit))
	cmd := exec.CommandContext(runCtx, r.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// Canceled by the caller, not a retrieval failure.
			return nil, ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrRetrieval, detail)
	}

	hits, err := parseHits(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"query": query,
		"hits":  len(hits),
	}).Debug("Memory retrieval completed")

	return hits, nil
}

func parseHits(output []byte) ([]models.MemoryHit, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var hits []models.MemoryHit
	if err := json.Unmarshal(trimmed, &hits); err != nil {
		return nil, fmt.Errorf("%w: unparseable tool output: %v", ErrRetrieval, err)
	}
	return hits, nil
}
