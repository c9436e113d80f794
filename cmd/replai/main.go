package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ReplAI-Neo/ReplAI/internal/composer"
	"github.com/ReplAI-Neo/ReplAI/internal/config"
	"github.com/ReplAI-Neo/ReplAI/internal/middleware"
	"github.com/ReplAI-Neo/ReplAI/internal/notify"
	"github.com/ReplAI-Neo/ReplAI/internal/platform"
	"github.com/ReplAI-Neo/ReplAI/internal/scheduler"
	"github.com/ReplAI-Neo/ReplAI/internal/services/ai"
	"github.com/ReplAI-Neo/ReplAI/internal/services/corpus"
	"github.com/ReplAI-Neo/ReplAI/internal/services/memory"
	"github.com/ReplAI-Neo/ReplAI/internal/services/style"
	"github.com/ReplAI-Neo/ReplAI/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration; missing credentials are fatal at startup.
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting ReplAI agent...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Collaborators
	platformClient := platform.NewHTTPClient(&cfg.Platform, log)
	modelClient := ai.NewOpenAIClient(&cfg.Model, log)
	corpusLoader := corpus.NewLoader(cfg.Style.CorpusPath, cfg.Style.OwnerName, log)
	styleService := style.NewLLMProfiler(corpusLoader, modelClient, cfg.Style.MinMessages, cfg.Style.MaxExamples, log)

	var retriever memory.Retriever
	if tool := memory.NewToolRetriever(&cfg.Memory, log); tool != nil {
		retriever = tool
		log.WithField("command", cfg.Memory.Command).Info("Memory retrieval enabled")
	}

	responseComposer := composer.New(modelClient, retriever, cfg.Memory.Limit, cfg.Agent.Persona, log)

	// Orchestration core
	metrics := middleware.NewMetrics()
	sched := scheduler.New(scheduler.Config{
		Debounce:     cfg.Agent.MessageDebounce,
		MaxQueueSize: cfg.Agent.MaxQueueSize,
		MaxHistory:   cfg.Agent.MaxHistory,
		SendPacing:   cfg.Agent.SendPacing,
	}, platformClient, responseComposer, styleService, metrics, log)

	poller := scheduler.NewPoller(
		platformClient,
		sched,
		cfg.Agent.PollInterval,
		cfg.Agent.PollBackoff,
		cfg.Platform.MessageLimit,
		log,
	)

	// Operator notification channel
	notifier, err := notify.NewNotifier(&cfg.Notify, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize operator notifications")
	}

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Start periodic gauge updates
	go startPeriodicTasks(ctx, sched, metrics)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	notifier.Startup()

	// Main poll loop
	go poller.Run(ctx)

	// Wait for shutdown signal
	<-sigChan
	log.Info("Shutdown signal received")

	// Stop the loop and let any in-flight generation unwind
	cancel()
	sched.Wait()

	summary := sched.Summarize()
	log.WithFields(logrus.Fields{
		"tracked_chats":  summary.TrackedChats,
		"queued_chats":   summary.QueuedChats,
		"responses_sent": summary.ResponsesSent,
	}).Info("Agent stopped")

	notifier.Shutdown(summary)
}

// startPeriodicTasks refreshes state gauges in the background
func startPeriodicTasks(ctx context.Context, sched *scheduler.Scheduler, metrics *middleware.Metrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary := sched.Summarize()
			metrics.SetTrackedChats(float64(summary.TrackedChats))
			metrics.SetQueueDepth(float64(summary.QueuedChats))
		}
	}
}
