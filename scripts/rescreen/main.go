// Command rescreen re-enqueues text screening for historical responses.
// Useful after a classifier outage window, where submissions were stored but
// their text answers degraded to non-flagging verdicts.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/noah-isme/mhp-survey-api/internal/repository"
	"github.com/noah-isme/mhp-survey-api/internal/service"
	"github.com/noah-isme/mhp-survey-api/pkg/config"
	"github.com/noah-isme/mhp-survey-api/pkg/database"
	"github.com/noah-isme/mhp-survey-api/pkg/jobs"
	"github.com/noah-isme/mhp-survey-api/pkg/logger"
)

func main() {
	var (
		since   string
		until   string
		dryRun  bool
		workers int
	)

	flag.StringVar(&since, "since", "", "start of the window, RFC3339 (required)")
	flag.StringVar(&until, "until", "", "end of the window, RFC3339 (defaults to now)")
	flag.BoolVar(&dryRun, "dry-run", false, "list matching responses without enqueueing")
	flag.IntVar(&workers, "workers", 2, "screening workers")
	flag.Parse()

	if since == "" {
		log.Fatal("-since is required")
	}
	from, err := time.Parse(time.RFC3339, since)
	if err != nil {
		log.Fatalf("invalid -since: %v", err)
	}
	to := time.Now().UTC()
	if until != "" {
		if to, err = time.Parse(time.RFC3339, until); err != nil {
			log.Fatalf("invalid -until: %v", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	const query = `SELECT DISTINCT r.id FROM survey_responses r
JOIN question_responses qr ON qr.response_id = r.id
WHERE r.flagged = FALSE AND qr.text_response IS NOT NULL
  AND r.created_at >= $1 AND r.created_at < $2
ORDER BY r.id`
	var responseIDs []string
	if err := db.SelectContext(ctx, &responseIDs, query, from, to); err != nil {
		logr.Sugar().Fatalw("failed to list responses", "error", err)
	}

	logr.Sugar().Infow("responses matched", "count", len(responseIDs), "since", from, "until", to)
	if dryRun {
		for _, id := range responseIDs {
			logr.Sugar().Infow("would rescreen", "response_id", id)
		}
		return
	}

	responseRepo := repository.NewResponseRepository(db)
	metrics := service.NewMetricsService()
	classifier := service.NewClassifierService(cfg.Classifier, logr, metrics)
	screening := service.NewScreeningService(responseRepo, classifier, nil, service.PolicyFromConfig(cfg.Screening), logr, metrics)

	queue := jobs.NewQueue("rescreen", screening.HandleJob, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: len(responseIDs) + 1,
		MaxRetries: cfg.Screening.MaxRetries,
		RetryDelay: cfg.Screening.RetryDelay,
		Logger:     logr,
	})
	screening.SetDispatcher(queue)
	queue.Start(ctx)

	for _, id := range responseIDs {
		// Empty question filter: screen every text answer of the response.
		if err := screening.Schedule(id, nil); err != nil {
			logr.Sugar().Errorw("failed to enqueue", "response_id", id, "error", err)
		}
	}

	// Drain: give the workers a window proportional to the batch, then stop.
	deadline := time.Duration(len(responseIDs)+1) * cfg.Classifier.Timeout
	select {
	case <-ctx.Done():
	case <-time.After(deadline):
	}
	queue.Stop()
	logr.Sugar().Infow("rescreen finished", "scheduled", len(responseIDs))
}
