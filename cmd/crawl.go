package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rawjobs-crawler/internal/api"
	"rawjobs-crawler/internal/companycache"
	"rawjobs-crawler/internal/config"
	"rawjobs-crawler/internal/extract"
	"rawjobs-crawler/internal/faillog"
	"rawjobs-crawler/internal/hash/sha256"
	"rawjobs-crawler/internal/logging"
	"rawjobs-crawler/internal/metrics"
	"rawjobs-crawler/internal/pipeline"
	"rawjobs-crawler/internal/search"
	"rawjobs-crawler/internal/session"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs one full crawl:
// discovery, extraction, checkpointing, and archive finalization.
func newCrawlCmd() *cobra.Command {
	var (
		keywords string
		location string
		limit    int
		output   string
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run a crawl and write a raw archive",
		Long: `Pages through the guest search endpoint for the configured query,
extracts every listing into a frozen raw record, resolves company pages
through the per-run cache, and finalizes an immutable archive. SIGINT lets
the in-flight record finish, checkpoints the partial batch, and finalizes
what was collected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if keywords != "" {
				cfg.Search.Keywords = keywords
			}
			if location != "" {
				cfg.Search.Location = location
			}
			if limit > 0 {
				cfg.Search.Limit = limit
			}
			if output != "" {
				cfg.Output.Dir = output
			}
			return runCrawl(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&keywords, "keywords", "", "search keywords (overrides config)")
	cmd.Flags().StringVar(&location, "location", "", "search location (overrides config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum listings to crawl (overrides config)")
	cmd.Flags().StringVar(&output, "output", "", "output directory (overrides config)")

	return cmd
}

func runCrawl(parent context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	metrics.Init()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := session.New(session.Config{
		UserAgent:         cfg.HTTP.UserAgent,
		Timeout:           cfg.HTTP.Timeout(),
		MaxAttempts:       cfg.HTTP.MaxAttempts,
		BackoffInitial:    cfg.HTTP.BackoffInitial(),
		BackoffMax:        cfg.HTTP.BackoffMax(),
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, logger)
	defer manager.Close()

	hasher := sha256.New()
	searcher := search.NewClient(manager, cfg.Search.BaseURL, logger)
	jobs := extract.NewJobExtractor(manager, hasher, logger)
	companies := companycache.New(extract.NewCompanyExtractor(manager, hasher, logger), nil)
	failures := faillog.New(logger, nil)

	orchestrator := pipeline.New(cfg, searcher, jobs, companies, failures, logger, nil)

	// The status server lives exactly as long as the crawl.
	serverDone := make(chan error, 1)
	if cfg.Server.Port > 0 {
		server := api.NewServer(orchestrator, logger)
		go func() {
			serverDone <- server.Serve(ctx, cfg.Server.Port)
		}()
	} else {
		close(serverDone)
	}

	summary, err := orchestrator.Run(ctx)
	stop()
	if serr := <-serverDone; serr != nil {
		logger.Warn("status server exited with error", zap.Error(serr))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("archive written",
		zap.String("dir", summary.Dir),
		zap.Int("jobs", summary.JobsWritten),
		zap.Int("companies", summary.Companies),
		zap.Int("failures", summary.Failures),
	)
	return nil
}
