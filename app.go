package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ObiAU/newscurator/internal/aggregator"
	"github.com/ObiAU/newscurator/internal/ai"
	"github.com/ObiAU/newscurator/internal/chat"
	"github.com/ObiAU/newscurator/internal/config"
	"github.com/ObiAU/newscurator/internal/logging"
	"github.com/ObiAU/newscurator/internal/models"
	"github.com/ObiAU/newscurator/internal/ratelimit"
	"github.com/ObiAU/newscurator/internal/server"
	"github.com/ObiAU/newscurator/internal/sources"
	"github.com/ObiAU/newscurator/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	aggregator *aggregator.Aggregator
	limiter    ratelimit.Store
	server     *server.Server
}

func newApp() (*app, error) {
	if flagConfig != "" {
		if err := os.Setenv("NEWSCURATOR_CONFIG", flagConfig); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.LogLevel)

	var completions ai.ChatCompletions
	if cfg.LLM.APIKey != "" {
		completions = ai.NewCompletions(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	} else {
		logger.Warn("LLM API key not set, chat disabled and results will not be filtered")
	}
	filter := ai.NewRelevanceFilter(completions, cfg.LLM.FilterModelOrDefault(), logger.With("component", "filter"))

	var searcher models.Searcher
	var agg *aggregator.Aggregator
	if cfg.Exa.APIKey != "" {
		searcher = sources.NewExaClient(cfg.Exa.APIKey, sources.WithBaseURL(cfg.Exa.BaseURL))
		agg = aggregator.New(searcher, filter, logger.With("component", "aggregator"))
	} else {
		logger.Warn("Exa API key not set, search and refresh disabled")
	}

	limiter, err := newLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	opts := server.Options{
		Limiter:        limiter,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger.With("component", "http"),
	}
	if completions != nil {
		toolbox := chat.NewToolbox(searcher, filter, logger.With("component", "tools"))
		opts.Chat = chat.NewOrchestrator(completions, toolbox, chat.Options{
			Model:         cfg.LLM.Model,
			MaxToolRounds: cfg.LLM.MaxToolRounds,
			Logger:        logger.With("component", "chat"),
		})
	}
	if agg != nil {
		opts.Feed = agg
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		aggregator: agg,
		limiter:    limiter,
		server:     server.New(opts),
	}, nil
}

func newLimiter(cfg config.RateLimitConfig) (ratelimit.Store, error) {
	if cfg.Backend == "sqlite" {
		store, err := ratelimit.NewSQLiteStore(cfg.SQLitePath, cfg.Limit, cfg.Window)
		if err != nil {
			return nil, fmt.Errorf("init rate limit store: %w", err)
		}
		return store, nil
	}
	return ratelimit.NewMemoryStore(cfg.Limit, cfg.Window), nil
}

func (a *app) Close() {
	if err := a.limiter.Close(); err != nil {
		a.logger.Warn("close rate limit store", "error", err)
	}
}

// Serve runs the HTTP API until ctx is cancelled, along with the Telegram
// digest when one is configured.
func (a *app) Serve(ctx context.Context) error {
	if a.cfg.DigestEnabled() && a.aggregator != nil {
		digest, err := a.newDigest()
		if err != nil {
			return err
		}
		digest.Start(ctx)
		defer digest.Stop()
	}

	httpServer := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("newscurator listening", "addr", a.cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// DigestOnce builds the configured digest. It is sent to Telegram when a bot
// is configured, otherwise written to out as JSON.
func (a *app) DigestOnce(ctx context.Context, out io.Writer) error {
	if a.aggregator == nil {
		return errors.New("EXA_API_KEY is not configured")
	}
	if len(a.cfg.Digest.Topics) == 0 {
		return errors.New("no digest topics configured")
	}

	if a.cfg.DigestEnabled() {
		digest, err := a.newDigest()
		if err != nil {
			return err
		}
		_, err = digest.RunOnce(ctx)
		return err
	}

	articles := a.aggregator.Aggregate(ctx, a.cfg.DigestTopics())
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(articles)
}

func (a *app) newDigest() (*aggregator.Digest, error) {
	publisher, err := telegram.NewPublisher(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID,
		telegram.WithLogger(a.logger.With("component", "telegram")))
	if err != nil {
		return nil, err
	}
	return aggregator.NewDigest(a.aggregator, publisher, a.cfg.DigestTopics(),
		a.cfg.Digest.Schedule, a.cfg.Digest.Timezone, a.logger.With("component", "digest"))
}
