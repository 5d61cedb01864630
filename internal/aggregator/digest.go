package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ObiAU/newscurator/internal/logging"
	"github.com/ObiAU/newscurator/internal/models"
)

const digestTimeout = 2 * time.Minute

// Publisher delivers an aggregated feed somewhere outside the process.
type Publisher interface {
	PublishFeed(ctx context.Context, articles []models.Article) error
}

// Digest periodically aggregates a fixed set of topics and publishes the feed.
type Digest struct {
	aggregator *Aggregator
	publisher  Publisher
	topics     []models.Topic
	logger     *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewDigest validates the cron schedule and timezone. An empty timezone means UTC.
func NewDigest(agg *Aggregator, publisher Publisher, topics []models.Topic, schedule, timezone string, logger *slog.Logger) (*Digest, error) {
	if agg == nil || publisher == nil {
		return nil, errors.New("digest needs an aggregator and a publisher")
	}
	if len(topics) == 0 {
		return nil, errors.New("digest needs at least one topic")
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	d := &Digest{
		aggregator: agg,
		publisher:  publisher,
		topics:     topics,
		logger:     logging.OrDiscard(logger),
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}

	id, err := d.cron.AddFunc(schedule, d.job)
	if err != nil {
		return nil, fmt.Errorf("add cron: %w", err)
	}
	d.entryID = id
	return d, nil
}

// RunOnce aggregates the configured topics and publishes the resulting feed.
func (d *Digest) RunOnce(ctx context.Context) ([]models.Article, error) {
	articles := d.aggregator.Aggregate(ctx, d.topics)
	if len(articles) == 0 {
		d.logger.Info("digest produced no articles")
		return articles, nil
	}

	if err := d.publisher.PublishFeed(ctx, articles); err != nil {
		return articles, fmt.Errorf("failed to publish digest: %w", err)
	}

	d.logger.Info("digest published", "articles", len(articles))
	return articles, nil
}

// Start schedules the digest until ctx is cancelled or Stop is called.
func (d *Digest) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.running = true
	d.cron.Start()

	go func(done <-chan struct{}) {
		<-done
		d.Stop()
	}(d.ctx.Done())

	d.logger.Info("digest scheduled", "next", d.Next())
}

// Stop halts the schedule and waits for a running digest to finish.
func (d *Digest) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	<-d.cron.Stop().Done()
}

// Next reports the next scheduled run, or the zero time when not started.
func (d *Digest) Next() time.Time {
	return d.cron.Entry(d.entryID).Next
}

func (d *Digest) job() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	parent := d.ctx
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, digestTimeout)
	defer cancel()

	if _, err := d.RunOnce(ctx); err != nil {
		d.logger.Error("digest run failed", "error", err)
	}
}
