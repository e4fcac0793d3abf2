// Package engine wires configuration into a running campaign engine:
// stores, services, the delivery pipeline, background workers and the
// tracking queue consumer.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/api"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/pkg/retry"
	"github.com/ignite/campaign-engine/internal/repository/memory"
	"github.com/ignite/campaign-engine/internal/repository/postgres"
	"github.com/ignite/campaign-engine/internal/service/analytics"
	"github.com/ignite/campaign-engine/internal/service/audience"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/delivery"
	"github.com/ignite/campaign-engine/internal/service/events"
	"github.com/ignite/campaign-engine/internal/service/sending"
	"github.com/ignite/campaign-engine/internal/service/suppression"
	"github.com/ignite/campaign-engine/internal/tracking"
	"github.com/ignite/campaign-engine/internal/transport"
	"github.com/ignite/campaign-engine/internal/worker"
)

const (
	lockTTL          = 30 * time.Second
	schedulerLockKey = "campaign-engine:scheduler"
	sweeperLockKey   = "campaign-engine:sweeper"
)

// SubscriberStore is the audience store the engine resolves against. Both
// the Postgres and memory stores satisfy it.
type SubscriberStore interface {
	audience.SubscriberSource
	Upsert(ctx context.Context, s domain.Subscriber) error
}

type stores struct {
	campaigns    campaign.Repository
	subscribers  SubscriberStore
	deliveries   delivery.Repository
	events       events.Repository
	eventReads   analytics.EventReader
	suppressions suppression.Repository
}

// Option adjusts engine construction.
type Option func(*options)

type options struct {
	transport sending.Transport
	bodies    sending.BodySource
	limiter   sending.Limiter
}

// WithTransport replaces the configured outbound transport.
func WithTransport(t sending.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithBodySource replaces the configured body store.
func WithBodySource(b sending.BodySource) Option {
	return func(o *options) { o.bodies = b }
}

// WithLimiter replaces the configured rate limiter.
func WithLimiter(l sending.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// Engine is a fully wired campaign engine.
type Engine struct {
	cfg     *config.Config
	db      *sql.DB
	replica *sql.DB
	redis   *redis.Client

	Subscribers  SubscriberStore
	Campaigns    *campaign.Service
	Deliveries   *delivery.Service
	Suppressions *suppression.Service
	Ingestor     *events.Ingestor
	Analytics    *analytics.Aggregator
	Pipeline     *sending.Pipeline
	Signer       *tracking.Signer
	Health       *api.HealthChecker

	scheduler *worker.Scheduler
	sweeper   *worker.Sweeper
	consumer  *tracking.Consumer
}

// New builds an engine from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{cfg: cfg}
	st, err := e.openStores(ctx)
	if err != nil {
		return nil, err
	}
	e.redis = connectRedis(ctx, cfg.Redis)

	e.Subscribers = st.subscribers
	e.Suppressions = suppression.NewService(st.suppressions)
	e.Deliveries = delivery.NewService(st.deliveries)
	e.Ingestor = events.NewIngestor(st.events, e.Deliveries, e.Suppressions)
	resolver := audience.NewResolver(st.subscribers, e.Suppressions)
	e.Campaigns = campaign.NewService(st.campaigns, resolver, distlock.NewLocker(e.redis, lockTTL))
	e.Campaigns.SetFailureThreshold(cfg.Delivery.FailureThreshold)
	e.Analytics = analytics.NewAggregator(st.campaigns, st.eventReads, cfg.Analytics.RecentEventsLimit)
	e.Signer = tracking.NewSigner(cfg.Tracking.Secret, cfg.Tracking.BaseURL)

	if o.transport == nil {
		if o.transport, err = transport.New(ctx, cfg.Transport); err != nil {
			e.Close()
			return nil, fmt.Errorf("transport: %w", err)
		}
	}
	if o.bodies == nil {
		if o.bodies, err = transport.NewBodySource(ctx, cfg.BodyStore); err != nil {
			e.Close()
			return nil, fmt.Errorf("body store: %w", err)
		}
	}
	if o.limiter == nil {
		o.limiter = e.newLimiter()
	}

	e.Pipeline = sending.NewPipeline(sending.Config{
		Workers:     cfg.Delivery.Workers,
		CallTimeout: cfg.Delivery.CallTimeout(),
		Retry: &retry.Policy{
			MaxAttempts: cfg.Delivery.MaxAttempts,
			BaseDelay:   cfg.Delivery.BaseBackoff(),
			MaxDelay:    cfg.Delivery.MaxBackoff(),
			MinDelay:    10 * time.Millisecond,
		},
	}, o.transport, o.bodies, o.limiter, st.deliveries, e.Ingestor, e.Campaigns, e.Signer)
	e.Campaigns.SetDispatcher(e.Pipeline)
	e.Health = api.NewHealthChecker(e.db, e.redis, e.Pipeline)

	if cfg.Scheduler.Enabled {
		e.scheduler = worker.NewScheduler(e.Campaigns, cfg.Scheduler.PollInterval(), e.leaderLock(schedulerLockKey))
		e.sweeper = worker.NewSweeper(e.Campaigns, e.Deliveries, e.Pipeline,
			cfg.Scheduler.SweepInterval(), cfg.Scheduler.StuckAfter(), e.leaderLock(sweeperLockKey))
	}

	if cfg.Tracking.SQSQueueURL != "" {
		client, err := tracking.NewSQSClient(ctx, cfg.Tracking.SQSRegion)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("tracking queue: %w", err)
		}
		e.consumer = tracking.NewConsumer(client, cfg.Tracking.SQSQueueURL, e.Ingestor)
	}

	logger.Info("engine ready",
		"driver", cfg.Database.Driver,
		"transport", o.transport.Name(),
		"redis", e.redis != nil,
		"workers", cfg.Delivery.Workers,
		"scheduler", cfg.Scheduler.Enabled,
	)
	return e, nil
}

func (e *Engine) openStores(ctx context.Context) (*stores, error) {
	dbCfg := e.cfg.Database
	if dbCfg.Driver == "memory" {
		evs := memory.NewEventRepo()
		return &stores{
			campaigns:    memory.NewCampaignRepo(),
			subscribers:  memory.NewSubscriberRepo(),
			deliveries:   memory.NewDeliveryRepo(),
			events:       evs,
			eventReads:   evs,
			suppressions: memory.NewSuppressionRepo(),
		}, nil
	}

	db, err := postgres.Open(ctx, dbCfg.DSN, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	e.db = db

	evs := postgres.NewEventRepo(db)
	st := &stores{
		campaigns:    postgres.NewCampaignRepo(db),
		subscribers:  postgres.NewSubscriberRepo(db),
		deliveries:   postgres.NewDeliveryRepo(db),
		events:       evs,
		eventReads:   evs,
		suppressions: postgres.NewSuppressionRepo(db),
	}
	if dbCfg.ReplicaDSN != "" {
		replica, err := postgres.Open(ctx, dbCfg.ReplicaDSN, dbCfg)
		if err != nil {
			logger.Warn("replica unavailable, analytics reads use the primary", "error", err)
		} else {
			e.replica = replica
			st.eventReads = postgres.NewEventRepo(replica)
		}
	}
	return st, nil
}

// connectRedis returns nil when Redis is not configured or unreachable.
func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled() {
		return nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using process-local locks and limiter", "error", err)
		client.Close()
		return nil
	}
	return client
}

func (e *Engine) newLimiter() sending.Limiter {
	d := e.cfg.Delivery
	if d.DistributedRateLimit && e.redis != nil {
		return sending.NewRedisLimiter(e.redis, "delivery", d.RatePerSecond)
	}
	return sending.NewLocalLimiter(d.RatePerSecond, d.Burst)
}

// leaderLock returns nil when there is no shared backend, so a single
// process runs every tick.
func (e *Engine) leaderLock(key string) distlock.DistLock {
	if e.redis == nil && e.db == nil {
		return nil
	}
	return distlock.NewLock(e.redis, e.db, key, lockTTL)
}

// APIDeps returns the services the HTTP API serves.
func (e *Engine) APIDeps() api.Deps {
	return api.Deps{
		Campaigns:    e.Campaigns,
		Analytics:    e.Analytics,
		Deliveries:   e.Deliveries,
		Ingestor:     e.Ingestor,
		Suppressions: e.Suppressions,
		Health:       e.Health,
	}
}

// Start launches the background workers and the tracking consumer.
func (e *Engine) Start(ctx context.Context) error {
	if e.scheduler != nil {
		if err := e.scheduler.Start(); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}
	if e.sweeper != nil {
		if err := e.sweeper.Start(); err != nil {
			return fmt.Errorf("sweeper: %w", err)
		}
	}
	if e.consumer != nil {
		e.consumer.Start(ctx)
	}
	return nil
}

// Shutdown stops the workers, then cancels in-flight runs and waits for
// them to record their outcome or for ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	if e.sweeper != nil {
		e.sweeper.Stop()
	}
	if e.consumer != nil {
		e.consumer.Stop()
	}
	var err error
	if e.Pipeline != nil {
		err = e.Pipeline.Shutdown(ctx)
	}
	return errors.Join(err, e.Close())
}

// Close releases database and Redis connections.
func (e *Engine) Close() error {
	var errs []error
	if e.replica != nil {
		errs = append(errs, e.replica.Close())
	}
	if e.db != nil {
		errs = append(errs, e.db.Close())
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	return errors.Join(errs...)
}
