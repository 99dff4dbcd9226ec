package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/proofline/booking/libs/config"
	"github.com/proofline/booking/libs/db"
	"github.com/proofline/booking/libs/httpx"
	"github.com/proofline/booking/libs/kafkax"
	"github.com/proofline/booking/libs/runtime"
	"github.com/proofline/booking/services/booking-service/internal/meeting"
	"github.com/proofline/booking/services/booking-service/internal/notify"
	"github.com/proofline/booking/services/booking-service/internal/outbox"
	"github.com/proofline/booking/services/booking-service/internal/storage"
	"github.com/proofline/booking/services/booking-service/internal/storage/postgres"
	"github.com/proofline/booking/services/booking-service/internal/storage/sqlite"
	"github.com/redis/go-redis/v9"
)

// ledger is the configured store plus its optional event relay.
type ledger struct {
	storage.Store
	publisher *outbox.Publisher
	closers   []func()
}

func (l *ledger) Close() {
	for _, c := range l.closers {
		c()
	}
	l.Store.Close()
}

// openStore picks Postgres when DATABASE_URL is set, then SQLite when
// SQLITE_PATH is set. It returns nil when neither is configured.
func openStore(ctx context.Context, logger *slog.Logger) (*ledger, error) {
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL, db.Options{
			MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
			MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		store := postgres.New(pool)
		if config.Bool("DB_MIGRATE", true) {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, err
			}
		}
		l := &ledger{Store: store}
		if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
			writer := kafkax.NewWriter(brokers)
			l.publisher = outbox.NewPublisher(pool, outbox.NewRepository(), writer, logger, outbox.PublisherConfig{
				PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
				BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
			})
			l.closers = append(l.closers, func() { _ = writer.Close() })
		}
		logger.Info("using postgres store")
		return l, nil
	}
	if path := config.String("SQLITE_PATH", ""); path != "" {
		store, err := sqlite.New(path)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite store", "path", path)
		return &ledger{Store: store}, nil
	}
	return nil, nil
}

// infra holds the Redis-backed pieces, or their in-process fallbacks.
type infra struct {
	rateLimit   httpx.Middleware
	dispatcher  notify.Dispatcher
	readyChecks []runtime.ReadyCheck
	closers     []func()
}

func (i *infra) Close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
}

func setupInfra(ctx context.Context, logger *slog.Logger) (*infra, error) {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	notifier := newNotifier()
	out := &infra{}
	clientKey, err := httpx.TrustedProxyKey(config.List("TRUSTED_PROXIES"))
	if err != nil {
		return nil, err
	}

	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		out.readyChecks = append(out.readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		out.rateLimit = httpx.NewRateLimiter(limit, time.Minute).WithKey(clientKey).Middleware()
		out.dispatcher = notify.NewInline(notifier, logger, config.Duration("NOTIFY_TIMEOUT", 10*time.Second))
		return out, nil
	}

	password := config.String("REDIS_PASSWORD", "")
	redisDB := config.Int("REDIS_DB", 0)
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: redisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	out.closers = append(out.closers, func() { _ = rdb.Close() })
	out.readyChecks = append(out.readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	out.rateLimit = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "booking:rl").
		WithKey(clientKey).
		Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))

	redisOpt := asynq.RedisClientOpt{Addr: addr, Password: password, DB: redisDB}
	client := asynq.NewClient(redisOpt)
	out.closers = append(out.closers, func() { _ = client.Close() })
	out.dispatcher = notify.NewQueue(client, logger)

	if config.Bool("NOTIFY_WORKER", true) {
		worker, mux := notify.NewWorker(redisOpt, notifier, logger)
		if err := worker.Start(mux); err != nil {
			return nil, fmt.Errorf("start notification worker: %w", err)
		}
		out.closers = append(out.closers, worker.Shutdown)
	}
	return out, nil
}

func newNotifier() notify.Notifier {
	var out notify.Multi
	if host := config.String("SMTP_HOST", ""); host != "" {
		out = append(out, notify.NewEmailNotifier(host, config.String("SMTP_PORT", "25"), config.String("SMTP_FROM", "bookings@localhost")))
	}
	if url := config.String("SMS_WEBHOOK_URL", ""); url != "" {
		out = append(out, notify.NewSMSWebhook(url, config.String("SMS_WEBHOOK_TOKEN", "")))
	}
	if len(out) == 0 {
		return notify.Noop{}
	}
	return out
}

func newProvisioner(logger *slog.Logger) meeting.Provisioner {
	if url := config.String("MEETING_WEBHOOK_URL", ""); url != "" {
		logger.Info("meeting links via webhook")
		return meeting.NewWebhook(url, config.String("MEETING_WEBHOOK_TOKEN", ""))
	}
	if base := config.String("MEETING_BASE_URL", ""); base != "" {
		return meeting.NewRoomLink(base)
	}
	return meeting.Noop{}
}
