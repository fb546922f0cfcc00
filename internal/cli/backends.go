package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/config"
	"team-quiz-service/internal/infra/memory"
	"team-quiz-service/internal/infra/mongodb"
	"team-quiz-service/internal/infra/postgres"
	redisinfra "team-quiz-service/internal/infra/redis"
)

// backends is the set of stores selected by config plus the background loops that
// keep their subscriptions fresh.
type backends struct {
	teams     app.TeamRepository
	questions app.QuestionRepository
	clock     app.ClockRepository
	sessions  app.SessionStore

	watchers []func(context.Context) error
	closers  []func()
}

func openBackends(ctx context.Context, cfg config.Config, log *zap.Logger) (*backends, error) {
	b := &backends{}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		b.teams = memory.NewTeamRepository()
		b.questions = memory.NewQuestionRepository()
		b.clock = memory.NewClockRepository()
	case config.DriverPostgres:
		if cfg.Postgres.URL == "" {
			return nil, fmt.Errorf("postgres url not configured")
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		store := postgres.NewStore(pool, log.Named("postgres"))
		b.teams, b.questions, b.clock = store.Teams, store.Questions, store.Clock
		b.watchers = append(b.watchers, store.Listen)
	case config.DriverMongo:
		if cfg.Mongo.URI == "" {
			return nil, fmt.Errorf("mongo uri not configured")
		}
		client, err := mongodb.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })
		store := mongodb.New(client.Database(cfg.Mongo.Database), log.Named("mongo"))
		if err := store.EnsureIndexes(ctx); err != nil {
			b.close()
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		b.teams, b.questions, b.clock = store.Teams, store.Questions, store.Clock
		b.watchers = append(b.watchers, store.Watch)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
	}

	// caches follow the store's change feed so writes from other processes, such as
	// the admin command, drop them
	switch {
	case redisClient != nil:
		cache := redisinfra.NewQuestionCache(redisClient, b.questions, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		b.questions = cache
		b.watchers = append(b.watchers, cache.Watch)
		b.sessions = redisinfra.NewSessionStore(redisClient)
	case cfg.Store.Driver != config.DriverMemory:
		cache := memory.NewQuestionCache(b.questions, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
		b.questions = cache
		b.watchers = append(b.watchers, cache.Watch)
		b.sessions = memory.NewSessionStore()
	default:
		b.sessions = memory.NewSessionStore()
	}

	log.Info("backends ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Bool("redis", redisClient != nil),
	)
	return b, nil
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}
