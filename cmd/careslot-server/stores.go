package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/careslot/careslot/internal/config"
	"github.com/careslot/careslot/internal/domain/scheduling"
	"github.com/careslot/careslot/internal/platform/cache"
	"github.com/careslot/careslot/internal/platform/db"
	"github.com/careslot/careslot/internal/platform/notification"
	"github.com/careslot/careslot/internal/platform/webhook"
)

// stores bundles the repositories selected by STORE_DRIVER.
type stores struct {
	templates     scheduling.TemplateRepository
	bookings      scheduling.BookingRepository
	doctors       scheduling.DoctorDirectory
	notifications notification.Store
	health        db.Check
	close         func()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := db.NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo")
		database := client.Database(cfg.MongoDatabase)
		if err := ensureIndexes(ctx, database, mongoIndexers); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("mongo indexes ensured")
		return mongoStores(client, database), nil
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		return pgStores(pool), nil
	}
}

func pgStores(pool *pgxpool.Pool) *stores {
	return &stores{
		templates:     scheduling.NewTemplateRepoPG(pool),
		bookings:      scheduling.NewBookingRepoPG(pool),
		doctors:       scheduling.NewDoctorDirectoryPG(pool),
		notifications: notification.NewStorePG(pool),
		health:        db.PoolCheck(pool),
		close:         pool.Close,
	}
}

type indexer struct {
	name   string
	ensure func(ctx context.Context, database *mongo.Database) error
}

// mongoIndexers includes the unique held-slot index; serving without it
// would let two bookings hold the same slot.
var mongoIndexers = []indexer{
	{name: "scheduling", ensure: scheduling.EnsureIndexes},
	{name: "notification", ensure: notification.EnsureIndexes},
}

func ensureIndexes(ctx context.Context, database *mongo.Database, indexers []indexer) error {
	for _, ix := range indexers {
		if err := ix.ensure(ctx, database); err != nil {
			return fmt.Errorf("ensure %s indexes: %w", ix.name, err)
		}
	}
	return nil
}

func mongoStores(client *mongo.Client, database *mongo.Database) *stores {
	return &stores{
		templates:     scheduling.NewTemplateRepoMongo(database),
		bookings:      scheduling.NewBookingRepoMongo(database),
		doctors:       scheduling.NewDoctorDirectoryMongo(database),
		notifications: notification.NewStoreMongo(database),
		health:        db.MongoCheck(client),
		close: func() {
			_ = client.Disconnect(context.Background())
		},
	}
}

// slotCache prefers Redis when REDIS_URL is set and falls back to an
// in-process cache when it is unset or unreachable.
func slotCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) cache.Store {
	if cfg.SlotCacheTTL <= 0 {
		return cache.Nop{}
	}
	if cfg.RedisURL == "" {
		return cache.NewMemory(cfg.SlotCacheTTL)
	}
	r, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.SlotCacheTTL, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory slot cache")
		return cache.NewMemory(cfg.SlotCacheTTL)
	}
	logger.Info().Msg("slot cache backed by redis")
	return r
}

func reportRequester(cfg *config.Config, logger zerolog.Logger, now func() time.Time) (scheduling.ReportRequester, error) {
	if cfg.ReportServiceURL == "" {
		return scheduling.NewLogReporter(logger), nil
	}
	d, err := webhook.NewDispatcher(cfg.ReportServiceURL, cfg.ReportServiceSecret, webhook.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("report service: %w", err)
	}
	if d.MaxDuration() > scheduling.DefaultCollaboratorTimeout {
		logger.Warn().
			Dur("max_duration", d.MaxDuration()).
			Dur("collaborator_timeout", scheduling.DefaultCollaboratorTimeout).
			Msg("report retries exceed the collaborator timeout")
	}
	return scheduling.NewWebhookReporter(d), nil
}
