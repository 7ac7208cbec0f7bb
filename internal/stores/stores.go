// Package stores opens the preference backend selected in configuration.
package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Merlin1A/air-pulse/internal/database"
	"github.com/Merlin1A/air-pulse/internal/preference"
	"github.com/Merlin1A/air-pulse/pkg/config"
)

// ErrProcessLocal is returned by OpenShared for a backend other processes cannot see
var ErrProcessLocal = errors.New("preference store is local to this process")

// Opened is a ready preference store and the function that releases it
type Opened struct {
	Store   preference.Store
	Backend string
	ping    func(ctx context.Context) error
	close   func()
}

// Ping checks the backing connection
func (o *Opened) Ping(ctx context.Context) error {
	if o.ping == nil {
		return nil
	}
	return o.ping(ctx)
}

// Close releases the backing connection
func (o *Opened) Close() {
	if o.close != nil {
		o.close()
	}
}

// OpenShared is Open for services that share preferences with other
// processes. The api writes what the engine reads, so memory is refused.
func OpenShared(ctx context.Context, cfg *config.Config) (*Opened, error) {
	if cfg.Engine.StoreBackend == config.StoreBackendMemory {
		return nil, fmt.Errorf("%w: PREFERENCE_STORE=%s, use postgres or redis", ErrProcessLocal, cfg.Engine.StoreBackend)
	}
	return Open(ctx, cfg)
}

// Open connects to the backend named by cfg.Engine.StoreBackend
func Open(ctx context.Context, cfg *config.Config) (*Opened, error) {
	switch cfg.Engine.StoreBackend {
	case config.StoreBackendRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return &Opened{
			Store:   preference.NewRedisStore(redisClient),
			Backend: config.StoreBackendRedis,
			ping:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			close:   func() { redisClient.Close() },
		}, nil

	case config.StoreBackendMemory:
		return &Opened{
			Store:   preference.NewMemoryStore(),
			Backend: config.StoreBackendMemory,
		}, nil

	case config.StoreBackendPostgres:
		db, err := database.Connect(cfg.Database.ConnectionString())
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(cfg.Database.MigrationsDir); err != nil {
			db.Close()
			return nil, err
		}
		return &Opened{
			Store:   database.NewPreferenceStore(db),
			Backend: config.StoreBackendPostgres,
			ping:    db.PingContext,
			close:   func() { db.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown preference store %q", cfg.Engine.StoreBackend)
	}
}
