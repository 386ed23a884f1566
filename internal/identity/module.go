package identity

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/domain"
	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/handler"
	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/repo"
	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/service"
)

// Config configures the identity module.
type Config struct {
	// Driver selects the relational backend: "sqlite" or "postgres".
	Driver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`

	// DSN is the driver-specific data source name.
	DSN string `env:"DATABASE_DSN" envDefault:"file:identity.db?_pragma=busy_timeout(5000)"`

	// NegativeCacheRefresh controls how often the bloom negative cache
	// reloads its token snapshot from the store.
	NegativeCacheRefresh time.Duration `env:"IDENTITY_BLOOM_REFRESH" envDefault:"30s"`

	// NegativeCacheCapacity is the expected number of active tokens, used
	// to size the bloom filter.
	NegativeCacheCapacity uint `env:"IDENTITY_BLOOM_CAPACITY" envDefault:"10000"`

	// NegativeCacheFPRate is the bloom filter's false positive rate.
	NegativeCacheFPRate float64 `env:"IDENTITY_BLOOM_FP_RATE" envDefault:"0.001"`

	// RedisAddr, if set, enables the Redis read-through cache in front
	// of the relational store.
	RedisAddr string `env:"IDENTITY_REDIS_ADDR"`

	// RedisCacheTTL bounds how long a cached lookup (positive or
	// negative) stays valid.
	RedisCacheTTL time.Duration `env:"IDENTITY_REDIS_TTL" envDefault:"60s"`
}

// Module is the identity store facade: lookup, admin CRUD, and the
// Bearer-token authentication middleware for the gateway.
type Module struct {
	store   KeyStore
	service *service.KeyService
	handler *handler.KeyHandler
	bloom   *negativeCache
	logger  *slog.Logger
}

// driverFromConfig maps a DATABASE_DRIVER string to the repo.Driver enum
// and its database/sql driver name.
func driverFromConfig(name string) (repo.Driver, string) {
	if name == "postgres" {
		return repo.DriverPostgres, "postgres"
	}
	return repo.DriverSQLite, "sqlite"
}

// New opens the relational store, wires the optional Redis cache, builds
// the (still empty) bloom negative cache, and returns the Module. Callers
// are responsible for calling Start, which loads the bloom cache and
// begins its refresh loop, and Stop to end that loop. Module has no
// method that closes the database handle.
func New(ctx context.Context, cfg Config, redisClient redisCmdable, logger *slog.Logger) (*Module, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "identity-module")

	driver, sqlDriverName := driverFromConfig(cfg.Driver)
	db, err := sql.Open(sqlDriverName, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	repository := repo.NewKeyRepository(db, driver)
	if err := repository.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var store KeyStore = repository
	if redisClient != nil {
		store = newReadThroughCache(store, redisClient, cfg.RedisCacheTTL)
	}

	bloom := newNegativeCache(store, cfg.NegativeCacheRefresh, cfg.NegativeCacheCapacity, cfg.NegativeCacheFPRate, logger)

	svc := service.NewKeyService(store, logger)
	h := handler.NewKeyHandler(svc, logger)

	return &Module{
		store:   store,
		service: svc,
		handler: h,
		bloom:   bloom,
		logger:  logger,
	}, nil
}

// Start begins the bloom negative cache's background refresh loop,
// performing an initial synchronous load first.
func (m *Module) Start(ctx context.Context) error {
	return m.bloom.start(ctx)
}

// Stop halts the bloom refresh loop.
func (m *Module) Stop() {
	m.bloom.stop()
}

// IssueKey creates a new caller record.
func (m *Module) IssueKey(ctx context.Context, name, token string, leaderboard bool) (string, error) {
	return m.service.IssueKey(ctx, name, token, leaderboard)
}

// RevokeKey deletes a caller's key.
func (m *Module) RevokeKey(ctx context.Context, name string) error {
	return m.service.RevokeKey(ctx, name)
}

// RotateKey replaces a caller's token in place and returns the new one.
func (m *Module) RotateKey(ctx context.Context, name string) (string, error) {
	return m.service.RotateKey(ctx, name)
}

// ListKeys returns every issued key.
func (m *Module) ListKeys(ctx context.Context) ([]domain.APIKey, error) {
	return m.service.ListKeys(ctx)
}

// AuthMiddleware returns HTTP middleware implementing the admission
// front-end's authentication step.
func (m *Module) AuthMiddleware() func(http.Handler) http.Handler {
	return m.authMiddleware()
}

// RegisterAdminRoutes mounts the admin key-management endpoints.
func (m *Module) RegisterAdminRoutes(mux *http.ServeMux) {
	m.handler.RegisterRoutes(mux)
}
