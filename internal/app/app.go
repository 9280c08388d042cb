package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"readingsurvey/internal/cache"
	"readingsurvey/internal/config"
	"readingsurvey/internal/logger"
	"readingsurvey/internal/repository"
	"readingsurvey/internal/service"
	"readingsurvey/internal/transport/rest"
	"readingsurvey/internal/transport/ws"
)

// App holds the wired runtime of the survey service
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Store    cache.SessionStore
	Catalog  *cache.CatalogCache
	Alloc    *service.AllocationClient
	Tokens   *service.TabTokenService
	Sessions *service.SessionManager
	WSHub    *ws.Hub

	closers []func(context.Context) error
}

// New connects the configured store backend and wires every service
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if cfg.Allocation.URL == "" {
		return nil, fmt.Errorf("allocation.url is required (SURVEY_ALLOCATION_URL)")
	}

	a := &App{Config: cfg, Log: log}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = store

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	a.Catalog = NewCatalog(cfg, log)
	a.Alloc = service.NewAllocationClient(cfg.Allocation.URL, cfg.SubmitEndpoint(), httpClient, log)
	a.Tokens = service.NewTabTokenService(cfg.Auth.JWTSecret, cfg.TabTTL())
	a.WSHub = ws.NewHub(log)
	a.Sessions = service.NewSessionManager(cfg.Survey, a.Catalog, a.Alloc, a.Store, a.Tokens, a.WSHub, log)
	return a, nil
}

// Router builds the HTTP handler
func (a *App) Router() http.Handler {
	return rest.NewRouter(&rest.Container{
		Sessions: a.Sessions,
		Catalog:  a.Catalog,
		WSHub:    a.WSHub,
		Log:      a.Log,
	})
}

// Close releases store connections
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context) (cache.SessionStore, error) {
	cfg := a.Config.Store
	switch cfg.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := rdb.Ping(pingCtx).Result(); err != nil {
			return nil, fmt.Errorf("failed to ping Redis: %w", err)
		}
		a.Log.Info("connected to Redis", "addr", cfg.RedisAddr)
		return cache.NewRedisSessionStore(rdb, a.Config.StoreTTL()), nil

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
		}
		a.Log.Info("connected to MongoDB", "db", cfg.MongoDB)
		return repository.NewMongoSessionStore(client.Database(cfg.MongoDB)), nil
	}

	a.Log.Warn("using in-memory session store; sessions do not survive a restart")
	return cache.NewMemorySessionStore(), nil
}

// NewCatalog builds the catalog cache for cfg. A texts location without a
// scheme is read from the local filesystem.
func NewCatalog(cfg *config.Config, log *logger.Logger) *cache.CatalogCache {
	client, target := catalogClient(cfg.TextsEndpoint(), cfg.HTTPTimeout())
	return cache.NewCatalogCache(client, target, log)
}

func catalogClient(endpoint string, timeout time.Duration) (*http.Client, string) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "" {
		return &http.Client{Timeout: timeout}, endpoint
	}

	abs, err := filepath.Abs(u.Path)
	if err != nil {
		abs = u.Path
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir(filepath.Dir(abs))))
	fileURL := &url.URL{Scheme: "file", Path: "/" + filepath.Base(abs), RawQuery: u.RawQuery}
	return &http.Client{Timeout: timeout, Transport: transport}, fileURL.String()
}
