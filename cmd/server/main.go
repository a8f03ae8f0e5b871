package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/agromarket/price-tracker/internal/api"
	"github.com/agromarket/price-tracker/internal/config"
	"github.com/agromarket/price-tracker/internal/events"
	"github.com/agromarket/price-tracker/internal/facade"
	"github.com/agromarket/price-tracker/internal/identity"
	"github.com/agromarket/price-tracker/internal/metrics"
	"github.com/agromarket/price-tracker/internal/session"
	"github.com/agromarket/price-tracker/internal/store"
)

// backend is the selected persistence for reference data and accounts.
type backend struct {
	store    store.Store
	accounts identity.AccountStore
	sessions identity.SessionStore
	cleanup  []func()
}

func main() {
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	be, err := openBackend(ctx, cfg)
	if err != nil {
		slog.Error("backend initialization failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		for i := len(be.cleanup) - 1; i >= 0; i-- {
			be.cleanup[i]()
		}
	}()

	// --- Identity and sessions ---
	ids := identity.NewService(be.accounts, be.sessions, identity.Config{
		Secret:         []byte(cfg.JWTSecret),
		SessionTTL:     cfg.SessionTTL,
		AttemptsPerMin: cfg.AuthRatePerMinute,
	})
	sessions := session.NewManager(ids, be.store)

	// --- Change feed ---
	broker := events.NewBroker()
	defer broker.Close()

	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)
	feed, cancelFeed := broker.Subscribe(256)
	defer cancelFeed()
	go wsHub.Forward(feed)

	// --- Data access ---
	data := facade.New(be.store, broker, facade.Config{
		RequestTimeout: cfg.RequestTimeout,
		LatestPageSize: cfg.LatestPageSize,
	})

	opts := []api.Option{api.WithHub(wsHub)}
	if cfg.SecureCookies {
		opts = append(opts, api.WithSecureCookies())
	}
	svc := api.NewService(data, sessions, opts...)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", api.ViewHeader},
		AllowCredentials: true,
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"price-tracker"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("price-tracker listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down price-tracker...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("price-tracker stopped")
}

// openBackend picks PostgreSQL, then MongoDB, then memory, and wraps the
// result with Redis when REDIS_URL is set.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	be := &backend{}

	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		be.cleanup = append(be.cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate store: %w", err)
		}
		accounts := identity.NewPostgresAccounts(pool)
		if err := accounts.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate accounts: %w", err)
		}
		be.store, be.accounts = pg, accounts
		slog.Info("connected to PostgreSQL")

	case cfg.MongoURL != "":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		be.cleanup = append(be.cleanup, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		})
		db := client.Database(cfg.MongoDatabase)
		ms := store.NewMongoStore(db)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		accounts := identity.NewMongoAccounts(db)
		if err := accounts.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo account indexes: %w", err)
		}
		be.store, be.accounts = ms, accounts
		slog.Info("connected to MongoDB", "database", cfg.MongoDatabase)

	default:
		slog.Warn("DATABASE_URL and MONGO_URL not set, using in-memory store (data will not persist)")
		be.store, be.accounts = store.NewMemoryStore(), identity.NewMemoryAccounts()
	}

	be.sessions = identity.NewMemorySessions()

	// Wrap with Redis read-through cache if configured.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		be.cleanup = append(be.cleanup, func() { rdb.Close() })
		be.store = store.NewCachedStore(be.store, rdb, cfg.CacheTTL)
		be.sessions = identity.NewRedisSessions(rdb)
		slog.Info("Redis cache and session store enabled")
	}
	return be, nil
}
