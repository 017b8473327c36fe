package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/arunkumar-com/tablebook/internal/config"
	"github.com/arunkumar-com/tablebook/internal/postgres"
	"github.com/arunkumar-com/tablebook/internal/redis"
	postgresrepo "github.com/arunkumar-com/tablebook/internal/repository/postgres"
	redisrepo "github.com/arunkumar-com/tablebook/internal/repository/redis"
	"github.com/arunkumar-com/tablebook/internal/service"
	"github.com/arunkumar-com/tablebook/internal/service/booking"
	"github.com/arunkumar-com/tablebook/internal/service/reconcile"
	httpgin "github.com/arunkumar-com/tablebook/internal/transport/http/gin"
	"github.com/arunkumar-com/tablebook/internal/uow"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	cron       *cron.Cron
	reconcile  *reconcile.Service
	cache      *redisrepo.Cache
	pubsub     *redisrepo.SlotsPubSub
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	if err := postgres.Migrate(context.Background(), pgxPool); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	rdb, err := redis.New(context.Background(), redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.NewCache(rdb)
	pubsub := redisrepo.NewSlotsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "tablebook:v1:rl", cfg.Booking.RateLimit, cfg.Booking.RateWindow)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, cfg.Booking.IdempotencyTTL)

	// The reconciliation pass runs its ledger recount inside one
	// transaction so a half-applied fix is never visible.
	u := uow.NewUoW(store)
	reconciler := reconcile.ReconcilerFunc(func(ctx context.Context) (int64, error) {
		var fixed int64
		err := u.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, _ func(uow.AfterCommit)) error {
			var err error
			fixed, err = store.Ledger().With(tx).Reconcile(ctx)
			return err
		})
		return fixed, err
	})

	// Services
	svcs := service.NewServices(
		service.Stores{
			Restaurants:  store.Restaurants(),
			Ledger:       store.Ledger(),
			LedgerReader: store.Ledger(),
			Reservations: store.Reservations(),
			Reconciler:   reconciler,
		},
		cache,
		pubsub,
		limiter,
		logger,
		service.Config{
			Booking: booking.Config{Timeout: cfg.Booking.Timeout},
		},
	)

	router := httpgin.NewRouter(svcs, idempotencyStore, cfg.JWT.Secret, logger)

	cr := cron.New()
	if _, err := cr.AddFunc(cfg.Reconcile.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := svcs.Reconcile.Run(ctx); err != nil {
			logger.Error("ledger reconciliation failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		cron:      cr,
		reconcile: svcs.Reconcile,
		cache:     cache,
		pubsub:    pubsub,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Periodic ledger reconciliation
	a.cron.Start()

	// Slots-changed subscriber: drops cached listings invalidated by other
	// instances. Our own publishes arrive here too, which is a harmless
	// double delete.
	g.Go(func() error {
		err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, restaurantID uuid.UUID, date string) {
			_ = a.cache.InvalidateSlots(ctx, restaurantID, date)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down")
		<-a.cron.Stop().Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
