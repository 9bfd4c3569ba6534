package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/seat-booking/internal/clock"
	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/database"
	"github.com/iliyamo/seat-booking/internal/handler"
	"github.com/iliyamo/seat-booking/internal/middleware"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/notifier"
	"github.com/iliyamo/seat-booking/internal/queue"
	"github.com/iliyamo/seat-booking/internal/repository"
	"github.com/iliyamo/seat-booking/internal/repository/memstore"
	"github.com/iliyamo/seat-booking/internal/router"
	"github.com/iliyamo/seat-booking/internal/service"
	"github.com/iliyamo/seat-booking/internal/worker"
)

// runner is a background consumer of the seat event feed.
type runner interface {
	Run(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err.Error())
		os.Exit(1)
	}
	logger := middleware.NewLogger(cfg.Log, cfg.IsProd())

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.NewRealClock()
	store, closeStore, err := openStore(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	inventory := service.NewInventory(store, clk, logger)
	reservations := service.NewReservations(store, clk, logger)
	bookings := service.NewBookings(store, clk, logger)
	reaper := service.NewReaper(store, clk, logger)
	hub := notifier.New(inventory, clk, logger)
	defer hub.Close()

	if err := seedShows(ctx, inventory, cfg.App.SeedShows, logger); err != nil {
		return err
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	publisher, consumers, err := buildTransport(cfg.Notify, rdb, hub, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	relay := worker.NewRelay(store, publisher, clk, cfg.Outbox.PollInterval, cfg.Outbox.Batch, logger)
	go relay.Run(ctx)
	go reaper.Run(ctx, cfg.Reaper.Interval)
	for _, c := range consumers {
		go func(c runner) {
			if err := c.Run(ctx); err != nil {
				logger.Error("event consumer stopped", "error", err.Error())
			}
		}(c)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Recover())

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, clk, logger)
	router.RegisterRoutes(e)
	router.RegisterPublic(e, handler.NewPublicHandler(inventory, hub, cfg.App.AllowedOrigins, logger))
	router.RegisterCustomer(e, handler.NewCustomerHandler(reservations, bookings, logger), cfg.JWT.Secret, limit)
	router.RegisterAdmin(e, handler.NewAdminHandler(inventory, reaper, logger), cfg.JWT.Secret)
	if cfg.JWT.Secret == "" {
		logger.Warn("JWT_SECRET is empty: callers are identified by request body and admin routes are disabled")
	}

	addr := ":" + cfg.App.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.App.Env, "store", cfg.DB.Driver, "transport", cfg.Notify.Transport)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// seedShows creates the default seat map of every listed show that has
// none yet.  It lets a deployment without admin routes serve seats.
func seedShows(ctx context.Context, inventory *service.Inventory, shows []string, logger *slog.Logger) error {
	for _, show := range shows {
		show = strings.TrimSpace(show)
		if show == "" {
			continue
		}
		created, err := inventory.Initialize(ctx, show, model.DefaultLayout())
		if err != nil {
			return errors.Wrapf(err, "seed show %q", show)
		}
		logger.Info("show seeded", "show_id", show, "created", created)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (repository.Store, func(), error) {
	if cfg.Driver == "memory" {
		logger.Warn("using the in-memory store; state is lost on exit")
		return memstore.New(), func() {}, nil
	}

	db, dialect, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Migrate {
		if err := database.Migrate(ctx, db, dialect); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return repository.NewSQLStore(db, dialect, cfg.TxTimeout, logger), func() { _ = db.Close() }, nil
}

// buildTransport returns the publisher the relay feeds and the consumers
// that bring events back into this process.  Every transport ends at the
// hub and the booking log.
func buildTransport(cfg config.NotifyConfig, rdb *redis.Client, hub *notifier.Hub, logger *slog.Logger) (queue.Publisher, []runner, error) {
	bookingLog := queue.NewBookingLog(cfg.BookingLog)

	switch cfg.Transport {
	case "redis":
		if rdb == nil {
			return nil, nil, errors.New("NOTIFY_TRANSPORT=redis but redis is unreachable")
		}
		pub := queue.Fanout{
			queue.NewRedisPublisher(rdb, cfg.RedisChannel),
			queue.NewLocalPublisher(logger, bookingLog.Handle),
		}
		sub := queue.NewRedisSubscriber(rdb, cfg.RedisChannel, hub.HandleEvent, logger)
		return pub, []runner{sub}, nil

	case "amqp":
		pub := queue.NewAMQPPublisher(cfg.RabbitMQURL, cfg.Exchange)
		feed := queue.NewAMQPConsumer(queue.ConsumerConfig{
			URL:         cfg.RabbitMQURL,
			Exchange:    cfg.Exchange,
			BindingKeys: []string{"seats.#"},
		}, hub.HandleEvent, logger)
		receipts := queue.NewAMQPConsumer(queue.ConsumerConfig{
			URL:         cfg.RabbitMQURL,
			Exchange:    cfg.Exchange,
			Queue:       queue.BookingQueue,
			BindingKeys: []string{string(model.EventSeatsBooked)},
		}, bookingLog.Handle, logger)
		return pub, []runner{feed, receipts}, nil

	default:
		return queue.NewLocalPublisher(logger, hub.HandleEvent, bookingLog.Handle), nil, nil
	}
}
