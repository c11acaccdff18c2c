package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/oh-queue/internal/api/http"
	"github.com/spec-kit/oh-queue/internal/api/http/handlers"
	"github.com/spec-kit/oh-queue/internal/auth"
	"github.com/spec-kit/oh-queue/internal/calendar"
	"github.com/spec-kit/oh-queue/internal/config"
	"github.com/spec-kit/oh-queue/internal/events"
	"github.com/spec-kit/oh-queue/internal/observability"
	"github.com/spec-kit/oh-queue/internal/persistence"
	"github.com/spec-kit/oh-queue/internal/presence"
	"github.com/spec-kit/oh-queue/internal/repository"
	"github.com/spec-kit/oh-queue/internal/repository/memstore"
	"github.com/spec-kit/oh-queue/internal/service"
	"github.com/spec-kit/oh-queue/internal/worker"
)

// stores is the persistence backing the services: Postgres, or the
// in-process store when no DSN is configured.
type stores struct {
	tx      repository.Transactor
	tickets repository.TicketRepository
	users   repository.UserRepository
	events  repository.TicketEventRepository
	pinger  handlers.Pinger
}

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations || *migrateOnly {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	if *migrateOnly {
		return
	}

	st := openStores(pg, logger)

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	hub := events.NewHub(events.DefaultBufferSize)
	relay := events.NewRedisRelay(redis.ClientHandle(), cfg.Redis.Channel, hub, logger)
	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go worker.StartRelayWorker(relayCtx, relay, worker.DefaultRelayBackOff, logger, nil)

	cal, err := newCalendar(ctx, cfg.Calendar, logger)
	if err != nil {
		logger.Fatal("failed to init calendar", zap.Error(err))
	}

	appointments := service.NewAppointmentService(service.AppointmentDependencies{
		Transactor: st.tx,
		TicketRepo: st.tickets,
		UserRepo:   st.users,
		EventRepo:  st.events,
		Calendar:   cal,
		Conventions: calendar.Conventions{
			UnclaimedMarker: cfg.Course.UnclaimedMarker,
			ClaimedSummary:  cfg.Course.ClaimedSummary(),
			DefaultCost:     cfg.Course.DefaultSlotCost,
		},
		Broadcaster: relay,
		Logger:      logger,
	})
	queue := service.NewQueueService(service.QueueDependencies{
		Transactor:  st.tx,
		TicketRepo:  st.tickets,
		UserRepo:    st.users,
		EventRepo:   st.events,
		Broadcaster: relay,
		Slots:       appointments,
		Logger:      logger,
	})
	sessions := service.NewSessionService(service.SessionDependencies{
		Presence:     presence.NewTracker(),
		Queue:        queue,
		Appointments: appointments,
		Broadcaster:  relay,
		Logger:       logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLMinutes)
	metrics := observability.NewMetrics()
	stream := handlers.NewStreamHandler(hub, sessions, logger, handlers.DefaultHeartbeat)

	health := handlers.HealthDependencies{
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
		Postgres:    st.pinger,
		Metrics:     metrics,
		Presence:    sessions.Counts,
	}
	if redis.ClientHandle() != nil {
		health.Redis = redis
	}

	app := httptransport.NewApp(cfg.App.Name, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(health),
		Queue:          handlers.NewQueueHandler(queue, sessions),
		Appointments:   handlers.NewAppointmentsHandler(appointments),
		Stream:         stream,
		Auth:           handlers.NewAuthHandler(tokens),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, st.users, cfg.Auth.DefaultCreditBalance, logger),
		DevAuth:        cfg.App.Env == "development",
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	stream.Close()
	stopRelay()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func openStores(pg *persistence.Postgres, logger *zap.Logger) stores {
	pool := pg.PoolHandle()
	if pool == nil {
		logger.Warn("running on the in-memory store; queue state is lost on restart")
		mem := memstore.New(nil)
		return stores{tx: mem, tickets: mem.Tickets(), users: mem.Users(), events: mem.Events(), pinger: mem}
	}
	return stores{
		tx:      repository.NewTransactor(pool),
		tickets: repository.NewTicketRepository(pool),
		users:   repository.NewUserRepository(pool),
		events:  repository.NewTicketEventRepository(pool),
		pinger:  pg,
	}
}

func newCalendar(ctx context.Context, cfg config.CalendarConfig, logger *zap.Logger) (calendar.Client, error) {
	var backend calendar.Client
	switch cfg.Driver {
	case config.CalendarDriverGoogle:
		g, err := calendar.NewGoogleClient(ctx, cfg.CalendarID, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		backend = g
	case config.CalendarDriverMemory:
		backend = calendar.NewMemoryClient()
	default:
		logger.Warn("calendar disabled; appointments are unavailable")
		backend = calendar.Disabled{}
	}
	return calendar.NewBreakerClient(backend, calendar.BreakerSettings{
		CallTimeout:         cfg.Timeout(),
		ConsecutiveFailures: uint32(cfg.BreakerFailures),
		OpenFor:             time.Duration(cfg.BreakerOpenSeconds) * time.Second,
	}, logger), nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
