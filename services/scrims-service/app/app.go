package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	commoncache "github.com/scrimx/scrims/common/cache"
	"github.com/scrimx/scrims/common/config"
	"github.com/scrimx/scrims/common/database"
	apperrors "github.com/scrimx/scrims/common/errors"
	commonevents "github.com/scrimx/scrims/common/events"
	"github.com/scrimx/scrims/common/logger"
	"github.com/scrimx/scrims/common/natsjetstream"
	"github.com/scrimx/scrims/common/utils"
	"github.com/scrimx/scrims/services/scrims-service/internal/cache"
	"github.com/scrimx/scrims/services/scrims-service/internal/events"
	"github.com/scrimx/scrims/services/scrims-service/internal/events/publisher"
	"github.com/scrimx/scrims/services/scrims-service/internal/metrics"
	"github.com/scrimx/scrims/services/scrims-service/internal/platform"
	"github.com/scrimx/scrims/services/scrims-service/internal/repository"
	"github.com/scrimx/scrims/services/scrims-service/internal/scheduler"
	"github.com/scrimx/scrims/services/scrims-service/internal/service"
)

const serviceName = "scrims-service"

type App struct {
	cfg             *config.Config
	grpcServer      *grpc.Server
	health          *health.Server
	store           *repository.Store
	natsClient      *natsjetstream.Client
	redisClient     *commoncache.RedisClient
	logger          *logger.Logger
	metrics         *metrics.Metrics
	platform        platform.Platform
	scrimsService   service.ScrimsService
	scheduler       *scheduler.Scheduler
	eventPublisher  *publisher.EventPublisher
	eventSubscriber *events.EventSubscriber
	availability    *cache.AvailabilityCache

	stopMetrics context.CancelFunc
	cleanup     []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, *apperrors.AppError) {
	app := &App{
		cfg:     cfg,
		cleanup: make([]func() error, 0),
	}

	if err := app.initLogger(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init logger")
	}

	if err := app.initStorage(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init storage")
	}

	if err := app.initNATS(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init nats client")
	}

	if err := app.initCache(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init redis cache")
	}

	app.initService()

	if err := app.initScheduler(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init scheduler")
	}

	if err := app.initGRPC(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init grpc server")
	}

	if err := app.initMessageSubscriber(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init messaging subscriber")
	}

	return app, nil
}

func (a *App) Logger() *logger.Logger {
	return a.logger
}

func (a *App) initLogger() *apperrors.AppError {
	a.logger = logger.New(logger.Config{
		Level:       a.cfg.Server.LogLevel,
		Format:      a.cfg.Server.LogFormat,
		ServiceName: serviceName,
	})
	a.cleanup = append(a.cleanup, func() error {
		_ = a.logger.Sync()
		return nil
	})
	a.metrics = metrics.New()
	return nil
}

func (a *App) initStorage(ctx context.Context) *apperrors.AppError {
	switch a.cfg.Storage.Driver {
	case "dynamodb":
		dynamoClient, err := database.NewDynamoDBClient(ctx, a.cfg)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create dynamodb client")
		}
		transactionRepo := database.NewTransactionRepository(dynamoClient)
		a.store = &repository.Store{
			Scrims:    repository.NewScrimsRepository(dynamoClient, transactionRepo),
			Reminders: repository.NewReminderRepository(dynamoClient),
			Settings:  repository.NewSettingsRepository(dynamoClient),
		}
		a.logger.Info("Using DynamoDB storage", "table", dynamoClient.Table())

	default:
		bolt, err := repository.NewBoltStore(a.cfg.Storage.BoltPath)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to open bolt store")
		}
		a.store = bolt.AsStore()
		a.cleanup = append(a.cleanup, bolt.Close)
		a.logger.Info("Using bolt storage", "path", a.cfg.Storage.BoltPath)
	}
	return nil
}

func (a *App) initNATS(ctx context.Context) *apperrors.AppError {
	if !a.cfg.NATS.Enabled {
		a.logger.Warn("NATS disabled, platform calls are only logged and no events are published")
		a.platform = platform.NewLogPlatform(a.logger)
		return nil
	}

	natsCfg := natsjetstream.FromAppConfig(a.cfg.NATS)
	natsClient, err := natsjetstream.NewClient(natsCfg, a.logger)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "failed to connect to nats")
	}
	a.natsClient = natsClient
	a.cleanup = append(a.cleanup, natsClient.Close)

	streams := []natsjetstream.StreamConfig{
		{
			Name:     commonevents.ScrimsEventsStream,
			Subjects: []string{commonevents.ScrimsEventsWildcard},
			MaxAge:   7 * 24 * time.Hour,
		},
		{
			Name:     commonevents.ScrimsIntakeStream,
			Subjects: []string{commonevents.ScrimsIntakeWildcard},
			MaxAge:   24 * time.Hour,
		},
	}
	for _, stream := range streams {
		if err := natsClient.EnsureStream(ctx, stream); err != nil {
			a.logger.Error("Failed to create stream", "error", err, "stream", stream.Name)
			return apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to create jetstream stream")
		}
		a.logger.Info("Stream ready", "stream", stream.Name)
	}

	a.eventPublisher = publisher.NewEventPublisher(natsClient, a.logger)
	a.platform = platform.NewNATSGateway(natsClient.Conn(), a.cfg.NATS.GatewaySubject, natsCfg.Timeout, a.logger)
	return nil
}

func (a *App) initCache(ctx context.Context) *apperrors.AppError {
	if !a.cfg.Redis.Enabled {
		return nil
	}

	redisClient, err := commoncache.NewRedisClient(ctx, a.cfg.Redis)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to connect to redis")
	}
	a.redisClient = redisClient
	a.cleanup = append(a.cleanup, redisClient.Close)
	a.availability = cache.NewAvailabilityCache(redisClient, 0)
	a.logger.Info("Availability cache enabled", "address", a.cfg.Redis.Address)
	return nil
}

func (a *App) initService() {
	// Optional collaborators stay untyped nil when disabled.
	var eventSink service.EventPublisher
	if a.eventPublisher != nil {
		eventSink = a.eventPublisher
	}
	var availability service.AvailabilityCache
	if a.availability != nil {
		availability = a.availability
	}

	a.scrimsService = service.NewScrimsService(
		a.store,
		a.platform,
		eventSink,
		availability,
		a.metrics,
		a.logger,
		service.Options{
			Location: a.cfg.Location(),
			Reset: service.ResetPolicy{
				ClearReservations:  a.cfg.Reset.ClearReservations,
				ClearCancellations: a.cfg.Reset.ClearCancellations,
			},
			MaxConflictRetries: a.cfg.Service.MaxConflictRetries,
			ReminderRate:       rate.Limit(a.cfg.Service.ReminderDeliveriesPerSec),
		},
	)
}

func (a *App) initGRPC() *apperrors.AppError {
	recoveryOpt := recovery.WithRecoveryHandlerContext(func(ctx context.Context, p any) error {
		a.metrics.PanicsRecovered.Inc()
		a.logger.Error("Recovered from panic in gRPC handler", "panic", p)
		return status.Errorf(codes.Internal, "internal error")
	})

	a.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			a.metrics.UnaryServerInterceptor(),
			utils.LoggingInterceptor(a.logger),
			recovery.UnaryServerInterceptor(recoveryOpt),
		),
	)

	a.health = health.NewServer()
	healthpb.RegisterHealthServer(a.grpcServer, a.health)
	reflection.Register(a.grpcServer)
	a.metrics.InitializeServer(a.grpcServer)

	return nil
}

func (a *App) initMessageSubscriber(ctx context.Context) *apperrors.AppError {
	if a.natsClient == nil {
		return nil
	}

	a.eventSubscriber = events.NewEventSubscriber(a.natsClient, a.scrimsService, a.logger)
	if err := a.eventSubscriber.Start(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "failed to start intake consumer")
	}
	return nil
}

func (a *App) initScheduler() *apperrors.AppError {
	resetAt, err := service.ParseClock(a.cfg.Scheduler.ResetTime)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "invalid scheduler.resetTime")
	}

	jobs := scheduler.NewScrimsScheduler(a.scrimsService, a.logger)
	a.scheduler = scheduler.NewScheduler(jobs, scheduler.Config{
		Location:              a.cfg.Location(),
		ResetTime:             resetAt,
		DetailsLead:           a.cfg.Scheduler.DetailsLead,
		ExpirySweepInterval:   a.cfg.Scheduler.ExpirySweepInterval,
		ReminderSweepInterval: a.cfg.Scheduler.ReminderSweepInterval,
	}, a.metrics, a.logger)

	a.scrimsService.AttachTimers(a.scheduler)

	return nil
}

func (a *App) Start(ctx context.Context) *apperrors.AppError {
	if err := a.scheduler.Start(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to start scheduler")
	}
	a.logger.Info("Scheduler started")

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.GRPCPort))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to listen")
	}

	go func() {
		a.logger.Info("gRPC server listening", "port", a.cfg.Server.GRPCPort)
		if err := a.grpcServer.Serve(lis); err != nil {
			a.logger.Error("gRPC server stopped", "error", err)
		}
	}()
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	metricsCtx, cancel := context.WithCancel(context.Background())
	a.stopMetrics = cancel
	go func() {
		if err := a.metrics.Serve(metricsCtx, a.cfg.Server.MetricsPort, a.logger); err != nil {
			a.logger.Error("Metrics server stopped", "error", err)
		}
	}()

	a.logger.Info("Application started successfully", "environment", a.cfg.Server.Environment)
	return nil
}

func (a *App) Stop() *apperrors.AppError {
	a.logger.Info("Stopping application...")

	if a.health != nil {
		a.health.Shutdown()
	}
	if a.eventSubscriber != nil {
		a.eventSubscriber.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
	}

	a.logger.Info("Application stopped")

	// Reverse order so the logger is flushed last.
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		if err := a.cleanup[i](); err != nil {
			a.logger.Error("Cleanup error", "error", err)
		}
	}
	return nil
}
