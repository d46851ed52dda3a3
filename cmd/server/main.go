package main

import (
	"context"
	"log"
	"time"

	goRedis "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/incidencias/api/handler"
	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/internal/config"
	"github.com/fastygo/incidencias/internal/infrastructure/blob"
	"github.com/fastygo/incidencias/internal/infrastructure/buffer"
	"github.com/fastygo/incidencias/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/incidencias/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/incidencias/internal/infrastructure/redis"
	"github.com/fastygo/incidencias/internal/middleware"
	"github.com/fastygo/incidencias/internal/router"
	"github.com/fastygo/incidencias/internal/services"
	"github.com/fastygo/incidencias/internal/services/lifecycle"
	"github.com/fastygo/incidencias/pkg/httpcontext"
	"github.com/fastygo/incidencias/pkg/logger"
	"github.com/fastygo/incidencias/repository"
	"github.com/fastygo/incidencias/repository/postgres"
	redisRepo "github.com/fastygo/incidencias/repository/redis"
	"github.com/fastygo/incidencias/repository/sqlite"
	"github.com/fastygo/incidencias/usecase"
	"github.com/fastygo/incidencias/usecase/acciones"
	"github.com/fastygo/incidencias/usecase/vista"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	if cfg.JWT.Secret == "" {
		zapLogger.Fatal("JWT_SECRET is required")
	}

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	store, db := openStore(appCtx, cfg, manager, zapLogger)

	var redisClient *goRedis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisInfra.NewClient(appCtx, cfg.Redis)
		if err != nil {
			zapLogger.Fatal("redis connection failed", zap.Error(err))
		}
		manager.RegisterCloser("redis", redisClient)
	}

	bufferStore, err := buffer.Open(cfg.Buffer.Path, "outbox")
	if err != nil {
		zapLogger.Fatal("failed to open outbox", zap.Error(err))
	}
	manager.RegisterCloser("buffer", bufferStore)

	mon := monitor.New(db, cfg.Database.Driver, redisClient, bufferStore, 10*time.Second, zapLogger.Named("monitor"))
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	var notifier usecase.Notifier
	if cfg.Notify.Enabled && redisClient != nil {
		notifier = redisInfra.NewNotifier(redisClient, cfg.Notify.Channel)
	}

	blobs, err := openBlobs(appCtx, cfg.Blob)
	if err != nil {
		zapLogger.Fatal("blob storage unavailable", zap.Error(err))
	}

	bufferProcessor := services.NewBufferProcessor(
		bufferStore,
		mon,
		store.Comentarios,
		notifier,
		zapLogger.Named("outbox"),
		services.ProcessorConfig{
			Interval:        cfg.Buffer.SyncInterval,
			BatchSize:       50,
			MaxRetries:      cfg.Buffer.MaxRetry,
			MaxSize:         cfg.Buffer.MaxSize,
			Retention:       time.Duration(cfg.Buffer.RetentionHours) * time.Hour,
			CleanupSchedule: cfg.Buffer.CleanupSchedule,
		},
	)
	bufferProcessor.Start()
	manager.Register("buffer_processor", func(ctx context.Context) error {
		bufferProcessor.Stop(ctx)
		return nil
	})

	servicios := acciones.NewServicios(acciones.Deps{
		Store:    store,
		Blobs:    blobs,
		Notifier: notifier,
		Buffer:   services.NewBufferBridge(bufferProcessor),
		Politica: domain.PoliticaCierre{CierreSinValoracion: cfg.Workflow.CierreSinValoracion},
		Lectura: usecase.ReadPolicy{
			Retries: cfg.Workflow.ReadRetries,
			Base:    cfg.Workflow.ReadRetryBase,
		},
		Logger: zapLogger,
	})
	dispatcher := usecase.NewDispatcher(zapLogger.Named("dispatcher"))
	acciones.Registrar(dispatcher, servicios)

	var vistas *vista.UseCase
	if redisClient != nil {
		vistas = vista.New(redisRepo.NewFiltroRepository(redisClient, cfg.Filtros.TTL), cfg.Filtros.TTL, zapLogger.Named("vista"))
	}

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Health:      apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
		Incidencias: apiHandler.NewIncidenciaHandler(servicios.Incidencias, vistas, dispatcher, ctxAdapter, zapLogger),
		Acciones:    apiHandler.NewAccionHandler(dispatcher, ctxAdapter, zapLogger),
	}
	if vistas != nil {
		handlers.Filtros = apiHandler.NewFiltroHandler(vistas, ctxAdapter, zapLogger)
	}

	authz, err := middleware.NewAuthorizer(middleware.DefaultPolicy(), zapLogger.Named("authz"))
	if err != nil {
		zapLogger.Fatal("authorization policy invalid", zap.Error(err))
	}
	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer, zapLogger)
	r := router.New(handlers, authMiddleware, authz, zapLogger)

	server := &fasthttp.Server{
		Handler:            r.Handler,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		MaxConnsPerIP:      cfg.HTTP.MaxConn,
		Name:               cfg.AppName,
		MaxRequestBodySize: 32 << 20,
	}

	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("driver", cfg.Database.Driver),
			zap.String("blob_backend", cfg.Blob.Backend),
			zap.Strings("acciones", dispatcher.Commands()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}

// openStore connects the configured repository backend and registers its
// shutdown hook. The returned Pinger feeds the connection monitor.
func openStore(ctx context.Context, cfg *config.Config, manager *lifecycle.Manager, zapLogger *zap.Logger) (repository.Store, monitor.Pinger) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			zapLogger.Fatal("sqlite open failed", zap.Error(err))
		}
		manager.RegisterCloser("sqlite", db)
		zapLogger.Info("using sqlite store", zap.String("path", cfg.Database.SQLitePath))
		return db.Store(), db
	default:
		if err := pgInfra.RunMigrations(cfg.Database, cfg.Migrations, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}
		pool, err := pgInfra.NewPool(ctx, cfg.Database, cfg.AppName, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(context.Context) error {
			pgInfra.Close(pool, zapLogger)
			return nil
		})
		return postgres.NewStore(pool), pool
	}
}

func openBlobs(ctx context.Context, cfg config.BlobConfig) (usecase.BlobStore, error) {
	if cfg.Backend == "s3" {
		return blob.NewS3FromConfig(ctx, cfg)
	}
	return blob.NewFS(cfg.Dir)
}
