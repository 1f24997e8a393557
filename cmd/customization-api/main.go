package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/szsalyi/customization-poc-sub000/config"
	favoriterepo "github.com/szsalyi/customization-poc-sub000/internal/repositories/favorite"
	identityrepo "github.com/szsalyi/customization-poc-sub000/internal/repositories/identity"
	preferencerepo "github.com/szsalyi/customization-poc-sub000/internal/repositories/preference"
	sortablerepo "github.com/szsalyi/customization-poc-sub000/internal/repositories/sortable"
	"github.com/szsalyi/customization-poc-sub000/pkg/batch"
	"github.com/szsalyi/customization-poc-sub000/pkg/database"
	"github.com/szsalyi/customization-poc-sub000/pkg/events"
	"github.com/szsalyi/customization-poc-sub000/pkg/kafka"
	"github.com/szsalyi/customization-poc-sub000/pkg/middleware"
	"github.com/szsalyi/customization-poc-sub000/pkg/redis"
	favoriteroute "github.com/szsalyi/customization-poc-sub000/pkg/routes/favorite"
	"github.com/szsalyi/customization-poc-sub000/pkg/routes/health"
	preferenceroute "github.com/szsalyi/customization-poc-sub000/pkg/routes/preference"
	profileroute "github.com/szsalyi/customization-poc-sub000/pkg/routes/profile"
	sortableroute "github.com/szsalyi/customization-poc-sub000/pkg/routes/sortable"
	"github.com/szsalyi/customization-poc-sub000/pkg/sorting"
	"github.com/szsalyi/customization-poc-sub000/pkg/startup"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing/exporters"
)

// dependency adapts closures to the startup DAG.
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string { return d.name }

func (d *dependency) DependsOn() []string { return d.dependsOn }
func (d *dependency) Start(ctx context.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}
func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if cfg.TracingEnabled {
		provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(&exporters.ConsoleExporter{}))
		tracing.SetTracer(provider.Tracer(cfg.AppName))
	}

	var (
		db          database.DB
		redisClient *redis.Client
		producer    *kafka.Producer
		checker     *health.Checker
		e           *echo.Echo
	)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	boot.AddDependency(&dependency{
		name: "database",
		start: func(ctx context.Context) error {
			dsn := fmt.Sprintf(
				"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
				cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
			)
			sqlxDB, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
			if err != nil {
				return err
			}
			sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
			db = database.New(sqlxDB, logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
	})

	boot.AddDependency(&dependency{
		name:      "migrations",
		dependsOn: []string{"database"},
		start: func(ctx context.Context) error {
			driver, err := migratepg.WithInstance(db.Unsafe().DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			ms := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return ms.Migrate(cfg.DatabaseName, driver)
		},
	})

	boot.AddDependency(&dependency{
		name: "redis",
		start: func(ctx context.Context) error {
			if !cfg.RedisEnabled {
				logger.Info("Redis disabled; compaction runs without the cross-instance lock")
				return nil
			}
			client, err := redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, logger)
			if err != nil {
				return err
			}
			redisClient = client
			return nil
		},
		stop: func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Close()
		},
	})

	boot.AddDependency(&dependency{
		name: "kafka",
		start: func(ctx context.Context) error {
			if !cfg.KafkaEnabled {
				logger.Info("Kafka disabled; change events are not emitted")
				return nil
			}
			producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      cfg.KafkaBrokers,
				Topic:        cfg.KafkaOutputTopic,
				BatchSize:    cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: cfg.KafkaRequiredAcks,
				Compression:  cfg.KafkaCompression,
			}, logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if producer == nil {
				return nil
			}
			return producer.Close()
		},
	})

	boot.AddDependency(&dependency{
		name:      "server",
		dependsOn: []string{"database", "migrations", "redis", "kafka"},
		start: func(ctx context.Context) error {
			if err := registerDependencies(db, redisClient, producer, logger); err != nil {
				return err
			}

			e = echo.New()
			e.HideBanner = true
			e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
			e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
			e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
			e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

			e.HTTPErrorHandler = middleware.Error(logger)
			e.Use(otelecho.Middleware(cfg.AppName))
			e.Use(middleware.Context())
			e.Use(middleware.Logger(logger))
			e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
				AllowOrigins: cfg.AllowOrigins,
				AllowMethods: cfg.AllowMethods,
			}))

			e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

			checker = health.NewChecker(db, redisClient, cfg.Version)
			checker.RegisterRoutes(e)

			api := e.Group("/api/v1")
			preferenceroute.Register(api.Group("/preferences", middleware.Identity(true)))
			favoriteroute.Register(api.Group("/favorites", middleware.Identity(true)))
			sortableroute.Register(api.Group("/sortables", middleware.Identity(true)))
			profileroute.Register(api.Group("/profile"))

			go func() {
				if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server stopped")
				}
			}()
			checker.SetReady(true)
			return nil
		},
		stop: func(ctx context.Context) error {
			if e == nil {
				return nil
			}
			checker.SetReady(false)
			return e.Shutdown(ctx)
		},
	})

	ctx := context.Background()
	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown failed")
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// registerDependencies wires repositories, the ordering engine, the batch
// coordinator and the event emitter into the DI container the handlers pull
// from.
func registerDependencies(db database.DB, redisClient *redis.Client, producer *kafka.Producer, logger ectologger.Logger) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}

	identities := identityrepo.NewRepository(db, logger)
	preferences := preferencerepo.NewRepository(db, logger)
	favorites := favoriterepo.NewRepository(db, logger)
	sortables := sortablerepo.NewRepository(db, logger)

	var locker *redis.Locker
	if redisClient != nil {
		locker = redis.NewLocker(redisClient, "customization:")
	}
	engine := sorting.NewEngine(db, sortables, locker, logger)
	coordinator := batch.NewCoordinator(db, sortables, preferences, logger)
	emitter := events.NewEmitter(producer, logger)

	if err := ectoinject.RegisterInstance[*identityrepo.Repository](container, identities); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*preferencerepo.Repository](container, preferences); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*favoriterepo.Repository](container, favorites); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*sortablerepo.Repository](container, sortables); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*sorting.Engine](container, engine); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*batch.Coordinator](container, coordinator); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*events.Emitter](container, emitter)
}

func newLogger(cfg config.Config) ectologger.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = level
	}
	zapLogger, err := zapCfg.Build()
	if err != nil {
		zapLogger = zap.NewNop()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}
