package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/config"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/internal/repositories/document"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/internal/repositories/profile"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/internal/repositories/submission"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/admin"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/database"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/kafka"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/ledger"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/matching"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/middleware"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/processor"
	appredis "github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/redis"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/routes/health"
	routingroutes "github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/routes/routing"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/routing"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/scheduler"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/startup"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/stats"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

type app struct {
	cfg    *config.Config
	logger ectologger.Logger

	db    database.DB
	redis *appredis.Client

	store     store.Store
	queue     store.PendingQueue
	directory store.Directory
	claimer   store.Claimer
	producer  *kafka.NotificationProducer
	consumer  *kafka.SubmissionConsumer
	processor *processor.Processor
	scheduler *scheduler.Scheduler
	admin     *admin.Service
	health    *health.Checker
	echo      *echo.Echo
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{cfg: cfg, logger: logger, health: health.NewChecker(cfg.Version)}
}

// runOnce routes the pending queue a single time, for cron-style deployments
func (a *app) runOnce(ctx context.Context) error {
	s := startup.NewStartup(a.logger, a.cfg.StartupMaxAttempts)
	a.addCoreDependencies(s)
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer a.stopAll(s)

	result, err := a.processor.RunOnce(ctx)
	if err != nil {
		return err
	}
	a.logger.WithContext(ctx).WithFields(map[string]any{
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Single routing run finished")
	return nil
}

// serve runs the scheduler, the intake consumer and the admin API until ctx is cancelled
func (a *app) serve(ctx context.Context) error {
	s := startup.NewStartup(a.logger, a.cfg.StartupMaxAttempts)
	a.addCoreDependencies(s)
	s.AddDependency(&startup.Dependency{
		Name:     "scheduler",
		Requires: []string{"engine"},
		OnStart:  a.startScheduler,
		OnStop: func(ctx context.Context) error {
			if a.scheduler == nil {
				return nil
			}
			return a.scheduler.Stop(ctx)
		},
	})
	s.AddDependency(&startup.Dependency{
		Name:     "kafka-consumer",
		Requires: []string{"scheduler"},
		OnStart:  a.startConsumer,
		OnStop: func(context.Context) error {
			if a.consumer == nil {
				return nil
			}
			return a.consumer.Stop()
		},
	})
	s.AddDependency(&startup.Dependency{
		Name:     "http",
		Requires: []string{"engine", "scheduler"},
		OnStart:  a.startHTTP,
		OnStop: func(ctx context.Context) error {
			if a.echo == nil {
				return nil
			}
			return a.echo.Shutdown(ctx)
		},
	})

	if err := s.Start(ctx); err != nil {
		return err
	}
	a.health.SetReady(true)
	a.logger.WithContext(ctx).Infof("%s is running on port %d", a.cfg.AppName, a.cfg.Port)

	<-ctx.Done()
	a.health.SetReady(false)
	a.logger.Info("Shutting down")
	return a.stopAll(s)
}

func (a *app) stopAll(s *startup.Startup) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Stop(ctx)
}

func (a *app) addCoreDependencies(s *startup.Startup) {
	var shutdownTracing func(context.Context) error
	s.AddDependency(&startup.Dependency{
		Name: "tracing",
		OnStart: func(ctx context.Context) error {
			if !a.cfg.OTLPEnabled {
				return nil
			}
			shutdown, err := tracing.Setup(ctx, a.cfg.AppName, tracing.ExporterConfig{
				Endpoint: a.cfg.OTLPEndpoint,
				Protocol: a.cfg.OTLPProtocol,
				Insecure: a.cfg.OTLPInsecure,
			})
			shutdownTracing = shutdown
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdownTracing == nil {
				return nil
			}
			return shutdownTracing(ctx)
		},
	})
	s.AddDependency(&startup.Dependency{
		Name:    "database",
		OnStart: a.startDatabase,
		OnStop: func(context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	})
	s.AddDependency(&startup.Dependency{
		Name:    "redis",
		OnStart: a.startRedis,
		OnStop: func(context.Context) error {
			if a.redis == nil {
				return nil
			}
			return a.redis.Close()
		},
	})
	s.AddDependency(&startup.Dependency{
		Name:     "engine",
		Requires: []string{"tracing", "database", "redis"},
		OnStart:  a.buildEngine,
		OnStop: func(context.Context) error {
			if a.producer == nil {
				return nil
			}
			return a.producer.Close()
		},
	})
}

func (a *app) startDatabase(ctx context.Context) error {
	if !a.cfg.UsesDatabase() {
		return nil
	}

	db, err := database.Open(ctx, database.Config{
		Driver:          a.cfg.DatabaseDriver,
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		UserName:        a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}

	if a.cfg.DatabaseMigrationEnabled {
		migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
			MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
			Version:             uint(a.cfg.DatabaseMigrationVersion),
			Force:               a.cfg.DatabaseMigrationForce,
			AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
		})
		if err := migrations.Migrate(db, a.cfg.DatabaseName); err != nil {
			_ = db.Close()
			return err
		}
	}

	a.db = db
	a.health.AddCheck("database", db.PingContext)
	return nil
}

func (a *app) startRedis(ctx context.Context) error {
	if !a.cfg.RedisEnabled && a.cfg.StoreDriver != "redis" {
		return nil
	}

	client, err := appredis.NewClient(ctx, appredis.Config{
		Host:      a.cfg.RedisHost,
		Port:      a.cfg.RedisPort,
		Password:  a.cfg.RedisPassword,
		DB:        a.cfg.RedisDB,
		KeyPrefix: a.cfg.RedisKeyPrefix,
	}, a.logger)
	if err != nil {
		return err
	}

	a.redis = client
	a.health.AddCheck("redis", client.Ping)
	return nil
}

// buildEngine wires ports to adapters and assembles the routing pipeline
func (a *app) buildEngine(ctx context.Context) error {
	seed, err := store.LoadSeed(a.cfg.SeedFile)
	if err != nil {
		return err
	}

	if err := a.selectSources(ctx, seed); err != nil {
		return err
	}
	if err := a.selectStore(); err != nil {
		return err
	}

	a.claimer = store.NewMemoryClaimer()
	if a.redis != nil {
		a.claimer = appredis.NewClaimer(a.redis, a.cfg.ClaimTTL)
	}

	var notifier store.Notifier = store.NoopNotifier{}
	if a.cfg.KafkaProducerEnabled {
		a.producer = kafka.NewNotificationProducer(kafka.ProducerConfig{
			Brokers:         a.cfg.KafkaBrokers,
			Topic:           a.cfg.KafkaNotificationTopic,
			BatchSize:       a.cfg.KafkaBatchSize,
			BatchTimeout:    time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks:    a.cfg.KafkaRequiredAcks,
			Compression:     a.cfg.KafkaCompression,
			BreakerFailures: a.cfg.NotifyBreakerFailures,
			BreakerTimeout:  a.cfg.NotifyBreakerTimeout,
		}, a.logger)
		notifier = a.producer
	}

	acc := stats.NewAccumulator()
	l := ledger.New(a.store, a.logger)
	dispatcher := routing.NewDispatcher(a.store, l, acc, notifier, a.logger)
	resolver := matching.NewResolver(matching.Config{
		ConsiderationThreshold: a.cfg.ConsiderationThreshold,
		AutoMatchThreshold:     a.cfg.AutoMatchThreshold,
		MaxReviewCandidates:    a.cfg.MaxReviewCandidates,
		Scoring:                matching.DefaultScoringConfig(),
	})

	opts := []processor.Option{processor.WithClaimer(a.claimer)}
	if a.db != nil && a.cfg.StoreDriver == "postgres" {
		opts = append(opts, processor.WithTransactor(func(ctx context.Context, fn func(ctx context.Context) error) error {
			return database.WithinTx(ctx, a.db, fn)
		}))
	}

	a.processor = processor.New(a.queue, a.directory, resolver, dispatcher, a.store, acc, processor.Config{
		BatchSize:        a.cfg.SchedulerBatchSize,
		FilterByCategory: a.cfg.FilterCandidatesByCategory,
	}, a.logger, opts...)
	if err := a.processor.RestoreStats(ctx); err != nil {
		return err
	}

	a.admin = admin.NewService(a.store, a.queue, a.directory, l, acc, dispatcher, a.claimer, a.logger)
	return nil
}

// selectSources picks the pending queue and directory. Seed data is loaded into Postgres when one is configured.
func (a *app) selectSources(ctx context.Context, seed *store.Seed) error {
	if a.db == nil {
		a.queue = seed.Queue()
		a.directory = seed.Directory()
		return nil
	}

	submissions := submission.NewRepository(a.db, a.logger)
	profiles := profile.NewRepository(a.db, a.logger)
	if err := profiles.Upsert(ctx, seed.Candidates...); err != nil {
		return err
	}
	if err := submissions.Enqueue(ctx, seed.Submissions...); err != nil {
		return err
	}
	a.queue = submissions
	a.directory = profiles
	return nil
}

func (a *app) selectStore() error {
	switch a.cfg.StoreDriver {
	case "", "memory":
		a.store = store.NewMemoryStore()
	case "postgres":
		if a.db == nil {
			return errors.New("STORE_DRIVER=postgres needs DB_HOST")
		}
		a.store = document.NewRepository(a.db, a.logger)
	case "redis":
		if a.redis == nil {
			return errors.New("STORE_DRIVER=redis needs a redis connection")
		}
		a.store = appredis.NewStore(a.redis)
	default:
		return fmt.Errorf("unknown STORE_DRIVER '%s'", a.cfg.StoreDriver)
	}
	return nil
}

func (a *app) startScheduler(ctx context.Context) error {
	if !a.cfg.SchedulerEnabled {
		a.logger.Info("Scheduler is disabled")
		return nil
	}
	a.scheduler = scheduler.New(a.processor, scheduler.Config{PollInterval: a.cfg.SchedulerPollInterval}, a.logger)
	return a.scheduler.Start(ctx)
}

func (a *app) startConsumer(ctx context.Context) error {
	if !a.cfg.KafkaConsumerEnabled {
		return nil
	}
	if a.scheduler == nil {
		a.logger.Warn("Kafka consumer is enabled but the scheduler is not; submission events will be ignored")
		return nil
	}

	a.consumer = kafka.NewSubmissionConsumer(kafka.ConsumerConfig{
		Brokers:       a.cfg.KafkaBrokers,
		Topic:         a.cfg.KafkaSubmissionTopic,
		ConsumerGroup: a.cfg.KafkaConsumerGroup,
	}, a.scheduler.Trigger, a.logger)
	return a.consumer.Start(ctx)
}

func (a *app) startHTTP(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)
	e.Use(
		echomw.Recover(),
		echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: a.cfg.AllowOrigins}),
		otelecho.Middleware(a.cfg.AppName),
		middleware.Context(),
		middleware.Logger(a.logger),
	)

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	group := e.Group("/api/v1/routing")
	if a.cfg.AuthEnabled {
		verify, err := middleware.OIDCVerifier(ctx, a.cfg.AuthIssuerURL, a.cfg.AuthClientID)
		if err != nil {
			return err
		}
		group.Use(middleware.Authentication(a.logger, verify))
	}

	var trigger routingroutes.Trigger
	if a.scheduler != nil {
		trigger = a.scheduler
	}
	routingroutes.NewHandler(a.admin, trigger, a.logger).Register(group)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	go func() {
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	a.echo = e
	return nil
}
