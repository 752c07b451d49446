// Package server wires the chat server together: Postgres storage, the
// moderation pipeline, the connection registry, the chat gateway and its
// gRPC and HTTP surfaces. It also handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/leroytan/the-website-sub000/internal/logging"
	"github.com/leroytan/the-website-sub000/internal/server/audit"
	"github.com/leroytan/the-website-sub000/internal/server/auth"
	"github.com/leroytan/the-website-sub000/internal/server/config"
	"github.com/leroytan/the-website-sub000/internal/server/connections"
	"github.com/leroytan/the-website-sub000/internal/server/httpapi"
	"github.com/leroytan/the-website-sub000/internal/server/metrics"
	"github.com/leroytan/the-website-sub000/internal/server/moderation"
	"github.com/leroytan/the-website-sub000/internal/server/notify"
	"github.com/leroytan/the-website-sub000/internal/server/repositories/repomanager"
	"github.com/leroytan/the-website-sub000/internal/server/services"

	gs "github.com/leroytan/the-website-sub000/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	amqp     *notify.AMQPPublisher
	metrics  *metrics.Metrics
	registry *connections.Registry
	chats    *services.ChatService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger, metrics: metrics.New()}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	pipeline, err := buildPipeline(c, logger, app.metrics)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	app.registry = connections.NewRegistry(logger, app.metrics)

	opts := []services.ChatOption{services.WithGatewayMetrics(app.metrics)}
	if n := app.initNotifier(ctx); n != nil {
		opts = append(opts, services.WithNotifier(n))
	}
	if a := app.initAuditor(ctx); a != nil {
		opts = append(opts, services.WithAuditor(a))
	}

	app.chats = services.NewChatService(db, rm, c, pipeline, app.registry, logger, opts...)
	return app, nil
}

// buildProviders returns the configured LLM providers in priority order.
func buildProviders(c *config.Config, client *http.Client) []moderation.Provider {
	var providers []moderation.Provider
	if c.OllamaURL != "" {
		providers = append(providers, moderation.NewOllamaProvider(c.OllamaURL, c.OllamaModel, client))
	}
	if c.OpenAIURL != "" {
		providers = append(providers, moderation.NewOpenAIProvider(c.OpenAIURL, c.OpenAIAPIKey, c.OpenAIModel, client))
	}
	return providers
}

func buildPipeline(c *config.Config, logger logging.Logger, obs moderation.Observer) (*moderation.Pipeline, error) {
	order, err := moderation.ParseOrder(c.ProviderOrder)
	if err != nil {
		return nil, err
	}

	var classifier moderation.Classifier
	if providers := buildProviders(c, &http.Client{}); len(providers) > 0 {
		classifier = moderation.NewFallbackChain(providers,
			moderation.WithOrder(order),
			moderation.WithTimeout(c.ProviderTimeout),
			moderation.WithLogger(logger.With("module", "moderation")),
			moderation.WithObserver(obs),
		)
	}

	return moderation.NewPipeline(
		moderation.NewPIIDetector(),
		moderation.NewSocialDetector(c.HandleWhitelist),
		classifier,
		c.MinLength,
		logger.With("module", "moderation"),
	), nil
}

// initNotifier connects Redis and AMQP. Without a broker there are no offline
// notifications; without Redis they are not throttled.
func (app *App) initNotifier(ctx context.Context) *notify.Notifier {
	if app.config.AMQPURL == "" {
		return nil
	}
	pub, err := notify.NewAMQPPublisher(app.config.AMQPURL, app.config.AMQPExchange, app.logger)
	if err != nil {
		app.logger.Warn(ctx, "amqp unavailable, offline notifications disabled", "error", err)
		return nil
	}
	app.amqp = pub

	var throttle notify.Throttle
	if app.config.RedisURL != "" {
		client, err := notify.NewRedisClient(ctx, app.config.RedisURL)
		if err != nil {
			app.logger.Warn(ctx, "redis unavailable, notifications not throttled", "error", err)
		} else {
			app.redis = client
			throttle = notify.NewRedisThrottle(client, app.config.NotificationThrottle)
		}
	}
	return notify.NewNotifier(throttle, pub, app.logger)
}

func (app *App) initAuditor(ctx context.Context) *audit.Archive {
	if app.config.S3Bucket == "" {
		return nil
	}
	client, err := audit.NewS3Client(ctx, app.config)
	if err != nil {
		app.logger.Warn(ctx, "s3 unavailable, audit archive disabled", "error", err)
		return nil
	}
	return audit.NewArchive(client, app.config.S3Bucket)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) healthChecks() map[string]httpapi.Pinger {
	checks := map[string]httpapi.Pinger{"postgres": httpapi.PingFunc(app.db.PingContext)}
	if app.redis != nil {
		checks["redis"] = httpapi.PingFunc(func(ctx context.Context) error { return app.redis.Ping(ctx).Err() })
	}
	return checks
}

func (app *App) runHTTPServer(ctx context.Context) error {
	srv := &http.Server{
		Addr: app.config.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Gateway:  app.chats,
			Registry: app.registry,
			Verifier: auth.NewVerifier(app.config.SecretKey),
			Metrics:  app.metrics,
			Checks:   app.healthChecks(),
			Log:      app.logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		app.registry.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (app *App) runGRPCServer(ctx context.Context) error {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.chats, auth.NewVerifier(app.config.SecretKey), app.config.InternalAPIKey)
	return s.Run(ctx)
}

// Run serves until a signal arrives or a server fails, then releases every
// resource.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.runGRPCServer(gctx) })
	g.Go(func() error { return app.runHTTPServer(gctx) })

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "server failed", "error", err)
	}

	app.close()
	app.logger.Info(context.Background(), "App stopped")
	return err
}

func (app *App) close() {
	app.chats.Close()
	if app.amqp != nil {
		_ = app.amqp.Close()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
	_ = app.db.Close()
}
