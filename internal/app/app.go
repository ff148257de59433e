// Package app wires the marigold service together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/marigold/config"
	"github.com/Ramsey-B/marigold/internal/handlers"
	"github.com/Ramsey-B/marigold/pkg/assistant"
	"github.com/Ramsey-B/marigold/pkg/dashboard"
	"github.com/Ramsey-B/marigold/pkg/health"
	"github.com/Ramsey-B/marigold/pkg/httpclient"
	"github.com/Ramsey-B/marigold/pkg/kafka"
	"github.com/Ramsey-B/marigold/pkg/ledger"
	"github.com/Ramsey-B/marigold/pkg/middleware"
	"github.com/Ramsey-B/marigold/pkg/money"
	"github.com/Ramsey-B/marigold/pkg/redis"
	"github.com/Ramsey-B/marigold/pkg/roster"
	"github.com/Ramsey-B/marigold/pkg/startup"
	"github.com/Ramsey-B/marigold/pkg/tracing"
	"github.com/Ramsey-B/marigold/pkg/tracing/exporters"
)

// App is the marigold service: the ledger-backed dashboard, the assistant and the HTTP API.
type App struct {
	cfg      config.Config
	logger   ectologger.Logger
	location *time.Location
	startup  *startup.Startup
	echo     *echo.Echo
	health   *health.Checker
	listener net.Listener
	server   *http.Server
	streams  *handlers.DashboardHandler

	gateway   ledger.Gateway
	dashboard *dashboard.Dashboard
	redis     *redis.Client
	producer  *kafka.Producer
	assistant *assistant.Gateway

	stopTracing func(context.Context) error
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	errs        chan error
}

// New validates cfg and registers every dependency. Nothing connects until Start.
func New(cfg config.Config, logger ectologger.Logger) (*App, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		location: location,
		startup:  startup.NewStartup(logger, cfg.StartupMaxAttempts),
		echo:     echo.New(),
		errs:     make(chan error, 1),
	}
	a.echo.HideBanner = true
	a.echo.HidePort = true

	a.startup.AddDependency(startup.Func{Name: "tracing", StartFunc: a.startTracing, StopFunc: a.shutdownTracing})
	if cfg.LedgerConfigured() {
		a.startup.AddDependency(startup.Func{Name: "ledger", StartFunc: a.startLedger, StopFunc: a.stopLedger})
	} else {
		logger.WithFields(map[string]any{"missing": cfg.MissingLedgerSettings()}).Warn("Ledger is not configured, serving setup guidance only")
	}
	if cfg.RedisEnabled {
		a.startup.AddDependency(startup.Func{Name: "redis", StartFunc: a.startRedis, StopFunc: a.stopRedis})
	}
	if cfg.KafkaEnabled {
		a.startup.AddDependency(startup.Func{Name: "kafka", StartFunc: a.startKafka, StopFunc: a.stopKafka})
	}
	a.startup.AddDependency(startup.Func{Name: "assistant", Requires: optional(cfg.RedisEnabled, "redis"), StartFunc: a.startAssistant})

	httpRequires := []string{"assistant"}
	if cfg.LedgerConfigured() {
		a.startup.AddDependency(startup.Func{
			Name:      "dashboard",
			Requires:  append([]string{"ledger"}, optional(cfg.KafkaEnabled, "kafka")...),
			StartFunc: a.startDashboard,
			StopFunc:  a.stopDashboard,
		})
		httpRequires = append(httpRequires, "dashboard")
	}
	a.startup.AddDependency(startup.Func{Name: "http", Requires: httpRequires, StartFunc: a.startHTTP, StopFunc: a.stopHTTP})

	return a, nil
}

func optional(enabled bool, name string) []string {
	if enabled {
		return []string{name}
	}
	return nil
}

// Echo exposes the router, mainly for tests.
func (a *App) Echo() *echo.Echo {
	return a.echo
}

// Addr is the bound HTTP address once started.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Start brings every dependency up.
func (a *App) Start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		_ = a.startup.Stop(context.WithoutCancel(ctx))
		return err
	}
	a.health.SetReady(true)
	a.logger.WithContext(ctx).Infof("%s %s listening on %s", a.cfg.AppName, a.cfg.Version, a.Addr())
	return nil
}

// Stop shuts every dependency down in reverse order.
func (a *App) Stop(ctx context.Context) error {
	if a.health != nil {
		a.health.SetReady(false)
	}
	return a.startup.Stop(ctx)
}

// Run starts the app, waits for ctx or a fatal server error, then stops it.
func (a *App) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-a.errs:
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Stop(stopCtx))
}

func (a *App) startTracing(ctx context.Context) error {
	shutdown, err := tracing.Setup(ctx, a.cfg.AppName, exporters.ConfigFrom(a.cfg))
	if err != nil {
		return err
	}
	a.stopTracing = shutdown
	return nil
}

func (a *App) shutdownTracing(ctx context.Context) error {
	if a.stopTracing == nil {
		return nil
	}
	return a.stopTracing(ctx)
}

func (a *App) startLedger(ctx context.Context) error {
	switch a.cfg.LedgerDriver {
	case config.LedgerDriverMemory:
		memory, err := newMemoryLedger(a.cfg)
		if err != nil {
			return err
		}
		a.gateway = memory
		return nil
	case config.LedgerDriverMongo:
		gateway, err := ledger.NewMongo(ctx, a.cfg, a.logger)
		if err != nil {
			return err
		}
		if err := gateway.Ping(ctx); err != nil {
			_ = gateway.Close(ctx)
			return err
		}
		a.gateway = gateway
		return nil
	default:
		return fmt.Errorf("unknown LEDGER_DRIVER %q", a.cfg.LedgerDriver)
	}
}

func newMemoryLedger(cfg config.Config) (*ledger.Memory, error) {
	memory := ledger.NewMemory()
	if cfg.LedgerSeedFile == "" {
		return memory, nil
	}

	file, err := os.Open(cfg.LedgerSeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open LEDGER_SEED_FILE: %w", err)
	}
	defer file.Close()

	if err := memory.LoadSeed(file); err != nil {
		return nil, err
	}
	return memory, nil
}

func (a *App) stopLedger(ctx context.Context) error {
	if a.gateway == nil {
		return nil
	}
	return a.gateway.Close(ctx)
}

func (a *App) startRedis(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.ConfigFrom(a.cfg), a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	return nil
}

func (a *App) stopRedis(context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *App) startKafka(context.Context) error {
	a.producer = kafka.NewProducer(kafka.ConfigFrom(a.cfg), a.logger)
	return nil
}

func (a *App) stopKafka(context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

func (a *App) startAssistant(ctx context.Context) error {
	if !a.cfg.AssistantConfigured() {
		a.logger.WithContext(ctx).Warn("Assistant is not configured, analysis endpoints will answer 503")
		return nil
	}

	var guard assistant.Guard = assistant.NewLocalGuard()
	if a.redis != nil {
		locker := redis.NewLocker(a.redis, a.cfg.RedisLockPrefix)
		guard = assistant.Guards{guard, assistant.NewRedisGuard(locker, a.cfg.AssistantInFlightTTL, a.logger)}
	}

	client := httpclient.NewClient(httpclient.DefaultConfig(), a.logger)
	model := assistant.NewChatModel(client, a.cfg.AssistantBaseURL, a.cfg.AssistantAPIKey, a.cfg.AssistantModel)
	gateway, err := assistant.New(model, guard, a.logger, a.cfg.AssistantTimeout)
	if err != nil {
		return err
	}
	a.assistant = gateway
	return nil
}

func (a *App) startDashboard(ctx context.Context) error {
	a.dashboard = dashboard.New(a.gateway, a.logger, dashboard.Options{
		Location:     a.location,
		TickInterval: a.cfg.ReferenceClockInterval,
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.dashboard.Run(runCtx); err != nil {
			a.logger.WithError(err).Error("Dashboard stopped with an error")
		}
	}()

	if a.producer != nil {
		updates, stop := a.dashboard.Listen()
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer stop()
			a.producer.Forward(runCtx, updates)
		}()
	}
	return nil
}

func (a *App) stopDashboard(context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	return nil
}

func (a *App) startHTTP(context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", a.cfg.Port, err)
	}
	// routes are mounted once, even when startup retries this step
	if a.health == nil {
		if err := a.routes(); err != nil {
			_ = listener.Close()
			return err
		}
	}
	a.listener = listener
	a.echo.Listener = listener

	a.server = &http.Server{
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}
	// open streams never finish on their own, so end them before draining
	a.server.RegisterOnShutdown(a.streams.CloseStreams)

	server := a.server
	go func() {
		if err := a.echo.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server failed")
			select {
			case a.errs <- err:
			default:
			}
		}
	}()
	return nil
}

func (a *App) stopHTTP(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *App) routes() error {
	formatter, err := money.NewFormatter(a.cfg.Currency, a.cfg.Locale)
	if err != nil {
		return err
	}
	table, err := roster.NewTable(a.cfg.Locale)
	if err != nil {
		return err
	}

	e := a.echo
	e.HTTPErrorHandler = middleware.Error(a.logger)
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	// interfaces stay nil, not typed-nil, when a component is off
	var (
		source        handlers.Dashboard
		views         health.ViewSource
		ledgerPinger  health.Pinger
		redisPinger   health.Pinger
		assistantImpl handlers.Assistant
	)
	if a.dashboard != nil {
		source, views = a.dashboard, a.dashboard
	}
	if a.gateway != nil {
		ledgerPinger = a.gateway
	}
	if a.redis != nil {
		redisPinger = a.redis
	}
	if a.assistant != nil {
		assistantImpl = a.assistant
	}

	a.health = health.NewChecker(ledgerPinger, redisPinger, views, a.cfg.Version)
	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	a.streams = handlers.NewDashboardHandler(source, handlers.NewPresenter(formatter), table, a.logger)
	handlers.Register(e, handlers.Handlers{
		Setup:     handlers.NewSetupHandler(a.cfg.MissingLedgerSettings(), config.LedgerVariables(), a.cfg.AssistantConfigured()),
		Dashboard: a.streams,
		Assistant: handlers.NewAssistantHandler(assistantImpl, source, a.logger),
	})
	return nil
}
