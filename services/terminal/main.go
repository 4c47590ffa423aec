package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/middleware"

	"github.com/opentill/opentill/pkg"
	"github.com/opentill/opentill/services/terminal/internal/catalog"
	"github.com/opentill/opentill/services/terminal/internal/ops"
	"github.com/opentill/opentill/services/terminal/internal/pos"
	"github.com/opentill/opentill/services/terminal/internal/reconcile"
	"github.com/opentill/opentill/services/terminal/internal/session"
	"github.com/opentill/opentill/services/terminal/internal/store"
	"github.com/opentill/opentill/services/terminal/internal/syncq"
)

const (
	appNamespace = "TERMINAL"
	appName      = "terminal"
	appVersion   = "0.1.0"

	defaultTaxRate    = 0.21
	defaultTableCount = 12
)

func main() {
	config, err := apt.LoadConfig(appNamespace, os.Args[1:])
	if err != nil {
		log.Fatalf("%s(%s) cannot setup with error: %v", appName, appVersion, err)
	}

	logLevel, _ := config.GetString("log.level")
	logger := apt.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	terminalName := config.GetStringOrDef("terminal.name", hostnameOrDef("terminal"))
	role, err := session.ParseRole(config.GetStringOrDef("terminal.role", string(session.RoleClient)))
	if err != nil {
		log.Fatalf("%s(%s) invalid configuration: %v", appName, appVersion, err)
	}

	storePath := config.GetStringOrDef("store.path", "opentill.db")
	cache := store.NewStore(storePath, logger)
	if err := cache.Start(ctx); err != nil {
		log.Fatalf("%s(%s) cannot open local store: %v", appName, appVersion, err)
	}

	remote := catalog.NewClient(config.GetStringOrDef("catalog.url", "http://localhost:8090"))

	queue := syncq.NewQueue(cache, remote, logger)
	if err := queue.Start(ctx); err != nil {
		log.Fatalf("%s(%s) cannot restore sync queue: %v", appName, appVersion, err)
	}

	engine := reconcile.NewEngine(remote, cache, queue, reconcile.Defaults{
		TaxRate:    defaultTaxRate,
		TableCount: defaultTableCount,
	}, logger)

	state := pos.NewCatalog()
	state.SetTaxRate(defaultTaxRate)
	state.SetTableCount(defaultTableCount)
	board := pos.NewBoard(defaultTableCount, defaultTaxRate, logger)
	stock := pos.NewStockLedger(state, logger)

	// The relay reports status to the session, which is built afterwards.
	var deviceSession *session.DeviceSession
	relay, err := pkg.NewNATSRelay(
		config.GetStringOrDef("nats.url", "nats://localhost:4222"),
		terminalName,
		func(connected bool) {
			if deviceSession != nil {
				deviceSession.OnRelayStatus(connected)
			}
		},
	)
	if err != nil {
		log.Fatalf("%s(%s) cannot connect to NATS relay: %v", appName, appVersion, err)
	}

	deviceSession = session.NewDeviceSession(terminalName, role, session.Deps{
		Board:      board,
		Catalog:    state,
		Publisher:  relay,
		Subscriber: relay,
		Settings:   cache,
		Reconciler: engine,
		Queue:      queue,
	}, logger)

	handler := ops.NewHandler(board, state, stock, cache, queue, remote, deviceSession, config, logger)

	lifecycle := []interface{}{
		apt.LifecycleHooks{
			OnStart: deviceSession.Start,
			OnStop: func(stopCtx context.Context) error {
				if err := deviceSession.Stop(stopCtx); err != nil {
					logger.Info("cannot persist session state on shutdown", "error", err)
				}
				_ = relay.Close()
				return cache.Stop(stopCtx)
			},
		},
	}

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      logger,
		DisableCORS: false, // The touch UI is served from a different origin.
	})

	options := []apt.Option{
		apt.WithConfig(config),
		apt.WithLogger(logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", handler),
		apt.WithLifecycle(lifecycle...),
		apt.WithHealthChecks(appName),
	}

	ms := apt.NewMicro(options...)
	logger.Infof("Starting %s(%s) as %s %q", appName, appVersion, role, terminalName)

	if err := ms.Run(ctx); err != nil {
		_ = cache.Stop(context.Background())
		log.Fatalf("%s(%s) stopped with error: %v", appName, appVersion, err)
	}

	logger.Infof("%s(%s) stopped", appName, appVersion)
}

func hostnameOrDef(def string) string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return def
	}
	return name
}
