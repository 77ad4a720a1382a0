package app

import (
	"context"
	"strconv"
	"time"

	"github.com/appetiteclub/apt"
	aptevents "github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/apt/middleware"
	"github.com/appetiteclub/kds/internal/events"
	"github.com/appetiteclub/kds/internal/kds"
	"github.com/appetiteclub/kds/internal/mongo"
	"github.com/appetiteclub/kds/pkg"
	"github.com/appetiteclub/kds/pkg/event"
)

const (
	AppName    = "kds"
	AppVersion = "0.1.0"
)

// App encapsulates the display service application.
type App struct {
	config      *apt.Config
	logger      apt.Logger
	micro       *apt.Micro
	itemRepo    *mongo.ItemRepo
	stationRepo *mongo.StationRepo
}

func New(config *apt.Config, logger apt.Logger) (*App, error) {
	return &App{
		config: config,
		logger: logger,
	}, nil
}

// Initialize sets up all dependencies and components.
func (a *App) Initialize(ctx context.Context) error {
	a.itemRepo = mongo.NewItemRepo(a.config, a.logger)
	a.stationRepo = mongo.NewStationRepo(a.config, a.logger)

	if err := kds.ApplyDemoSeeds(ctx, a.config, a.stationRepo.GetDatabase, a.logger); err != nil {
		a.logger.Errorf("Demo seeding failed (non-fatal): %v", err)
	}

	natsURL, _ := a.config.GetString("nats.url")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	var itemStream *pkg.NATSStream
	var orderSubscriber *pkg.NATSSubscriber
	var eventPublisher aptevents.Publisher

	streamEnabled, _ := a.config.GetString("nats.stream.enabled")
	if streamEnabled == "true" && natsURL != "" {
		streamCfg := pkg.NATSStreamConfig{
			URL:          natsURL,
			StreamName:   "KDS_EVENTS",
			Topic:        event.ItemsTopic,
			ConsumerName: "kds-publisher",
			MaxAge:       24 * time.Hour,
			MaxMsgs:      0,
		}
		var err error
		itemStream, err = pkg.NewNATSStream(streamCfg)
		if err != nil {
			return err
		}
		a.logger.Info("NATS stream initialized for persistent events")
		eventPublisher = itemStream

		orderSubscriber, err = pkg.NewNATSSubscriber(natsURL)
		if err != nil {
			return err
		}
	} else {
		publisher, err := pkg.NewNATSPublisher(natsURL)
		if err != nil {
			return err
		}
		eventPublisher = publisher

		orderSubscriber, err = pkg.NewNATSSubscriber(natsURL)
		if err != nil {
			return err
		}
	}

	var streamForSet aptevents.StreamConsumer
	if itemStream != nil {
		streamForSet = itemStream
	}
	workingSet := kds.NewWorkingSet(streamForSet, a.itemRepo, a.logger)

	gateway := kds.NewGateway(a.logger)

	router := kds.NewRouter(a.stationRepo, workingSet, a.itemRepo, gateway, eventPublisher, a.failOpen(), a.logger)
	lifecycle := kds.NewLifecycle(workingSet, a.itemRepo, gateway, eventPublisher, a.logger)
	board := kds.NewBoard(workingSet)
	stats := kds.NewStats(workingSet, a.statsWindow())

	sweeper := kds.NewSweeper(workingSet, a.stationRepo, a.itemRepo, gateway, eventPublisher, a.sweepInterval(), a.logger)

	eventSubscriber := events.NewOrderSubscriber(orderSubscriber, router, a.logger)

	handler := kds.NewHandler(kds.HandlerDeps{
		Lifecycle: lifecycle,
		Board:     board,
		Stats:     stats,
		Set:       workingSet,
	}, a.config, a.logger)
	stationHandler := kds.NewStationHandler(a.stationRepo, a.config, a.logger)
	sseHandler := kds.NewSSEHandler(gateway, board, a.logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      a.logger,
		DisableCORS: true,
	})
	stack = append(stack, middleware.InternalOnly())

	lifecycles := []interface{}{a.itemRepo, a.stationRepo, eventSubscriber, sweeper}

	// Warm the working set after the repo is started.
	setLifecycle := apt.LifecycleHooks{
		OnStart: func(ctx context.Context) error {
			if err := workingSet.Warm(ctx); err != nil {
				a.logger.Info("failed to warm working set", "error", err)
			}
			return nil
		},
	}
	lifecycles = append(lifecycles, setLifecycle)

	if itemStream != nil {
		streamLifecycle := apt.LifecycleHooks{
			OnStop: func(context.Context) error { return itemStream.Close() },
		}
		lifecycles = append(lifecycles, streamLifecycle)
	}
	if orderSubscriber != nil {
		subscriberLifecycle := apt.LifecycleHooks{
			OnStop: func(context.Context) error { return orderSubscriber.Close() },
		}
		lifecycles = append(lifecycles, subscriberLifecycle)
	}

	options := []apt.Option{
		apt.WithConfig(a.config),
		apt.WithLogger(a.logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", handler, stationHandler, sseHandler),
		apt.WithLifecycle(lifecycles...),
		apt.WithHealthChecks(AppName),
	}

	a.micro = apt.NewMicro(options...)
	return nil
}

// Run starts the application.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Starting %s(%s)", AppName, AppVersion)
	if err := a.micro.Run(ctx); err != nil {
		return err
	}
	a.logger.Infof("%s(%s) stopped", AppName, AppVersion)
	return nil
}

func (a *App) failOpen() bool {
	value, _ := a.config.GetString("routing.failopen")
	return value != "false"
}

func (a *App) statsWindow() int {
	value, _ := a.config.GetString("stats.window")
	if value == "" {
		return kds.DefaultStatsWindow
	}
	window, err := strconv.Atoi(value)
	if err != nil || window <= 0 {
		a.logger.Info("invalid stats.window value, using default", "value", value)
		return kds.DefaultStatsWindow
	}
	return window
}

func (a *App) sweepInterval() time.Duration {
	value, _ := a.config.GetString("escalation.interval")
	if value == "" {
		return kds.DefaultSweepInterval
	}
	interval, err := time.ParseDuration(value)
	if err != nil || interval <= 0 {
		a.logger.Info("invalid escalation.interval value, using default", "value", value)
		return kds.DefaultSweepInterval
	}
	return interval
}
