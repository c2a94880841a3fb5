package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "BarFeed/internal/domain/repository"
	"BarFeed/internal/handler/api"
	icache "BarFeed/internal/service/cache"
	"BarFeed/internal/usecase"
	"BarFeed/pkg/config"
	xhttp "BarFeed/pkg/http"
	pkgkafka "BarFeed/pkg/kafka"
	applogger "BarFeed/pkg/logger"
)

// Components are the long-lived parts the App starts and stops. Consumer,
// Commands, Hub and Producer may be nil.
type Components struct {
	HTTP     *xhttp.Server
	Engine   *usecase.StreamEngine
	Hub      *api.Hub
	Consumer *pkgkafka.Consumer
	Commands *usecase.SubscriptionCommandHandler
	Cache    icache.BytesCache
	Store    domrepo.MarketStore
	Producer *pkgkafka.Producer
}

// App encapsulates the application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components
}

func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	return &App{cfg: cfg, log: log, c: c}
}

// Run starts every component and blocks until ctx is done or the process
// receives SIGINT/SIGTERM, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.c.HTTP.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	if a.c.Consumer != nil && a.c.Commands != nil {
		a.c.Consumer.RegisterHandler(a.c.Commands)
		if err := a.c.Consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
		} else {
			a.log.Info("subscription commands consumed", applogger.String("topic", a.c.Commands.Topic()))
		}
	}

	if a.cfg.Stream.Autostart {
		a.c.Engine.Start()
	}

	a.log.Info("barfeed started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("store", a.cfg.Store.Type),
		applogger.Int("port", a.cfg.Server.Port),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops components in dependency order: nothing that produces
// work outlives what it feeds.
func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.c.Engine.Stop()

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.c.Hub != nil {
		a.c.Hub.Close()
	}
	if err := a.c.HTTP.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.c.Cache != nil {
		if err := a.c.Cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.c.Store != nil {
		if err := a.c.Store.Close(); err != nil {
			a.log.Warn("store close error", applogger.Error(err))
		}
	}

	a.log.RemoveCollector()
	if a.c.Producer != nil {
		if err := a.c.Producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
