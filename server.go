package main

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"todo-api/api"
	"todo-api/config"
	"todo-api/storage"
)

type server struct {
	echo   *echo.Echo
	events *api.EventSender
	redis  *redis.Client
}

// newServer builds the store, the optional cache and event publisher, and the
// echo instance with every route registered.
func newServer(cfg *config.Config, logger *log.Logger) (*server, error) {
	// The publisher is built first so a failure leaves nothing to close.
	var publisher api.EventPublisher
	if cfg.Events.ConnectionString != "" {
		qp, err := storage.NewQueuePublisher(cfg.Events.ConnectionString, cfg.Events.Queue)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Events.Timeout)
		err = qp.EnsureQueue(ctx)
		cancel()
		if err != nil {
			return nil, err
		}
		publisher = qp
		logger.Infof("publishing change events to queue %s", cfg.Events.Queue)
	}

	srv := &server{}
	mem := storage.NewMemory()
	var store api.Storage = mem
	if cfg.Redis.ConnectionString != "" {
		srv.redis = redis.NewClient(cfg.Redis.Options())
		store = storage.NewCache(mem, srv.redis, cfg.Redis.CacheTTL)
		logger.Infof("redis read cache enabled, ttl: %v", cfg.Redis.CacheTTL)
	}

	srv.events = api.NewEventSender(publisher, api.EventOptions{
		Workers:        cfg.Events.Workers,
		Buffer:         cfg.Events.Buffer,
		Timeout:        cfg.Events.Timeout,
		HandoffTimeout: cfg.Events.HandoffTimeout,
	}, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(api.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))
	e.Use(api.RequestMetrics(logger))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, store, srv.events)
	srv.echo = e
	return srv, nil
}

// Shutdown stops the HTTP server, then drains pending events and closes Redis.
func (s *server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.events.Close()
	if s.redis != nil {
		if cerr := s.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
