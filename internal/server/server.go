// Package server exposes the report engine over HTTP: auth, one-off report
// runs, and cron-driven schedules.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/agent/core"
	"github.com/creditlens/reportflow/internal/agent/telemetry"
	"github.com/creditlens/reportflow/internal/knowledge"
	"github.com/creditlens/reportflow/internal/session"
	"github.com/creditlens/reportflow/internal/store"
	deepseek "github.com/creditlens/reportflow/provider/deepseek"
)

func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	dsn, err := cfg.PostgresDSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		baseLogger.Printf("migrations: %v", err)
	}
	st, err := store.New(ctx, dsn)
	if err != nil {
		return err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	llm, err := deepseek.NewClient(cfg.LLM)
	if err != nil {
		return err
	}
	engine := knowledge.NewClient(cfg.Engine)
	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch, err := core.NewOrchestrator(ctx, cfg, orchLogger, tele, llm, engine)
	if err != nil {
		return err
	}

	// Snapshot store: redis when configured, in-memory otherwise
	storeType := session.InMemoryStore
	if cfg.Storage.Redis.Host != "" {
		storeType = session.RedisStore
	}
	snaps, err := session.NewStore(storeType, cfg.Storage)
	if err != nil {
		return err
	}
	orch.SetSnapshotStore(snaps)

	// Scheduler lock client shares the redis settings
	var rdb *redis.Client
	if storeType == session.RedisStore {
		rdb = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}
	auth := &AuthHandler{Store: st, Secret: []byte(secret)}

	api := e.Group("/api")
	auth.Register(api.Group("/auth"))

	rh := &RunsHandler{Store: st, Orch: orch}
	rh.Register(api.Group("/runs"), auth.Secret)

	sh := &SchedulesHandler{Store: st}
	sh.Register(api.Group("/schedules"), auth.Secret)

	sched := &Scheduler{Store: st, Orch: orch, Rdb: rdb, Stop: make(chan struct{})}
	sched.Start()
	defer close(sched.Stop)

	return e.Start(cfg.Server.Listen)
}
