package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/transitlabs/fasttrips-go/internal/adapters/http"
	natsadapter "github.com/transitlabs/fasttrips-go/internal/adapters/nats"
	"github.com/transitlabs/fasttrips-go/internal/adapters/postgres"
	"github.com/transitlabs/fasttrips-go/internal/adapters/valkey"
	"github.com/transitlabs/fasttrips-go/internal/core/ports"
	"github.com/transitlabs/fasttrips-go/internal/core/usecases"
	"github.com/transitlabs/fasttrips-go/internal/pkg/config"
	"github.com/transitlabs/fasttrips-go/internal/pkg/logging"
	"github.com/transitlabs/fasttrips-go/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("bilbopass-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	var tracer *telemetry.Tracer
	if cfg.Telemetry.Enabled {
		tracer, err = telemetry.InitTracer(ctx, cfg.Telemetry.TempoAddr, cfg.Telemetry.ServiceName, "1.0.0")
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
			tracer = nil
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = tracer.Shutdown(shutdownCtx)
			}()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Pathfinding event stream
	pathfinderEvents, err := natsadapter.NewPathfinderEvents(cfg.NATS.URL)
	if err != nil {
		slog.Warn("pathfinder events unavailable", "error", err)
	} else {
		defer pathfinderEvents.Close()
	}

	// Repos
	agencyRepo := postgres.NewAgencyRepo(db)
	stopRepo := postgres.NewStopRepo(db)
	routeRepo := postgres.NewRouteRepo(db)
	vehicleRepo := postgres.NewVehiclePositionRepo(db)
	tripRepo := postgres.NewTripRepo(db)
	supplyRepo := postgres.NewSupplyRepo(db)

	var supply ports.SupplyModel = supplyRepo
	if cache != nil {
		supply = valkey.NewSupplyCache(cache, supplyRepo)
	}

	// Use cases
	agencySvc := usecases.NewAgencyService(agencyRepo)
	stopSvc := usecases.NewStopService(stopRepo, cache)
	routeSvc := usecases.NewRouteService(routeRepo, vehicleRepo)
	departureSvc := usecases.NewDepartureService(tripRepo)
	tripSvc := usecases.NewTripService(tripRepo)

	pathfinderCfg := usecases.PathfinderConfig{
		TimeWindow:                    cfg.Pathfinder.TimeWindow,
		BumpBuffer:                    cfg.Pathfinder.BumpBuffer,
		StochPathsetSize:              cfg.Pathfinder.StochPathsetSize,
		StochDispersion:               cfg.Pathfinder.StochDispersion,
		StochMaxStopProcessCount:      cfg.Pathfinder.StochMaxStopProcessCount,
		TransferFareIgnorePathfinding: cfg.Pathfinder.TransferFareIgnorePathfinding,
		TransferFareIgnorePathenum:    cfg.Pathfinder.TransferFareIgnorePathenum,
	}
	pathfinder := usecases.NewPathfinder(pathfinderCfg, supply, vehicleRepo, telemetry.SpanTracer{})

	deps := &http.Dependencies{
		Agencies:         agencySvc,
		Stops:            stopSvc,
		Routes:           routeSvc,
		Departures:       departureSvc,
		Trips:            tripSvc,
		Pathfinder:       pathfinder,
		PathfinderEvents: pathfinderEvents,
		TraceRegistry:    http.NewTraceRegistry(),
		Tracer:           tracer,
		NATS:             natsConn,
		DB:               db,
		Cache:            cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "BilboPass API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.bilbopass.eus",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
