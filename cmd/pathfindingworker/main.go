package main

import (
	"context"
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/transitlabs/fasttrips-go/internal/adapters/postgres"
	"github.com/transitlabs/fasttrips-go/internal/adapters/valkey"
	"github.com/transitlabs/fasttrips-go/internal/core/ports"
	"github.com/transitlabs/fasttrips-go/internal/core/usecases"
	"github.com/transitlabs/fasttrips-go/internal/pkg/config"
	"github.com/transitlabs/fasttrips-go/internal/pkg/telemetry"
	"github.com/transitlabs/fasttrips-go/internal/workflows"
)

// main runs a Temporal worker that executes PathfindingWorkflow/FindPath
// activities on their own "pathfinding-queue" task queue.
func main() {
	cfg, err := config.Load("bilbopass-pathfindingworker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var supply ports.SupplyModel = postgres.NewSupplyRepo(db)
	if cache, err := valkey.New(cfg.Valkey.Addr); err == nil {
		defer cache.Close()
		supply = valkey.NewSupplyCache(cache, supply.(*postgres.SupplyRepo))
	} else {
		log.Printf("valkey unavailable, running without cache: %v", err)
	}
	capacity := postgres.NewVehiclePositionRepo(db)

	pathfinderCfg := usecases.PathfinderConfig{
		TimeWindow:                    cfg.Pathfinder.TimeWindow,
		BumpBuffer:                    cfg.Pathfinder.BumpBuffer,
		StochPathsetSize:              cfg.Pathfinder.StochPathsetSize,
		StochDispersion:               cfg.Pathfinder.StochDispersion,
		StochMaxStopProcessCount:      cfg.Pathfinder.StochMaxStopProcessCount,
		TransferFareIgnorePathfinding: cfg.Pathfinder.TransferFareIgnorePathfinding,
		TransferFareIgnorePathenum:    cfg.Pathfinder.TransferFareIgnorePathenum,
	}
	pathfinder := usecases.NewPathfinder(pathfinderCfg, supply, capacity, telemetry.SpanTracer{})

	c, err := client.Dial(client.Options{HostPort: "localhost:7233"})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, "pathfinding-queue", worker.Options{})
	w.RegisterWorkflow(workflows.PathfindingWorkflow)
	w.RegisterActivity(&workflows.PathfinderActivities{Pathfinder: pathfinder})

	log.Println("pathfinding worker started")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
