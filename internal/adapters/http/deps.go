package http

import (
	"github.com/nats-io/nats.go"
	natsadapter "github.com/transitlabs/fasttrips-go/internal/adapters/nats"
	"github.com/transitlabs/fasttrips-go/internal/adapters/postgres"
	"github.com/transitlabs/fasttrips-go/internal/adapters/valkey"
	"github.com/transitlabs/fasttrips-go/internal/core/usecases"
	"github.com/transitlabs/fasttrips-go/internal/pkg/telemetry"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Stops            *usecases.StopService
	Routes           *usecases.RouteService
	Agencies         *usecases.AgencyService
	Departures       *usecases.DepartureService
	Trips            *usecases.TripService
	Pathfinder       *usecases.Pathfinder
	PathfinderEvents *natsadapter.PathfinderEvents
	TraceRegistry    *traceRegistry
	Tracer           *telemetry.Tracer
	NATS             *nats.Conn
	DB               *postgres.DB
	Cache            *valkey.Cache
}

// NewTraceRegistry constructs the registry used to fan a findpath query's
// trace lines out to WebSocket subscribers of its path_id.
func NewTraceRegistry() *traceRegistry {
	return newTraceRegistry()
}
