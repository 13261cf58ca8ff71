package http

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
	"github.com/transitlabs/fasttrips-go/internal/pkg/metrics"
	"github.com/transitlabs/fasttrips-go/internal/pkg/telemetry"
)

// findPathRequest is the wire shape of a POST /v1/findpath body. It mirrors
// domain.PathSpecification's query-facing fields; internal bookkeeping
// fields (IterationIndex, PathIndex) are never caller-supplied.
type findPathRequest struct {
	Outbound          bool    `json:"outbound"`
	Hyperpath         bool    `json:"hyperpath"`
	OriginTAZ         string  `json:"origin_taz"`
	DestinationTAZ    string  `json:"destination_taz"`
	PreferredTime     float64 `json:"preferred_time"`
	ValueOfTime       float64 `json:"value_of_time"`
	AccessDemandMode  string  `json:"access_demand_mode"`
	TransitDemandMode string  `json:"transit_demand_mode"`
	EgressDemandMode  string  `json:"egress_demand_mode"`
	UserClass         string  `json:"user_class"`
	Purpose           string  `json:"purpose"`
	Trace             bool    `json:"trace"`
	PersonID          string  `json:"person_id"`
	PersonTripID      string  `json:"person_trip_id"`
	PathID            string  `json:"path_id"`
}

type pathLinkResponse struct {
	StopID     string  `json:"stop_id"`
	Mode       string  `json:"mode"`
	TripID     string  `json:"trip_id,omitempty"`
	DeparrTime float64 `json:"deparr_time"`
	ArrdepTime float64 `json:"arrdep_time"`
	LinkCost   float64 `json:"link_cost"`
	LinkFare   float64 `json:"link_fare"`
}

type itineraryResponse struct {
	Cost            float64            `json:"cost"`
	Fare            float64            `json:"fare"`
	CapacityProblem bool               `json:"capacity_problem"`
	Links           []pathLinkResponse `json:"links"`
}

type findPathResponse struct {
	Found      bool                `json:"found"`
	Chosen     *itineraryResponse  `json:"chosen,omitempty"`
	Alternates []itineraryResponse `json:"alternates,omitempty"`
}

// FindPathHandler runs one pathfinding query synchronously and returns the
// chosen itinerary plus whatever alternates were enumerated alongside it.
func FindPathHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Pathfinder == nil {
			return errInternal(c, "pathfinder not available")
		}

		var req findPathRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.OriginTAZ == "" || req.DestinationTAZ == "" {
			return errBadRequest(c, "origin_taz and destination_taz are required")
		}
		if req.PathID == "" {
			reqID, _ := c.Locals("requestid").(string)
			req.PathID = reqID
		}

		spec := &domain.PathSpecification{
			Outbound:          req.Outbound,
			Hyperpath:         req.Hyperpath,
			OriginTAZ:         req.OriginTAZ,
			DestinationTAZ:    req.DestinationTAZ,
			PreferredTime:     req.PreferredTime,
			ValueOfTime:       req.ValueOfTime,
			AccessDemandMode:  req.AccessDemandMode,
			TransitDemandMode: req.TransitDemandMode,
			EgressDemandMode:  req.EgressDemandMode,
			UserClass:         req.UserClass,
			Purpose:           req.Purpose,
			Trace:             req.Trace,
			PersonID:          req.PersonID,
			PersonTripID:      req.PersonTripID,
			PathID:            req.PathID,
		}

		var ctx context.Context = c.Context()
		var span trace.Span
		if deps.Tracer != nil {
			ctx, span = deps.Tracer.StartQuery(ctx, spec.PathID, spec.Outbound, spec.Hyperpath)
			defer span.End()
		}

		start := time.Now()
		path, alternates, _, err := deps.Pathfinder.FindPath(ctx, spec)

		outcome := "found"
		if err != nil {
			outcome = "error"
		} else if path == nil {
			outcome = "not_found"
		}
		metrics.ObserveQuery(spec.Outbound, spec.Hyperpath, outcome, time.Since(start))
		if span != nil {
			telemetry.RecordOutcome(span, err)
		}

		if err != nil {
			if deps.PathfinderEvents != nil {
				_ = deps.PathfinderEvents.PublishPathFailed(c.Context(), spec.PathID, err.Error())
			}
			return errInternal(c, err.Error())
		}
		if path == nil {
			if deps.PathfinderEvents != nil {
				_ = deps.PathfinderEvents.PublishPathFailed(c.Context(), spec.PathID, "no path found")
			}
			return c.JSON(findPathResponse{Found: false})
		}

		resp := findPathResponse{Found: true, Chosen: toItineraryResponse(path)}
		for _, alt := range alternates {
			resp.Alternates = append(resp.Alternates, itineraryResponse{
				Cost:            alt.Cost,
				CapacityProblem: alt.CapacityProblem,
			})
		}

		if deps.PathfinderEvents != nil {
			_ = deps.PathfinderEvents.PublishPathFound(c.Context(), spec.PathID, path.Cost, path.Fare, path.CapacityProblem, len(alternates))
		}
		metrics.ObserveDistinctPaths(len(alternates))

		return c.JSON(resp)
	}
}

func toItineraryResponse(p *domain.Path) *itineraryResponse {
	links := p.ChronologicalLinks()
	out := &itineraryResponse{
		Cost:            p.Cost,
		Fare:            p.Fare,
		CapacityProblem: p.CapacityProblem,
		Links:           make([]pathLinkResponse, 0, len(links)),
	}
	for _, l := range links {
		out.Links = append(out.Links, pathLinkResponse{
			StopID:     l.StopID,
			Mode:       l.State.DeparrMode.String(),
			TripID:     l.State.TripID,
			DeparrTime: l.State.DeparrTime,
			ArrdepTime: l.State.ArrdepTime,
			LinkCost:   l.State.LinkCost,
			LinkFare:   l.State.LinkFare,
		})
	}
	return out
}

// traceRegistry fans a query's Trace() lines out to any WebSocket clients
// watching that path_id, mirroring WebSocketHandler's NATS subject fan-out
// but over an in-process channel since labeling trace lines never leave
// this instance.
type traceRegistry struct {
	mu   sync.Mutex
	subs map[string][]chan string
}

func newTraceRegistry() *traceRegistry {
	return &traceRegistry{subs: make(map[string][]chan string)}
}

func (r *traceRegistry) subscribe(pathID string) chan string {
	ch := make(chan string, 64)
	r.mu.Lock()
	r.subs[pathID] = append(r.subs[pathID], ch)
	r.mu.Unlock()
	return ch
}

func (r *traceRegistry) unsubscribe(pathID string, ch chan string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chans := r.subs[pathID]
	for i, c := range chans {
		if c == ch {
			r.subs[pathID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(r.subs[pathID]) == 0 {
		delete(r.subs, pathID)
	}
	close(ch)
}

// Trace implements ports.Tracer, delivering each line to subscribers of
// the matching path_id without blocking the search on a slow client.
func (r *traceRegistry) Trace(_ context.Context, pathID string, line string) {
	r.mu.Lock()
	chans := append([]chan string(nil), r.subs[pathID]...)
	r.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- line:
		default:
		}
	}
}

// FindPathTraceHandler upgrades to a WebSocket that streams a running
// query's Trace() lines for the given path_id, closing once the query
// finishes (no further lines arrive within the connection's lifetime).
func FindPathTraceHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()
		pathID := c.Params("path_id")
		if deps.TraceRegistry == nil || pathID == "" {
			return
		}

		ch := deps.TraceRegistry.subscribe(pathID)
		defer deps.TraceRegistry.unsubscribe(pathID, ch)

		for line := range ch {
			if err := c.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		}
	}
}
