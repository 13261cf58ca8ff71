package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// PathFoundEvent is published once a query completes successfully.
type PathFoundEvent struct {
	PathID          string    `json:"path_id"`
	Cost            float64   `json:"cost"`
	Fare            float64   `json:"fare"`
	CapacityProblem bool      `json:"capacity_problem"`
	DistinctPaths   int       `json:"distinct_paths"`
	FoundAt         time.Time `json:"found_at"`
}

// PathFailedEvent is published when a query completes with no itinerary, or
// aborts on an invariant violation.
type PathFailedEvent struct {
	PathID   string    `json:"path_id"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// PathfinderEvents publishes findpath outcomes onto JetStream, mirroring the
// vehicle/delay event streams but for pathfinding queries rather than
// realtime vehicle feeds.
type PathfinderEvents struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPathfinderEvents connects to NATS and ensures the PATHFINDER_EVENTS
// stream exists.
func NewPathfinderEvents(url string) (*PathfinderEvents, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      "PATHFINDER_EVENTS",
		Subjects:  []string{"pathfinder.>"},
		Retention: nats.WorkQueuePolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		if _, err := js.UpdateStream(cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &PathfinderEvents{conn: conn, js: js}, nil
}

// PublishPathFound reports a successful query.
func (e *PathfinderEvents) PublishPathFound(ctx context.Context, pathID string, cost, fare float64, capacityProblem bool, distinctPaths int) error {
	evt := PathFoundEvent{
		PathID:          pathID,
		Cost:            cost,
		Fare:            fare,
		CapacityProblem: capacityProblem,
		DistinctPaths:   distinctPaths,
		FoundAt:         time.Now(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = e.js.Publish("pathfinder.path.found."+pathID, data)
	return err
}

// PublishPathFailed reports a query that found no itinerary or aborted.
func (e *PathfinderEvents) PublishPathFailed(ctx context.Context, pathID, reason string) error {
	evt := PathFailedEvent{PathID: pathID, Reason: reason, FailedAt: time.Now()}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = e.js.Publish("pathfinder.path.failed."+pathID, data)
	return err
}

// Close drains and closes the underlying connection.
func (e *PathfinderEvents) Close() {
	_ = e.conn.Drain()
}
