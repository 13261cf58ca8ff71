package ports

import (
	"context"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
)

// SupplyModel is the read-only network the Pathfinder queries during
// labeling and enumeration. Implementations must serve data for a single
// fixed service day; the Pathfinder never writes through this port.
type SupplyModel interface {
	// StopTimesForTrip returns a trip's stop-times sorted by Seq ascending.
	StopTimesForTrip(ctx context.Context, tripID string) ([]domain.SupplyStopTime, error)

	// TripsServingStop returns the stop-time rows for trips serving the given
	// stop, restricted to the supply modes in allowedModes (nil/empty means
	// no restriction). When alighting is true, the returned rows are the
	// stop a rider could alight at (outbound trip-relaxation, which looks
	// backward from an arrival); when false, they are the stop a rider could
	// board at (inbound trip-relaxation, looking forward from a departure).
	TripsServingStop(ctx context.Context, stopID string, alighting bool, allowedModes []string) ([]domain.SupplyStopTime, error)

	// TripInfo returns the attribute bag and fare period for one trip.
	TripInfo(ctx context.Context, tripID string) (*domain.TripInfo, error)

	// AccessLinks returns the TAZ<->stop links available from the given TAZ
	// for the given access demand mode.
	AccessLinks(ctx context.Context, taz, demandMode string) ([]domain.AccessEgressLink, error)

	// EgressLinks is the egress-side counterpart of AccessLinks.
	EgressLinks(ctx context.Context, taz, demandMode string) ([]domain.AccessEgressLink, error)

	// TransfersFromStop returns the walk links out of a stop, including the
	// zero-walk self-transfer.
	TransfersFromStop(ctx context.Context, stopID string) ([]domain.TransferLink, error)

	// Weights returns the weight table for a (userClass, demandModeType,
	// demandMode, supplyMode) combination.
	Weights(ctx context.Context, userClass, demandModeType, demandMode, supplyMode string) (domain.WeightSet, error)

	// FareTransferRule returns the rule governing a transfer from one fare
	// period to another, or nil if no rule applies (full fare charged).
	FareTransferRule(ctx context.Context, from, to string) (*domain.FareTransfer, error)
}

// CapacityModel answers the bump-wait question (§4.6): the latest time a
// rider may still board a given trip at a given stop before it is declared
// full. A nil return (ok==false) means the trip has no recorded capacity
// constraint at that stop and boarding is always allowed.
type CapacityModel interface {
	LatestBoardTime(ctx context.Context, tripID string, seq int, stopID string) (latest float64, ok bool)
}

// Tracer receives human-readable trace lines during labeling and
// enumeration when a PathSpecification has Trace set (§6). Implementations
// must not block the search; a channel-backed or buffering Tracer is
// expected to drop lines under backpressure rather than stall pathfinding.
type Tracer interface {
	Trace(ctx context.Context, pathID string, line string)
}
