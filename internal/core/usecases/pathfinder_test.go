package usecases_test

import (
	"context"
	"testing"
	"time"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
	"github.com/transitlabs/fasttrips-go/internal/core/usecases"
)

// mockSupply implements ports.SupplyModel with a tiny one-trip network:
// taz-A --walk--> S1 --trip T1--> S2 --walk--> taz-B.
type mockSupply struct {
	stopTimes     map[string][]domain.SupplyStopTime // by trip ID
	boardingAt    map[string][]domain.SupplyStopTime  // by stop ID, outbound=false rows
	alightingAt   map[string][]domain.SupplyStopTime  // by stop ID, outbound=true rows
	tripInfo      map[string]*domain.TripInfo
	access        map[string][]domain.AccessEgressLink
	egress        map[string][]domain.AccessEgressLink
	transfers     map[string][]domain.TransferLink
	weights       map[string]domain.WeightSet // keyed by supplyMode
	fareTransfers map[string]*domain.FareTransfer
}

func (m *mockSupply) StopTimesForTrip(ctx context.Context, tripID string) ([]domain.SupplyStopTime, error) {
	return m.stopTimes[tripID], nil
}

func (m *mockSupply) TripsServingStop(ctx context.Context, stopID string, alighting bool, allowedModes []string) ([]domain.SupplyStopTime, error) {
	if alighting {
		return m.alightingAt[stopID], nil
	}
	return m.boardingAt[stopID], nil
}

func (m *mockSupply) TripInfo(ctx context.Context, tripID string) (*domain.TripInfo, error) {
	return m.tripInfo[tripID], nil
}

func (m *mockSupply) AccessLinks(ctx context.Context, taz, demandMode string) ([]domain.AccessEgressLink, error) {
	return m.access[taz], nil
}

func (m *mockSupply) EgressLinks(ctx context.Context, taz, demandMode string) ([]domain.AccessEgressLink, error) {
	return m.egress[taz], nil
}

func (m *mockSupply) TransfersFromStop(ctx context.Context, stopID string) ([]domain.TransferLink, error) {
	return m.transfers[stopID], nil
}

func (m *mockSupply) Weights(ctx context.Context, userClass, demandModeType, demandMode, supplyMode string) (domain.WeightSet, error) {
	return m.weights[supplyMode], nil
}

func (m *mockSupply) FareTransferRule(ctx context.Context, from, to string) (*domain.FareTransfer, error) {
	return m.fareTransfers[from+"->"+to], nil
}

// newDirectTripSupply builds the one-trip network used by most scenarios
// below: a rider walks to S1, rides T1 to S2, then walks to the destination.
func newDirectTripSupply() *mockSupply {
	return &mockSupply{
		stopTimes: map[string][]domain.SupplyStopTime{
			"T1": {
				{TripID: "T1", Seq: 1, StopID: "S1", DepartTime: 490, ArriveTime: 490},
				{TripID: "T1", Seq: 2, StopID: "S2", DepartTime: 510, ArriveTime: 510},
			},
		},
		boardingAt: map[string][]domain.SupplyStopTime{
			"S1": {{TripID: "T1", Seq: 1, StopID: "S1", DepartTime: 490, ArriveTime: 490}},
		},
		alightingAt: map[string][]domain.SupplyStopTime{
			"S2": {{TripID: "T1", Seq: 2, StopID: "S2", DepartTime: 510, ArriveTime: 510}},
		},
		tripInfo: map[string]*domain.TripInfo{
			"T1": {TripID: "T1", SupplyMode: "bus", RouteID: "R1", Attributes: domain.AttributeBag{}},
		},
		access: map[string][]domain.AccessEgressLink{
			"taz-A": {{TAZ: "taz-A", SupplyMode: "walk", StopID: "S1", LinkTime: 5, LinkDist: 0.3}},
		},
		egress: map[string][]domain.AccessEgressLink{
			"taz-B": {{TAZ: "taz-B", SupplyMode: "walk", StopID: "S2", LinkTime: 5, LinkDist: 0.3}},
		},
		transfers: map[string][]domain.TransferLink{},
		weights: map[string]domain.WeightSet{
			"walk": {"preferred_delay_min": 0},
			"bus":  {"in_vehicle_time_min": 1},
		},
		fareTransfers: map[string]*domain.FareTransfer{},
	}
}

func directTripSpec() *domain.PathSpecification {
	return &domain.PathSpecification{
		Outbound:          false,
		Hyperpath:         false,
		OriginTAZ:         "taz-A",
		DestinationTAZ:    "taz-B",
		PreferredTime:     480,
		ValueOfTime:       10,
		AccessDemandMode:  "walk",
		TransitDemandMode: "local",
		EgressDemandMode:  "walk",
		UserClass:         "default",
		PathID:            "trip-1",
	}
}

func defaultCfg() usecases.PathfinderConfig {
	return usecases.PathfinderConfig{
		TimeWindow:      60,
		BumpBuffer:      1,
		StochPathsetSize: 1,
		StochDispersion: 1,
	}
}

func TestFindPath_SimpleDirectTrip(t *testing.T) {
	supply := newDirectTripSupply()
	pf := usecases.NewPathfinder(defaultCfg(), supply, nil, nil)

	path, infos, _, err := pf.FindPath(context.Background(), directTripSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path == nil {
		t.Fatal("expected a path, got nil")
	}
	if path.CapacityProblem {
		t.Error("expected no capacity problem")
	}
	if len(infos) != 1 {
		t.Fatalf("expected exactly 1 distinct path, got %d", len(infos))
	}

	chrono := path.ChronologicalLinks()
	if len(chrono) != 3 {
		t.Fatalf("expected 3 links (access, transit, egress), got %d", len(chrono))
	}
	modes := []domain.DeparrMode{domain.ModeAccess, domain.ModeTransit, domain.ModeEgress}
	for i, link := range chrono {
		if link.State.DeparrMode != modes[i] {
			t.Errorf("link %d: expected mode %s, got %s", i, modes[i], link.State.DeparrMode)
		}
	}
	if chrono[1].State.TripID != "T1" {
		t.Errorf("expected transit link to ride T1, got %s", chrono[1].State.TripID)
	}
	if path.Cost <= 0 {
		t.Errorf("expected a positive recomputed cost, got %f", path.Cost)
	}
}

func TestFindPath_NoAccessLinks_ReturnsNilPath(t *testing.T) {
	supply := newDirectTripSupply()
	delete(supply.access, "taz-A")
	pf := usecases.NewPathfinder(defaultCfg(), supply, nil, nil)

	path, infos, _, err := pf.FindPath(context.Background(), directTripSpec())
	if err != nil {
		t.Fatalf("expected a nil error for an unreachable query, got %v", err)
	}
	if path != nil {
		t.Fatalf("expected a nil path, got %+v", path)
	}
	if infos != nil {
		t.Fatalf("expected nil path infos, got %+v", infos)
	}
}

func TestFindPath_CapacityBumpMarksProblem(t *testing.T) {
	supply := newDirectTripSupply()
	pf := usecases.NewPathfinder(defaultCfg(), supply, bumpAt("T1", 1, "S1", 480), nil)

	path, _, _, err := pf.FindPath(context.Background(), directTripSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path == nil {
		t.Fatal("expected a path despite the bump, got nil")
	}
	if !path.CapacityProblem {
		t.Error("expected the bumped board to be flagged as a capacity problem")
	}
}

// bumpAt returns a CapacityModel that reports stop as full after latest for
// the named trip/seq, forcing applyCapacityCheck to push the candidate back.
type bumpCapacity struct {
	tripID, stopID string
	seq            int
	latest         float64
}

func bumpAt(tripID string, seq int, stopID string, latest float64) *bumpCapacity {
	return &bumpCapacity{tripID: tripID, seq: seq, stopID: stopID, latest: latest}
}

func (b *bumpCapacity) LatestBoardTime(ctx context.Context, tripID string, seq int, stopID string) (float64, bool) {
	if tripID == b.tripID && seq == b.seq && stopID == b.stopID {
		return b.latest, true
	}
	return 0, false
}

func TestFindPath_ContextCancelled(t *testing.T) {
	supply := newDirectTripSupply()
	pf := usecases.NewPathfinder(defaultCfg(), supply, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Give the cancellation a moment to be observable; FindPath checks
	// ctx.Done() at the top of the labeling and enumeration loops.
	time.Sleep(time.Millisecond)

	path, infos, _, err := pf.FindPath(ctx, directTripSpec())
	if err != nil {
		t.Fatalf("expected a cancelled query to fold into a NoPath-shaped result, got error: %v", err)
	}
	if path != nil || infos != nil {
		t.Errorf("expected nil path/infos for a cancelled query, got %v / %v", path, infos)
	}
}
