package usecases_test

import (
	"math"
	"testing"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
	"github.com/transitlabs/fasttrips-go/internal/core/usecases"
)

func TestHyperlink_Deterministic_KeepsOnlyLowestCost(t *testing.T) {
	h := usecases.NewHyperlink("S1", true, false, 60, 1)

	rejected, changed := h.AddLink(domain.StopState{DeparrMode: domain.ModeTransfer, StopSuccPred: "A", Cost: 10})
	if rejected || !changed {
		t.Fatalf("first link: rejected=%v changed=%v, want false,true", rejected, changed)
	}
	if got := h.HyperpathCost(false); got != 10 {
		t.Fatalf("HyperpathCost = %f, want 10", got)
	}

	rejected, changed = h.AddLink(domain.StopState{DeparrMode: domain.ModeTransfer, StopSuccPred: "B", Cost: 20})
	if !rejected || changed {
		t.Fatalf("higher-cost link: rejected=%v changed=%v, want true,false", rejected, changed)
	}
	if got := h.NonTrip.Len(); got != 1 {
		t.Fatalf("NonTrip.Len() = %d, want 1 (higher-cost link must not be admitted)", got)
	}

	rejected, changed = h.AddLink(domain.StopState{DeparrMode: domain.ModeTransfer, StopSuccPred: "C", Cost: 5})
	if rejected || !changed {
		t.Fatalf("lower-cost link: rejected=%v changed=%v, want false,true", rejected, changed)
	}
	if got := h.HyperpathCost(false); got != 5 {
		t.Fatalf("HyperpathCost after replacement = %f, want 5", got)
	}
	if got := h.NonTrip.Len(); got != 1 {
		t.Fatalf("NonTrip.Len() = %d, want 1 (deterministic keeps exactly one link)", got)
	}
}

func TestHyperlink_Stochastic_CombinesCostsWithinWindow(t *testing.T) {
	h := usecases.NewHyperlink("S1", true, true, 60, 1)

	_, changed := h.AddLink(domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T1", Seq: 1, StopSuccPred: "S2",
		DeparrTime: 100, Cost: 10,
	})
	if !changed {
		t.Fatal("first stochastic link should report a change")
	}
	if got := h.HyperpathCost(true); got != 10 {
		t.Fatalf("single-link hyperpath cost = %f, want 10", got)
	}

	rejected, changed := h.AddLink(domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T2", Seq: 1, StopSuccPred: "S3",
		DeparrTime: 105, Cost: 10,
	})
	if rejected {
		t.Fatal("second link is within the time window and must not be rejected")
	}
	if !changed {
		t.Fatal("combining two equal-cost links must change the label")
	}
	want := 10 - math.Log(2)
	if got := h.HyperpathCost(true); math.Abs(got-want) > 1e-9 {
		t.Fatalf("combined hyperpath cost = %f, want %f", got, want)
	}
	if got := h.Trip.Len(); got != 2 {
		t.Fatalf("Trip.Len() = %d, want 2", got)
	}
}

func TestHyperlink_Stochastic_RejectsOutsideWindow(t *testing.T) {
	h := usecases.NewHyperlink("S1", true, true, 60, 1)
	h.AddLink(domain.StopState{DeparrMode: domain.ModeTransit, TripID: "T1", Seq: 1, StopSuccPred: "S2", DeparrTime: 100, Cost: 10})
	h.AddLink(domain.StopState{DeparrMode: domain.ModeTransit, TripID: "T2", Seq: 1, StopSuccPred: "S3", DeparrTime: 105, Cost: 10})

	// Extremum now sits at 105; a link too far before 105-60=45 must be rejected.
	rejected, changed := h.AddLink(domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T3", Seq: 1, StopSuccPred: "S4",
		DeparrTime: 30, Cost: 5,
	})
	if !rejected || changed {
		t.Fatalf("out-of-window link: rejected=%v changed=%v, want true,false", rejected, changed)
	}
	if got := h.Trip.Len(); got != 2 {
		t.Fatalf("Trip.Len() = %d, want 2 (rejected link must not be admitted)", got)
	}
}

func TestHyperlink_Stochastic_ExtremumMoveEvictsStaleLinks(t *testing.T) {
	h := usecases.NewHyperlink("S1", true, true, 60, 1)
	h.AddLink(domain.StopState{DeparrMode: domain.ModeTransit, TripID: "T1", Seq: 1, StopSuccPred: "S2", DeparrTime: 100, Cost: 10})
	h.AddLink(domain.StopState{DeparrMode: domain.ModeTransit, TripID: "T2", Seq: 1, StopSuccPred: "S3", DeparrTime: 105, Cost: 10})

	// 200 is later than the pre-move extremum (105), and outbound admission
	// only rejects links earlier than 105-60=45, so it is admitted; once
	// admitted it becomes the new extremum and the
	// window recenters, evicting the two earlier links (100 and 105 both
	// fall below 200-60=140).
	rejected, _ := h.AddLink(domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T4", Seq: 1, StopSuccPred: "S5",
		DeparrTime: 200, Cost: 8,
	})
	if rejected {
		t.Fatal("a link later than the pre-move extremum must not be rejected")
	}

	if got := h.Trip.Len(); got != 1 {
		t.Fatalf("Trip.Len() = %d, want 1 after stale links are pruned", got)
	}
	if got := h.HyperpathCost(true); got != 8 {
		t.Fatalf("HyperpathCost = %f, want 8 (only the surviving link)", got)
	}
	extremum, ok := h.Trip.Extremum()
	if !ok || extremum != 200 {
		t.Fatalf("Extremum() = (%f,%v), want (200,true)", extremum, ok)
	}
}

func TestHyperlink_TripAndNonTripLinkSetsAreIndependent(t *testing.T) {
	h := usecases.NewHyperlink("S1", true, false, 60, 1)
	h.AddLink(domain.StopState{DeparrMode: domain.ModeTransit, TripID: "T1", Seq: 1, StopSuccPred: "S2", Cost: 10})
	h.AddLink(domain.StopState{DeparrMode: domain.ModeAccess, StopSuccPred: "taz-A", Cost: 3})

	if got := h.Trip.Len(); got != 1 {
		t.Errorf("Trip.Len() = %d, want 1", got)
	}
	if got := h.NonTrip.Len(); got != 1 {
		t.Errorf("NonTrip.Len() = %d, want 1", got)
	}
	if got := h.HyperpathCost(true); got != 10 {
		t.Errorf("Trip HyperpathCost = %f, want 10", got)
	}
	if got := h.HyperpathCost(false); got != 3 {
		t.Errorf("NonTrip HyperpathCost = %f, want 3", got)
	}
}
