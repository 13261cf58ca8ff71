package usecases_test

import (
	"context"
	"math"
	"testing"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
	"github.com/transitlabs/fasttrips-go/internal/core/usecases"
)

func TestFareEngine_AdjustPrice_Free(t *testing.T) {
	fe := usecases.NewFareEngine(&mockSupply{}, false, false)
	rule := &domain.FareTransfer{Rule: domain.FareTransferFree}
	got := fe.AdjustPrice(5, nil, rule, 0)
	if got != 0 {
		t.Errorf("AdjustPrice(free) = %f, want 0", got)
	}
}

func TestFareEngine_AdjustPrice_FixedCost(t *testing.T) {
	fe := usecases.NewFareEngine(&mockSupply{}, false, false)
	rule := &domain.FareTransfer{Rule: domain.FareTransferFixedCost, Amount: 1.5}
	got := fe.AdjustPrice(5, nil, rule, 0)
	if got != 1.5 {
		t.Errorf("AdjustPrice(fixed_cost) = %f, want 1.5", got)
	}
}

func TestFareEngine_AdjustPrice_Discount(t *testing.T) {
	fe := usecases.NewFareEngine(&mockSupply{}, false, false)
	rule := &domain.FareTransfer{Rule: domain.FareTransferDiscount, Amount: 2}
	got := fe.AdjustPrice(5, nil, rule, 0)
	if got != 3 {
		t.Errorf("AdjustPrice(discount) = %f, want 3", got)
	}
}

func TestFareEngine_AdjustPrice_DiscountFloorsAtZero(t *testing.T) {
	fe := usecases.NewFareEngine(&mockSupply{}, false, false)
	rule := &domain.FareTransfer{Rule: domain.FareTransferDiscount, Amount: 100}
	got := fe.AdjustPrice(5, nil, rule, 0)
	if got != 0 {
		t.Errorf("AdjustPrice(discount overshoot) = %f, want 0 (floored)", got)
	}
}

func TestFareEngine_AdjustPrice_NilRuleIsNoOp(t *testing.T) {
	fe := usecases.NewFareEngine(&mockSupply{}, false, false)
	got := fe.AdjustPrice(5, nil, nil, 0)
	if got != 5 {
		t.Errorf("AdjustPrice(nil rule) = %f, want 5 (unchanged)", got)
	}
}

func TestFareEngine_AdjustPrice_FreeTransferCountDiscount(t *testing.T) {
	fe := usecases.NewFareEngine(&mockSupply{}, false, false)
	toFP := &domain.FarePeriod{ID: "fp-1", Price: 2, FreeTransferCount: 2}

	// Within the free-transfer allowance: the target fare period's own price
	// is credited back, on top of whatever the rule already adjusted.
	got := fe.AdjustPrice(5, toFP, nil, 1)
	if got != 3 {
		t.Errorf("AdjustPrice within free-transfer allowance = %f, want 3 (5 - fp price 2)", got)
	}

	// Beyond the allowance: no further discount applies.
	got = fe.AdjustPrice(5, toFP, nil, 3)
	if got != 5 {
		t.Errorf("AdjustPrice beyond free-transfer allowance = %f, want 5 (unchanged)", got)
	}
}

func TestFareEngine_EnumerationAdjustFunc_NilWhenIgnored(t *testing.T) {
	fe := usecases.NewFareEngine(&mockSupply{}, false, true)
	if fn := fe.EnumerationAdjustFunc(context.Background(), &domain.PathSpecification{}); fn != nil {
		t.Error("expected a nil FareAdjustFunc when ignorePathenum is set")
	}
}

func TestFareEngine_EnumerationAdjustFunc_CreditsAlreadyPlacedLinkOutbound(t *testing.T) {
	supply := &mockSupply{
		fareTransfers: map[string]*domain.FareTransfer{
			"fp-from->fp-to": {Rule: domain.FareTransferDiscount, Amount: 1},
		},
	}
	fe := usecases.NewFareEngine(supply, false, false)
	spec := &domain.PathSpecification{Outbound: true, ValueOfTime: 10}

	path := domain.NewPath(true, false)
	_ = path.AddLink("S1", domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T1",
		FarePeriod: &domain.FarePeriod{ID: "fp-from", Price: 4}, LinkFare: 4, LinkIvtWt: 1,
	})

	candidate := &domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T2",
		FarePeriod: &domain.FarePeriod{ID: "fp-to", Price: 4},
		LinkFare:   4, LinkIvtWt: 1,
	}

	fn := fe.EnumerationAdjustFunc(context.Background(), spec)
	if fn == nil {
		t.Fatal("expected a non-nil FareAdjustFunc")
	}
	fn(candidate, path)

	// Discount of 1 on the 4-price target fare period: for an outbound
	// search the candidate is chronologically later than the path's last
	// link, so the already-placed link is the earlier one and gets credited,
	// leaving the candidate itself untouched.
	if candidate.LinkFare != 4 {
		t.Errorf("candidate.LinkFare = %f, want 4 (unchanged)", candidate.LinkFare)
	}
	last, _ := path.Last()
	if last.State.LinkFare != 3 {
		t.Errorf("placed link's LinkFare = %f, want 3", last.State.LinkFare)
	}
	wantCostDelta := (60.0 / 10) * 1 * 1.0
	if math.Abs(last.State.LinkCost-(-wantCostDelta)) > 1e-9 {
		t.Errorf("placed link's LinkCost = %f, want %f", last.State.LinkCost, -wantCostDelta)
	}
}

func TestFareEngine_EnumerationAdjustFunc_SameFarePeriodIsNoOp(t *testing.T) {
	supply := &mockSupply{fareTransfers: map[string]*domain.FareTransfer{}}
	fe := usecases.NewFareEngine(supply, false, false)
	spec := &domain.PathSpecification{Outbound: true, ValueOfTime: 10}

	path := domain.NewPath(true, false)
	_ = path.AddLink("S1", domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T1",
		FarePeriod: &domain.FarePeriod{ID: "fp-same", Price: 4},
	})
	candidate := &domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T2",
		FarePeriod: &domain.FarePeriod{ID: "fp-same", Price: 4}, LinkFare: 4,
	}

	fe.EnumerationAdjustFunc(context.Background(), spec)(candidate, path)
	if candidate.LinkFare != 4 {
		t.Errorf("candidate.LinkFare = %f, want 4 (unchanged within one fare period)", candidate.LinkFare)
	}
}

func TestFareEngine_GetFareWithTransfer_MarginalizesOverObservedFarePeriods(t *testing.T) {
	supply := &mockSupply{
		fareTransfers: map[string]*domain.FareTransfer{
			"fp-x->fp-a": {Rule: domain.FareTransferDiscount, Amount: 1},
			"fp-x->fp-b": {Rule: domain.FareTransferFree},
		},
	}
	fe := usecases.NewFareEngine(supply, false, false)

	h := usecases.NewHyperlink("S1", true, true, 9999, 1)
	h.AddLink(domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "TA", Seq: 1, StopSuccPred: "S2",
		DeparrTime: 100, Cost: 5,
		FarePeriod: &domain.FarePeriod{ID: "fp-a", Price: 3},
	})
	h.AddLink(domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "TB", Seq: 1, StopSuccPred: "S3",
		DeparrTime: 105, Cost: 5,
		FarePeriod: &domain.FarePeriod{ID: "fp-b", Price: 4},
	})

	fromFP := &domain.FarePeriod{ID: "fp-x", Price: 0}
	got := fe.GetFareWithTransfer(context.Background(), fromFP, h.Trip, map[string]int{})

	// Equal-cost links split probability 50/50; expected delta = 0.5*(3-2) + 0.5*(4-0) = 2.5,
	// returned as a cost-positive fare (negative of the savings).
	want := -2.5
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("GetFareWithTransfer = %f, want %f", got, want)
	}
}

func TestFareEngine_GetFareWithTransfer_IgnoredReturnsZero(t *testing.T) {
	fe := usecases.NewFareEngine(&mockSupply{}, true, false)
	h := usecases.NewHyperlink("S1", true, true, 60, 1)
	h.AddLink(domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "TA", Seq: 1, StopSuccPred: "S2",
		DeparrTime: 100, Cost: 5, FarePeriod: &domain.FarePeriod{ID: "fp-a", Price: 3},
	})

	got := fe.GetFareWithTransfer(context.Background(), &domain.FarePeriod{ID: "fp-x"}, h.Trip, nil)
	if got != 0 {
		t.Errorf("GetFareWithTransfer with ignorePathfinding = %f, want 0", got)
	}
}

func TestFareEngine_GetFareWithTransfer_NilFromFarePeriodReturnsZero(t *testing.T) {
	fe := usecases.NewFareEngine(&mockSupply{}, false, false)
	h := usecases.NewHyperlink("S1", true, true, 60, 1)
	h.AddLink(domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "TA", Seq: 1, StopSuccPred: "S2",
		DeparrTime: 100, Cost: 5, FarePeriod: &domain.FarePeriod{ID: "fp-a", Price: 3},
	})

	got := fe.GetFareWithTransfer(context.Background(), nil, h.Trip, nil)
	if got != 0 {
		t.Errorf("GetFareWithTransfer(nil fromFP) = %f, want 0", got)
	}
}
