package usecases

import (
	"context"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
	"github.com/transitlabs/fasttrips-go/internal/core/ports"
)

// FareEngine applies fare-period and fare-transfer rules (C7): the price of
// a trip segment depends on the FarePeriod it was boarded under and on
// whatever trip preceded it in the same fare chain.
type FareEngine struct {
	supply ports.SupplyModel

	ignorePathfinding bool
	ignorePathenum    bool
}

// NewFareEngine wires a FareEngine against its Supply port. The two ignore
// flags mirror PathfinderConfig's TRANSFER_FARE_IGNORE_* switches (§4.7).
func NewFareEngine(supply ports.SupplyModel, ignorePathfinding, ignorePathenum bool) *FareEngine {
	return &FareEngine{supply: supply, ignorePathfinding: ignorePathfinding, ignorePathenum: ignorePathenum}
}

// AdjustPrice applies the fare-transfer rule table followed by the
// free-transfer-count discount, each floored at 0 (spec §4.7).
func (fe *FareEngine) AdjustPrice(basePrice float64, toFP *domain.FarePeriod, rule *domain.FareTransfer, boardCountInToFP int) float64 {
	price := basePrice
	if rule != nil {
		switch rule.Rule {
		case domain.FareTransferFree:
			price = 0
		case domain.FareTransferFixedCost:
			price = rule.Amount
		case domain.FareTransferDiscount:
			price -= rule.Amount
		}
	}
	if price < 0 {
		price = 0
	}
	if toFP != nil && toFP.FreeTransferCount > 0 && boardCountInToFP > 0 && boardCountInToFP <= toFP.FreeTransferCount {
		price -= toFP.Price
		if price < 0 {
			price = 0
		}
	}
	return price
}

// EnumerationAdjustFunc returns the FareAdjustFunc wired into a trip
// LinkSet's setupProbabilitiesEnumeration call, or nil when pathenum-side
// fare-transfer effects are configured off.
func (fe *FareEngine) EnumerationAdjustFunc(ctx context.Context, spec *domain.PathSpecification) FareAdjustFunc {
	if fe.ignorePathenum {
		return nil
	}
	return func(candidate *domain.StopState, pathSoFar *domain.Path) {
		fe.adjustAgainstPath(ctx, spec, candidate, pathSoFar)
	}
}

// adjustAgainstPath identifies which of (the path's last link, candidate) is
// chronologically earlier and credits the fare-transfer savings to that
// earlier link — spec §4.7's "adjustment applies as an effective discount on
// the earlier link", generalized to both search directions. See DESIGN.md
// for why this interpretation was chosen over the alternative reading.
func (fe *FareEngine) adjustAgainstPath(ctx context.Context, spec *domain.PathSpecification, candidate *domain.StopState, pathSoFar *domain.Path) {
	last, ok := pathSoFar.Last()
	if !ok || candidate.FarePeriod == nil || last.State.FarePeriod == nil {
		return
	}

	var fromFP, toFP *domain.FarePeriod
	candidateIsEarlier := !spec.Outbound
	if spec.Outbound {
		fromFP, toFP = last.State.FarePeriod, candidate.FarePeriod
	} else {
		fromFP, toFP = candidate.FarePeriod, last.State.FarePeriod
	}
	if fromFP.ID == toFP.ID {
		return
	}

	rule, _ := fe.supply.FareTransferRule(ctx, fromFP.ID, toFP.ID)
	boardCount := pathSoFar.BoardCount(toFP.ID)
	newPrice := fe.AdjustPrice(toFP.Price, toFP, rule, boardCount)
	delta := toFP.Price - newPrice // positive: this is a savings
	if delta == 0 {
		return
	}

	credit := func(ss *domain.StopState) {
		ss.LinkFare -= delta
		ss.LinkCost -= (60.0 / spec.ValueOfTime) * ss.LinkIvtWt * delta
	}
	if candidateIsEarlier {
		credit(candidate)
	} else {
		pathSoFar.MutateLast(credit)
	}
}

// GetFareWithTransfer estimates the transfer-adjusted fare of a hypothetical
// subsequent trip during transfer relaxation, by marginalizing over the
// probability distribution of fare periods observed across the target
// hyperlink's trip LinkSet (§4.7). Fare periods outside the observed
// distribution (the remaining probability mass) contribute no adjustment.
func (fe *FareEngine) GetFareWithTransfer(ctx context.Context, fromFP *domain.FarePeriod, targetTripLinks *LinkSet, boardCounts map[string]int) float64 {
	if fe.ignorePathfinding || fromFP == nil || targetTripLinks == nil || targetTripLinks.Len() == 0 {
		return 0
	}

	var expectedDelta float64
	seen := make(map[string]bool)
	for _, k := range targetTripLinks.sortedKeys() {
		ss := targetTripLinks.byKey[k]
		if ss.FarePeriod == nil || seen[ss.FarePeriod.ID] || ss.FarePeriod.ID == fromFP.ID {
			continue
		}
		seen[ss.FarePeriod.ID] = true
		toFP := ss.FarePeriod

		rule, _ := fe.supply.FareTransferRule(ctx, fromFP.ID, toFP.ID)
		newPrice := fe.AdjustPrice(toFP.Price, toFP, rule, boardCounts[toFP.ID])
		expectedDelta += ss.Probability * (toFP.Price - newPrice)
	}
	return -expectedDelta // returned as a fare (cost-positive), not a savings
}
