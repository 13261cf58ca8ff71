package usecases

import (
	"math"
	"math/rand"
	"sort"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
)

// probScale stands in for the source's RAND_MAX: an explicit, platform-
// independent integerization scale for probability mass. MinRetainedProbability
// is the cutoff below which a link's integerized mass is discarded as
// negligible (spec §9, open question b — named here instead of relying on a
// platform RAND_MAX).
const (
	probScale              = int64(1) << 30
	MinRetainedProbability = int64(1)
)

// FareAdjustFunc mutates a candidate trip StopState's LinkFare/LinkCost in
// place to reflect fare-transfer rules relative to the path built so far
// (spec §4.7). It is a no-op hook when fare-transfer effects are ignored for
// the phase in question.
type FareAdjustFunc func(candidate *domain.StopState, pathSoFar *domain.Path)

// LinkSet is one of a Hyperlink's two candidate pools (trip or non-trip).
type LinkSet struct {
	isTrip bool

	byKey map[domain.StopStateKey]domain.StopState

	latestDepEarliestArr float64
	extremumKey          domain.StopStateKey
	hasExtremum          bool

	sumExpCost    float64
	hyperpathCost float64
	maxCumProbI   int64
}

func newLinkSet(isTrip bool) *LinkSet {
	return &LinkSet{isTrip: isTrip, byKey: make(map[domain.StopStateKey]domain.StopState)}
}

// Len reports the number of distinct links currently held.
func (ls *LinkSet) Len() int { return len(ls.byKey) }

// HyperpathCost is the set's current −θ·ln(Σexp(−cost/θ)) label, or +Inf if
// the set is empty.
func (ls *LinkSet) HyperpathCost() float64 {
	if len(ls.byKey) == 0 {
		return math.Inf(1)
	}
	return ls.hyperpathCost
}

// Extremum returns latest_dep_earliest_arr and whether it is defined.
func (ls *LinkSet) Extremum() (float64, bool) {
	return ls.latestDepEarliestArr, ls.hasExtremum
}

// sortedKeys returns keys ordered by cost ascending, tie-broken by the
// lexicographic StopStateKey order — a stand-in for the source's cost
// multimap, rebuilt on demand since candidate sets stay small under window
// pruning.
func (ls *LinkSet) sortedKeys() []domain.StopStateKey {
	keys := make([]domain.StopStateKey, 0, len(ls.byKey))
	for k := range ls.byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := ls.byKey[keys[i]].Cost, ls.byKey[keys[j]].Cost
		if ci != cj {
			return ci < cj
		}
		return keys[i].Less(keys[j])
	})
	return keys
}

func (ls *LinkSet) insert(ss domain.StopState) { ls.byKey[ss.Key()] = ss }

func (ls *LinkSet) clear() {
	ls.byKey = make(map[domain.StopStateKey]domain.StopState)
	ls.sumExpCost = 0
	ls.hyperpathCost = 0
	ls.hasExtremum = false
	ls.maxCumProbI = 0
}

func (ls *LinkSet) onlyLink() domain.StopState {
	for _, ss := range ls.byKey {
		return ss
	}
	return domain.StopState{}
}

// addLinkDeterministic keeps exactly the lowest-cost link.
func (ls *LinkSet) addLinkDeterministic(ss domain.StopState) (rejected, stateChanged bool) {
	if len(ls.byKey) > 0 && !(ss.Cost < ls.onlyLink().Cost) {
		return true, false
	}
	ls.clear()
	ls.insert(ss)
	ls.hasExtremum = true
	ls.latestDepEarliestArr = ss.DeparrTime
	ls.extremumKey = ss.Key()
	ls.hyperpathCost = ss.Cost
	return false, true
}

// addLinkStochastic implements spec §4.2 steps 1-4.
func (ls *LinkSet) addLinkStochastic(ss domain.StopState, outbound bool, timeWindow, theta float64) (rejected, stateChanged bool) {
	if len(ls.byKey) == 0 {
		ls.latestDepEarliestArr = ss.DeparrTime
		ls.hasExtremum = true
		ls.extremumKey = ss.Key()
		ls.sumExpCost = math.Exp(-ss.Cost / theta)
		ls.hyperpathCost = ss.Cost
		ss.Probability = 1.0
		ls.insert(ss)
		ls.setupProbabilitiesLabeling(theta)
		return false, true
	}

	boundary := ss.DeparrMode == domain.BoundaryMode(outbound)
	if !boundary {
		if outbound && ss.DeparrTime < ls.latestDepEarliestArr-timeWindow {
			return true, false
		}
		if !outbound && ss.DeparrTime > ls.latestDepEarliestArr+timeWindow {
			return true, false
		}
	}

	key := ss.Key()
	prevHyperpathCost := ls.hyperpathCost

	if old, exists := ls.byKey[key]; exists {
		ls.sumExpCost -= math.Exp(-old.Cost / theta)
	}
	ls.sumExpCost += math.Exp(-ss.Cost / theta)
	ls.insert(ss)

	extremumMoved := false
	switch {
	case outbound && ss.DeparrTime > ls.latestDepEarliestArr:
		ls.latestDepEarliestArr = ss.DeparrTime
		ls.extremumKey = key
		extremumMoved = true
	case !outbound && ss.DeparrTime < ls.latestDepEarliestArr:
		ls.latestDepEarliestArr = ss.DeparrTime
		ls.extremumKey = key
		extremumMoved = true
	case key == ls.extremumKey:
		ls.rescanExtremum(outbound)
		extremumMoved = true
	}

	if extremumMoved {
		ls.pruneWindow(outbound, timeWindow, theta)
	}

	ls.hyperpathCost = -theta * math.Log(ls.sumExpCost)
	if math.Abs(ls.hyperpathCost-prevHyperpathCost) > 1e-4 {
		stateChanged = true
	}
	ls.setupProbabilitiesLabeling(theta)
	return false, stateChanged
}

func (ls *LinkSet) rescanExtremum(outbound bool) {
	first := true
	for k, ss := range ls.byKey {
		if first || (outbound && ss.DeparrTime > ls.latestDepEarliestArr) || (!outbound && ss.DeparrTime < ls.latestDepEarliestArr) {
			ls.latestDepEarliestArr = ss.DeparrTime
			ls.extremumKey = k
			first = false
		}
	}
}

// pruneWindow evicts links that have fallen outside the admission window
// around the (possibly just-moved) extremum, releasing their owned paths.
func (ls *LinkSet) pruneWindow(outbound bool, timeWindow, theta float64) {
	var evict []domain.StopStateKey
	var sum float64
	for k, ss := range ls.byKey {
		if ss.DeparrMode != domain.BoundaryMode(outbound) {
			out := (outbound && ss.DeparrTime < ls.latestDepEarliestArr-timeWindow) ||
				(!outbound && ss.DeparrTime > ls.latestDepEarliestArr+timeWindow)
			if out {
				evict = append(evict, k)
				continue
			}
		}
		sum += math.Exp(-ss.Cost / theta)
	}
	for _, k := range evict {
		ss := ls.byKey[k]
		ss.LowCostPath = nil
		delete(ls.byKey, k)
	}
	ls.sumExpCost = sum
}

// setupProbabilitiesLabeling refreshes per-link probability and cum_prob_i
// for sampling during labeling (no path_so_far, no fare adjustment).
func (ls *LinkSet) setupProbabilitiesLabeling(theta float64) int64 {
	var cum int64
	for _, k := range ls.sortedKeys() {
		ss := ls.byKey[k]
		if math.IsInf(ss.Cost, 1) {
			ss.CumProbI = -1
			ls.byKey[k] = ss
			continue
		}
		prob := math.Exp(-ss.Cost/theta) / math.Exp(-ls.hyperpathCost/theta)
		probI := int64(float64(probScale) * prob)
		ss.Probability = prob
		if probI < MinRetainedProbability {
			ss.CumProbI = -1
			ls.byKey[k] = ss
			continue
		}
		cum += probI
		ss.CumProbI = cum
		ls.byKey[k] = ss
	}
	ls.maxCumProbI = cum
	return cum
}

// setupProbabilitiesEnumeration filters candidates against the path built so
// far and computes a fresh distribution over survivors (spec §4.2
// enumeration mode, §4.7 fare adjustment). adjust is invoked for trip-side
// linksets only, and may be nil.
func (ls *LinkSet) setupProbabilitiesEnumeration(outbound bool, pathSoFar *domain.Path, adjust FareAdjustFunc) int64 {
	last, hasLast := pathSoFar.Last()

	type candidate struct {
		key domain.StopStateKey
		ss  domain.StopState
	}
	var valid []candidate

	for _, k := range ls.sortedKeys() {
		ss := ls.byKey[k]
		if math.IsInf(ss.Cost, 1) {
			continue
		}
		if hasLast {
			violatesOrder := (outbound && ss.DeparrTime < last.State.ArrdepTime) ||
				(!outbound && ss.DeparrTime > last.State.ArrdepTime)
			if violatesOrder {
				continue
			}
			if ls.isTrip && last.State.DeparrMode == domain.ModeTransit && ss.TripID == last.State.TripID {
				continue // same-trip repeat of the last trip
			}
		}
		if ls.isTrip && adjust != nil {
			adjust(&ss, pathSoFar)
		}
		valid = append(valid, candidate{key: k, ss: ss})
	}

	if len(valid) == 0 {
		ls.maxCumProbI = 0
		return 0
	}

	if len(valid) == 1 {
		valid[0].ss.Probability = 1.0
		valid[0].ss.CumProbI = 1
		ls.byKey[valid[0].key] = valid[0].ss
		ls.maxCumProbI = 1
		return 1
	}

	var sumExp float64
	for _, c := range valid {
		sumExp += math.Exp(-c.ss.Cost)
	}

	var cum int64
	for _, c := range valid {
		prob := math.Exp(-c.ss.Cost) / sumExp
		probI := int64(float64(probScale) * prob)
		if probI < MinRetainedProbability {
			probI = MinRetainedProbability
		}
		cum += probI
		c.ss.Probability = prob
		c.ss.CumProbI = cum
		ls.byKey[c.key] = c.ss
	}
	ls.maxCumProbI = cum
	return cum
}

// chooseState samples one link proportional to the distribution last built
// by a setupProbabilities* call.
func (ls *LinkSet) chooseState(rng *rand.Rand) (domain.StopState, bool) {
	if ls.maxCumProbI <= 0 {
		return domain.StopState{}, false
	}
	sample := rng.Int63n(ls.maxCumProbI)
	for _, k := range ls.sortedKeys() {
		ss := ls.byKey[k]
		if ss.CumProbI != 0 && ss.CumProbI >= sample+1 {
			return ss, true
		}
	}
	return domain.StopState{}, false
}

// bestGuessLink returns the cheapest compatible non-trip link, or the
// globally cheapest one if none is time-compatible.
func (ls *LinkSet) bestGuessLink(arrdepTime float64, outbound bool) (domain.StopState, bool) {
	keys := ls.sortedKeys()
	if len(keys) == 0 {
		return domain.StopState{}, false
	}
	for _, k := range keys {
		ss := ls.byKey[k]
		compatible := (outbound && ss.DeparrTime >= arrdepTime) || (!outbound && ss.DeparrTime <= arrdepTime)
		if compatible {
			return ss, true
		}
	}
	return ls.byKey[keys[0]], true
}

// Hyperlink is the per-stop aggregate holding the trip and non-trip
// LinkSets that share a search direction and stochastic configuration.
type Hyperlink struct {
	StopID    string
	outbound  bool
	hyperpath bool
	timeWindow float64
	theta      float64

	Trip    *LinkSet
	NonTrip *LinkSet
}

// NewHyperlink returns an empty Hyperlink for one stop.
func NewHyperlink(stopID string, outbound, hyperpath bool, timeWindow, theta float64) *Hyperlink {
	return &Hyperlink{
		StopID:     stopID,
		outbound:   outbound,
		hyperpath:  hyperpath,
		timeWindow: timeWindow,
		theta:      theta,
		Trip:       newLinkSet(true),
		NonTrip:    newLinkSet(false),
	}
}

func (h *Hyperlink) linkSet(isTrip bool) *LinkSet {
	if isTrip {
		return h.Trip
	}
	return h.NonTrip
}

// AddLink routes ss to the correct LinkSet and applies deterministic or
// stochastic admission per spec §4.2.
func (h *Hyperlink) AddLink(ss domain.StopState) (rejected, stateChanged bool) {
	ls := h.linkSet(ss.DeparrMode.IsTrip())
	if !h.hyperpath {
		return ls.addLinkDeterministic(ss)
	}
	return ls.addLinkStochastic(ss, h.outbound, h.timeWindow, h.theta)
}

// HyperpathCost reads a side's current label.
func (h *Hyperlink) HyperpathCost(isTrip bool) float64 {
	return h.linkSet(isTrip).HyperpathCost()
}
