package usecases

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
	"github.com/transitlabs/fasttrips-go/internal/core/ports"
)

// PathfinderConfig holds the tunables a query runs under.
type PathfinderConfig struct {
	TimeWindow       float64 // minutes either side of a Hyperlink's extremum admitted as a candidate (§4.2)
	BumpBuffer       float64 // minutes of slack added after a capacity bump (§4.6)
	StochPathsetSize int     // number of enumeration draws attempted in stochastic mode
	StochDispersion  float64 // theta, the logit scale parameter

	StochMaxStopProcessCount int // 0 disables the cap

	TransferFareIgnorePathfinding bool
	TransferFareIgnorePathenum    bool
}

// PathInfo describes one distinct path observed across an enumeration run.
type PathInfo struct {
	Probability     float64
	ProbI           int64
	Cost            float64
	CapacityProblem bool
	Count           int // number of draws that produced this distinct path
}

// PerformanceInfo reports search effort for diagnostics and tests.
type PerformanceInfo struct {
	LabelPops            int
	Requeues             int
	EnumerationAttempts  int
	EnumerationSuccesses int
	Duration             time.Duration
}

// Pathfinder is the orchestration component (C8) tying LabelQueue, Hyperlink,
// CostEngine and FareEngine together against a SupplyModel.
type Pathfinder struct {
	cfg      PathfinderConfig
	supply   ports.SupplyModel
	capacity ports.CapacityModel
	tracer   ports.Tracer
	fares    *FareEngine
}

// NewPathfinder wires a Pathfinder. capacity and tracer may be nil.
func NewPathfinder(cfg PathfinderConfig, supply ports.SupplyModel, capacity ports.CapacityModel, tracer ports.Tracer) *Pathfinder {
	return &Pathfinder{
		cfg:      cfg,
		supply:   supply,
		capacity: capacity,
		tracer:   tracer,
		fares:    NewFareEngine(supply, cfg.TransferFareIgnorePathfinding, cfg.TransferFareIgnorePathenum),
	}
}

// FindPath runs one query to completion: initialization, labeling,
// finalization, then enumeration of one (deterministic) or many (stochastic)
// concrete paths. A nil Path with a nil error means no itinerary was found —
// either because the search space was exhausted or because ctx was cancelled
// mid-query, both fold into the same NoPath-shaped empty result. A non-nil
// error means the query was aborted by an invariant violation.
func (pf *Pathfinder) FindPath(ctx context.Context, spec *domain.PathSpecification) (*domain.Path, []PathInfo, PerformanceInfo, error) {
	started := time.Now()
	q := &query{
		pf:           pf,
		spec:         spec,
		hyperlinks:   make(map[string]*Hyperlink),
		queue:        NewLabelQueue(),
		rng:          rand.New(rand.NewSource(seedFromPathID(spec.PathID))),
		processCount: make(map[labelKey]int),
	}

	if err := q.initialize(ctx); err != nil {
		return asResult(nil, nil, q.perf, started, err)
	}
	if err := q.label(ctx); err != nil {
		return asResult(nil, nil, q.perf, started, err)
	}
	if err := q.finalize(ctx); err != nil {
		return asResult(nil, nil, q.perf, started, err)
	}
	path, infos, err := q.enumerate(ctx)
	return asResult(path, infos, q.perf, started, err)
}

func asResult(path *domain.Path, infos []PathInfo, perf PerformanceInfo, started time.Time, err error) (*domain.Path, []PathInfo, PerformanceInfo, error) {
	perf.Duration = time.Since(started)
	var pe *PathfindError
	if errors.As(err, &pe) && (pe.Kind == ErrNoPath || pe.Kind == ErrCancelled) {
		return nil, nil, perf, nil
	}
	if err != nil {
		return nil, nil, perf, err
	}
	return path, infos, perf, nil
}

func seedFromPathID(pathID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(pathID))
	return int64(h.Sum64())
}

// query holds the mutable state of a single FindPath call.
type query struct {
	pf   *Pathfinder
	spec *domain.PathSpecification

	hyperlinks map[string]*Hyperlink // keyed by stop ID, plus "taz:"+zone for the finalized boundary
	queue      *LabelQueue
	rng        *rand.Rand

	processCount map[labelKey]int

	perf PerformanceInfo
}

func (q *query) trace(ctx context.Context, format string, args ...any) {
	if q.pf.tracer == nil || !q.spec.Trace {
		return
	}
	q.pf.tracer.Trace(ctx, q.spec.PathID, fmt.Sprintf(format, args...))
}

func (q *query) hyperlinkFor(key string) *Hyperlink {
	hl, ok := q.hyperlinks[key]
	if !ok {
		hl = NewHyperlink(key, q.spec.Outbound, q.spec.Hyperpath, q.pf.cfg.TimeWindow, q.pf.cfg.StochDispersion)
		q.hyperlinks[key] = hl
	}
	return hl
}

// addAndRequeue feeds ss into the named hyperlink and, if admission changed
// that side's label, pushes the new label onto the queue.
func (q *query) addAndRequeue(key string, ss domain.StopState) {
	hl := q.hyperlinkFor(key)
	_, stateChanged := hl.AddLink(ss)
	if !stateChanged {
		return
	}
	isTrip := ss.DeparrMode.IsTrip()
	q.queue.Push(hl.HyperpathCost(isTrip), key, isTrip)
	q.perf.Requeues++
}

func mergeAttributes(bags ...domain.AttributeBag) domain.AttributeBag {
	out := make(domain.AttributeBag)
	for _, bag := range bags {
		for k, v := range bag {
			out[k] = v
		}
	}
	return out
}

func farePeriodID(fp *domain.FarePeriod) string {
	if fp == nil {
		return ""
	}
	return fp.ID
}

// --- initialization (§4.3) ---------------------------------------------

func (q *query) initialize(ctx context.Context) error {
	zone := q.spec.StartZone()
	mode := domain.TerminalMode(q.spec.Outbound)

	demandMode, links, err := q.boundaryLinks(ctx, zone, q.spec.Outbound)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return errNoPath("pathfinder: no access/egress links for starting zone %s", zone)
	}

	seeded := false
	for _, link := range links {
		weights, werr := q.pf.supply.Weights(ctx, q.spec.UserClass, mode.String(), demandMode, link.SupplyMode)
		if werr != nil || weights == nil {
			continue
		}
		attrs := mergeAttributes(link.Attributes, domain.AttributeBag{"preferred_delay_min": 0})
		linkCost := TallyLinkCost(link.SupplyMode, weights, attrs)
		deparrTime := q.spec.PreferredTime - link.LinkTime*q.spec.DirFactor()

		ss := domain.StopState{
			DeparrMode:   mode,
			TripID:       link.SupplyMode,
			StopSuccPred: zone,
			Seq:          -1,
			SeqSuccPred:  -1,
			DeparrTime:   deparrTime,
			ArrdepTime:   q.spec.PreferredTime,
			LinkTime:     link.LinkTime,
			LinkCost:     linkCost,
			LinkDist:     link.LinkDist,
			Cost:         linkCost,
		}
		q.addAndRequeue(link.StopID, ss)
		seeded = true
	}
	if !seeded {
		return errNoPath("pathfinder: no usable %s weights for starting zone %s", mode, zone)
	}
	q.trace(ctx, "initialized %d access/egress candidates at zone %s", len(links), zone)
	return nil
}

// boundaryLinks resolves the access/egress call appropriate to a boundary
// zone and direction: outbound asks for egress at the starting zone and
// access at the ending zone; inbound mirrors it.
func (q *query) boundaryLinks(ctx context.Context, zone string, wantEgress bool) (string, []domain.AccessEgressLink, error) {
	if wantEgress {
		links, err := q.pf.supply.EgressLinks(ctx, zone, q.spec.EgressDemandMode)
		return q.spec.EgressDemandMode, links, err
	}
	links, err := q.pf.supply.AccessLinks(ctx, zone, q.spec.AccessDemandMode)
	return q.spec.AccessDemandMode, links, err
}

// --- labeling loop (§4.3) -----------------------------------------------

func (q *query) label(ctx context.Context) error {
	for q.queue.Size() > 0 {
		select {
		case <-ctx.Done():
			return errCancelled()
		default:
		}

		entry, ok := q.queue.PopMin()
		if !ok {
			break
		}
		q.perf.LabelPops++

		key := labelKey{StopID: entry.StopID, IsTrip: entry.IsTrip}
		if q.pf.cfg.StochMaxStopProcessCount > 0 && q.processCount[key] >= q.pf.cfg.StochMaxStopProcessCount {
			continue
		}
		q.processCount[key]++

		var err error
		if entry.IsTrip {
			err = q.relaxTransfers(ctx, entry.StopID)
		} else {
			err = q.relaxTrips(ctx, entry.StopID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// relaxTransfers fans a trip-side extremum out over every transfer link
// (including the zero-walk self-transfer) reachable from this stop,
// submitting TRANSFER candidates to each successor's non-trip LinkSet.
func (q *query) relaxTransfers(ctx context.Context, stopID string) error {
	hl := q.hyperlinkFor(stopID)
	extremum, ok := hl.Trip.Extremum()
	if !ok {
		return nil
	}
	baseCost := hl.HyperpathCost(true)

	// A representative source fare period, when the trip side currently
	// holds exactly one distinct one — the common deterministic-mode case,
	// and often true early in stochastic labeling too. With more than one
	// fare period aggregated, the downstream fare impact of a transfer
	// isn't well-defined from the label alone, so GetFareWithTransfer is
	// skipped (the authoritative adjustment still happens at enumeration
	// time against a concrete path, via FareEngine.EnumerationAdjustFunc).
	var fromFP *domain.FarePeriod
	if hl.Trip.Len() == 1 {
		fromFP = hl.Trip.onlyLink().FarePeriod
	}

	transfers, err := q.pf.supply.TransfersFromStop(ctx, stopID)
	if err != nil {
		return err
	}

	for _, tr := range transfers {
		weights, werr := q.pf.supply.Weights(ctx, q.spec.UserClass, domain.ModeTransfer.String(), q.spec.TransitDemandMode, "transfer")
		if werr != nil || weights == nil {
			continue
		}
		attrs := mergeAttributes(tr.Attributes, domain.AttributeBag{"transfer_penalty": 1.0})
		linkCost := TallyLinkCost("transfer", weights, attrs)
		deparrTime := extremum - tr.LinkTime*q.spec.DirFactor()

		ss := domain.StopState{
			DeparrMode:   domain.ModeTransfer,
			TripID:       "transfer",
			StopSuccPred: stopID,
			Seq:          -1,
			SeqSuccPred:  -1,
			DeparrTime:   deparrTime,
			ArrdepTime:   extremum,
			LinkTime:     tr.LinkTime,
			LinkCost:     linkCost,
			LinkDist:     tr.LinkDist,
			Cost:         baseCost + linkCost,
		}
		if fromFP != nil {
			var targetTrip *LinkSet
			if existing, ok := q.hyperlinks[tr.ToStop]; ok {
				targetTrip = existing.Trip
			}
			ss.LinkFare += q.pf.fares.GetFareWithTransfer(ctx, fromFP, targetTrip, nil)
		}
		q.addAndRequeue(tr.ToStop, ss)
	}
	return nil
}

// relaxTrips fans a non-trip-side extremum out over every trip serving this
// stop within the admission window, submitting TRANSIT candidates to each
// board/alight stop's trip LinkSet (§4.3 step 4).
func (q *query) relaxTrips(ctx context.Context, stopID string) error {
	hl := q.hyperlinkFor(stopID)
	extremum, ok := hl.NonTrip.Extremum()
	if !ok {
		return nil
	}
	baseCost := hl.HyperpathCost(false)

	here, err := q.pf.supply.TripsServingStop(ctx, stopID, q.spec.Outbound, nil)
	if err != nil {
		return err
	}

	for _, row := range here {
		arrdepHere := arrivalOrDeparture(row, q.spec.Outbound)
		if q.pf.cfg.TimeWindow > 0 && math.Abs(arrdepHere-extremum) > q.pf.cfg.TimeWindow {
			continue
		}

		stopTimes, serr := q.pf.supply.StopTimesForTrip(ctx, row.TripID)
		if serr != nil || len(stopTimes) == 0 {
			continue
		}
		tripInfo, terr := q.pf.supply.TripInfo(ctx, row.TripID)
		if terr != nil || tripInfo == nil {
			continue
		}

		for _, there := range otherSeqsInDirection(stopTimes, row.Seq, q.spec.Outbound) {
			deparrThere := adjustMidnightCrossing(departureOrArrival(there, q.spec.Outbound), arrdepHere, q.spec.Outbound)
			inVehicleTime := (arrdepHere - deparrThere) * q.spec.DirFactor()
			if inVehicleTime < 0 {
				continue // a trip can't be boarded after it leaves; not this stop's candidate
			}

			best, hasBest := hl.NonTrip.bestGuessLink(arrdepHere, q.spec.Outbound)
			waitTime, transferPenalty := 0.0, 1.0
			if hasBest {
				waitTime = (best.DeparrTime - arrdepHere) * q.spec.DirFactor()
				if best.DeparrMode == domain.BoundaryMode(q.spec.Outbound) {
					transferPenalty = 0
				}
			}

			weights, werr := q.pf.supply.Weights(ctx, q.spec.UserClass, domain.ModeTransit.String(), q.spec.TransitDemandMode, tripInfo.SupplyMode)
			if werr != nil || weights == nil {
				continue
			}
			attrs := mergeAttributes(tripInfo.Attributes, domain.AttributeBag{
				"in_vehicle_time_min": inVehicleTime,
				"wait_time_min":       waitTime,
				"transfer_penalty":    transferPenalty,
			})
			linkCost := TallyLinkCost(tripInfo.SupplyMode, weights, attrs)

			ss := domain.StopState{
				DeparrMode:   domain.ModeTransit,
				TripID:       row.TripID,
				StopSuccPred: stopID,   // the already-labeled stop this candidate links onward to
				Seq:          there.Seq, // this candidate's own position, at the stop it's stored under
				SeqSuccPred:  row.Seq,
				DeparrTime:   deparrThere, // time at the stop this candidate is stored under (there)
				ArrdepTime:   arrdepHere,  // time at the linked stop (stopID)
				LinkTime:     inVehicleTime,
				LinkIvtWt:    weights["in_vehicle_time_min"],
				FarePeriod:   tripInfo.FarePeriod,
				LinkCost:     linkCost,
				Cost:         baseCost + linkCost,
			}
			boardSeq, boardStop, boardTime := there.Seq, there.StopID, deparrThere
			if !q.spec.Outbound {
				boardSeq, boardStop, boardTime = row.Seq, stopID, arrdepHere
			}
			newBoardTime, delta, ok := q.applyCapacityCheck(ctx, row.TripID, boardSeq, boardStop, boardTime)
			if !ok {
				continue
			}
			if delta > 0 {
				if q.spec.Outbound {
					ss.DeparrTime = newBoardTime
				} else {
					ss.ArrdepTime = newBoardTime
				}
				ss.Cost += delta
				ss.LinkCost += delta
				ss.CapacityBumped = true
			}
			q.addAndRequeue(there.StopID, ss)
		}
	}
	return nil
}

func arrivalOrDeparture(st domain.SupplyStopTime, outbound bool) float64 {
	if outbound {
		return st.ArriveTime
	}
	return st.DepartTime
}

func departureOrArrival(st domain.SupplyStopTime, outbound bool) float64 {
	if outbound {
		return st.DepartTime
	}
	return st.ArriveTime
}

// otherSeqsInDirection selects the stop-times a rider could board (outbound:
// earlier seqs) or alight (inbound: later seqs) relative to hereSeq.
func otherSeqsInDirection(stopTimes []domain.SupplyStopTime, hereSeq int, outbound bool) []domain.SupplyStopTime {
	var out []domain.SupplyStopTime
	for _, st := range stopTimes {
		if outbound && st.Seq < hereSeq {
			out = append(out, st)
		} else if !outbound && st.Seq > hereSeq {
			out = append(out, st)
		}
	}
	return out
}

// adjustMidnightCrossing corrects a raw clock value against a reference time
// when the trip crosses midnight against the direction of travel: outbound
// expects the other stop's time at or before the reference; inbound expects
// it at or after.
func adjustMidnightCrossing(t, reference float64, outbound bool) float64 {
	if outbound && t > reference {
		return t - 1440
	}
	if !outbound && t < reference {
		return t + 1440
	}
	return t
}

// applyCapacityCheck consults the injected bump-wait map for a concrete trip
// boarding (§4.6), given the board stop/seq and the candidate's own board
// time (whichever of DeparrTime/ArrdepTime holds it, direction-dependent —
// see the caller). latest is a real wall-clock cutoff, so the comparison and
// the adjustment are both direction-independent: boarding after latest
// always means the trip is full, and a bumped rider is moved to board
// BumpBuffer before latest (reaching the stop early enough to queue),
// regardless of which way the search is labeling. A candidate bumped
// entirely outside the admission window is rejected outright (ok=false);
// one bumped within the window reports that adjusted board time and the
// cost delta the caller must add.
func (q *query) applyCapacityCheck(ctx context.Context, tripID string, seq int, stopID string, boardTime float64) (adjusted, delta float64, ok bool) {
	if q.pf.capacity == nil {
		return boardTime, 0, true
	}
	latest, has := q.pf.capacity.LatestBoardTime(ctx, tripID, seq, stopID)
	if !has {
		return boardTime, 0, true
	}
	if boardTime <= latest {
		return boardTime, 0, true // boards before the bump, no adjustment needed
	}
	if q.pf.cfg.TimeWindow > 0 && boardTime-latest > q.pf.cfg.TimeWindow {
		return boardTime, 0, false
	}
	delta = (boardTime - latest) + q.pf.cfg.BumpBuffer
	adjusted = latest - q.pf.cfg.BumpBuffer
	return adjusted, delta, true
}

// --- finalization (§4.3) ------------------------------------------------

// finalize mirrors initialization against the opposite boundary zone:
// frontier stops already reached on their trip side during labeling gain a
// boundary-mode (ACCESS outbound / EGRESS inbound) candidate leading out to
// the ending zone, aggregated into a single zone-level hyperlink that
// enumeration starts from.
func (q *query) finalize(ctx context.Context) error {
	zone := q.spec.EndZone()
	mode := domain.BoundaryMode(q.spec.Outbound)

	demandMode, links, err := q.boundaryLinks(ctx, zone, !q.spec.Outbound)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return errNoPath("pathfinder: no access/egress links for ending zone %s", zone)
	}

	zoneKey := zoneHyperlinkKey(zone)
	reached := false
	for _, link := range links {
		hl, ok := q.hyperlinks[link.StopID]
		if !ok || hl.Trip.Len() == 0 {
			continue
		}
		nonwalk := hl.HyperpathCost(true)
		if math.IsInf(nonwalk, 1) {
			continue
		}
		weights, werr := q.pf.supply.Weights(ctx, q.spec.UserClass, mode.String(), demandMode, link.SupplyMode)
		if werr != nil || weights == nil {
			continue
		}
		attrs := mergeAttributes(link.Attributes, domain.AttributeBag{"preferred_delay_min": 0})
		linkCost := TallyLinkCost(link.SupplyMode, weights, attrs)

		extremum, _ := hl.Trip.Extremum()
		deparrTime := extremum - link.LinkTime*q.spec.DirFactor()

		ss := domain.StopState{
			DeparrMode:   mode,
			TripID:       link.SupplyMode,
			StopSuccPred: link.StopID,
			Seq:          -1,
			SeqSuccPred:  -1,
			DeparrTime:   deparrTime,
			ArrdepTime:   extremum,
			LinkTime:     link.LinkTime,
			LinkCost:     linkCost,
			LinkDist:     link.LinkDist,
			Cost:         nonwalk + linkCost,
		}
		zoneHL := q.hyperlinkFor(zoneKey)
		zoneHL.AddLink(ss)
		reached = true
	}
	if !reached {
		return errNoPath("pathfinder: no viable itinerary reaches ending zone %s", zone)
	}
	q.trace(ctx, "finalized %d boundary candidates at zone %s", len(links), zone)
	return nil
}

func zoneHyperlinkKey(zone string) string { return "taz:" + zone }

// --- enumeration (§4.4) --------------------------------------------------

type distinctPathBucket struct {
	path  *domain.Path
	count int
}

func (q *query) enumerate(ctx context.Context) (*domain.Path, []PathInfo, error) {
	zoneKey := zoneHyperlinkKey(q.spec.EndZone())
	startHL, ok := q.hyperlinks[zoneKey]
	if !ok {
		return nil, nil, errNoPath("pathfinder: no path found from %s to %s", q.spec.OriginTAZ, q.spec.DestinationTAZ)
	}

	attempts := 1
	if q.spec.Hyperpath {
		attempts = q.pf.cfg.StochPathsetSize
		if attempts <= 0 {
			attempts = 1
		}
	}

	distinct := make(map[string]*distinctPathBucket)
	var order []string

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return nil, nil, errCancelled()
		default:
		}
		q.perf.EnumerationAttempts++

		path, err := q.generateOnePath(ctx, startHL)
		if err != nil {
			q.trace(ctx, "enumeration attempt %d failed: %v", i, err)
			continue
		}
		if rerr := q.pf.recostPath(ctx, q.spec, path); rerr != nil {
			q.trace(ctx, "enumeration attempt %d cost recompute failed: %v", i, rerr)
			continue
		}
		q.perf.EnumerationSuccesses++

		sig := pathSignature(path)
		bucket, exists := distinct[sig]
		if !exists {
			bucket = &distinctPathBucket{path: path}
			distinct[sig] = bucket
			order = append(order, sig)
		}
		bucket.count++
	}

	if len(distinct) == 0 {
		return nil, nil, nil
	}

	infos := make([]PathInfo, 0, len(distinct))
	for _, sig := range order {
		b := distinct[sig]
		infos = append(infos, PathInfo{
			Probability:     float64(b.count) / float64(q.perf.EnumerationSuccesses),
			ProbI:           int64(b.count),
			Cost:            b.path.Cost,
			CapacityProblem: b.path.CapacityProblem,
			Count:           b.count,
		})
	}

	chosenSig := order[0]
	if q.spec.Hyperpath && len(order) > 1 {
		chosenSig = q.sampleDistinct(order, distinct)
	}
	return distinct[chosenSig].path, infos, nil
}

func (q *query) sampleDistinct(order []string, distinct map[string]*distinctPathBucket) string {
	total := 0
	for _, sig := range order {
		total += distinct[sig].count
	}
	if total <= 0 {
		return order[0]
	}
	sample := q.rng.Intn(total)
	running := 0
	for _, sig := range order {
		running += distinct[sig].count
		if sample < running {
			return sig
		}
	}
	return order[len(order)-1]
}

func pathSignature(path *domain.Path) string {
	var b strings.Builder
	for _, link := range path.AppendOrderLinks() {
		k := link.State.Key()
		fmt.Fprintf(&b, "%d|%s|%s|%d|%d;", k.DeparrMode, k.TripID, k.StopSuccPred, k.Seq, k.SeqSuccPred)
	}
	return b.String()
}

// generateOnePath is hyperpathGeneratePath (§4.4): it samples one concrete
// itinerary by walking out from the end-zone's non-trip LinkSet, alternating
// trip/non-trip sides, until a link in the search's terminal mode is placed.
func (q *query) generateOnePath(ctx context.Context, startHL *Hyperlink) (*domain.Path, error) {
	select {
	case <-ctx.Done():
		return nil, errCancelled()
	default:
	}

	path := domain.NewPath(q.spec.Outbound, q.spec.Hyperpath)
	terminal := domain.TerminalMode(q.spec.Outbound)

	startHL.NonTrip.setupProbabilitiesEnumeration(q.spec.Outbound, path, nil)
	link, ok := startHL.NonTrip.chooseState(q.rng)
	if !ok {
		return nil, fmt.Errorf("pathfinder: no valid boundary link to start enumeration")
	}
	if err := path.AddLink(zoneHyperlinkKey(q.spec.EndZone()), link.Clone()); err != nil {
		return nil, err
	}

	currentStopID := link.StopSuccPred
	isTripSide := link.DeparrMode.IsTrip()

	for link.DeparrMode != terminal {
		select {
		case <-ctx.Done():
			return nil, errCancelled()
		default:
		}

		hl, ok := q.hyperlinks[currentStopID]
		if !ok {
			return nil, fmt.Errorf("pathfinder: enumeration reached stop %s with no hyperlink", currentStopID)
		}
		isTripSide = !isTripSide
		ls := hl.linkSet(isTripSide)

		var adjust FareAdjustFunc
		if isTripSide {
			adjust = q.pf.fares.EnumerationAdjustFunc(ctx, q.spec)
		}
		if n := ls.setupProbabilitiesEnumeration(q.spec.Outbound, path, adjust); n <= 0 {
			return nil, fmt.Errorf("pathfinder: enumeration dead end at stop %s", currentStopID)
		}
		chosen, ok := ls.chooseState(q.rng)
		if !ok {
			return nil, fmt.Errorf("pathfinder: enumeration sampling failed at stop %s", currentStopID)
		}
		if err := path.AddLink(currentStopID, chosen.Clone()); err != nil {
			return nil, err
		}

		link = chosen
		currentStopID = chosen.StopSuccPred
	}

	return path, nil
}

// --- cost recomputation (§4.4 calculateCost) -----------------------------

// recostPath walks a concrete path in chronological order, rebuilding each
// link's attribute bag from real (post-reconciliation) times and re-scoring
// it through CostEngine/FareEngine. This is the authoritative cost; the
// running totals accumulated during labeling are only ever an estimate.
func (pf *Pathfinder) recostPath(ctx context.Context, spec *domain.PathSpecification, path *domain.Path) error {
	chrono := path.ChronologicalLinks()
	rebuilt := make([]domain.PathLink, len(chrono))

	var totalCost, totalFare float64
	var capacityProblem bool
	boardCounts := make(map[string]int)
	var prevFP *domain.FarePeriod

	for i, link := range chrono {
		ss := link.State
		if ss.CapacityBumped {
			capacityProblem = true
		}
		var attrs domain.AttributeBag
		var weights domain.WeightSet
		var supplyMode string

		switch ss.DeparrMode {
		case domain.ModeAccess, domain.ModeEgress:
			demandMode := spec.AccessDemandMode
			if ss.DeparrMode == domain.ModeEgress {
				demandMode = spec.EgressDemandMode
			}
			supplyMode = ss.TripID
			weights, _ = pf.supply.Weights(ctx, spec.UserClass, ss.DeparrMode.String(), demandMode, supplyMode)
			attrs = domain.AttributeBag{"preferred_delay_min": computePreferredDelay(ss, spec)}

		case domain.ModeTransfer:
			supplyMode = "transfer"
			weights, _ = pf.supply.Weights(ctx, spec.UserClass, ss.DeparrMode.String(), spec.TransitDemandMode, supplyMode)
			attrs = domain.AttributeBag{"transfer_penalty": 1.0}

		case domain.ModeTransit:
			tripInfo, terr := pf.supply.TripInfo(ctx, ss.TripID)
			if terr != nil || tripInfo == nil {
				return errInvariant("pathfinder: recost: trip info unavailable for %s", ss.TripID)
			}
			supplyMode = tripInfo.SupplyMode
			weights, _ = pf.supply.Weights(ctx, spec.UserClass, ss.DeparrMode.String(), spec.TransitDemandMode, supplyMode)
			waitTime, transferPenalty := computeWaitTime(i, chrono, spec.Outbound)
			attrs = mergeAttributes(tripInfo.Attributes, domain.AttributeBag{
				"in_vehicle_time_min": ss.LinkTime,
				"wait_time_min":       waitTime,
				"transfer_penalty":    transferPenalty,
			})
			ss.LinkIvtWt = weights["in_vehicle_time_min"]
			ss.FarePeriod = tripInfo.FarePeriod

			boardCounts[farePeriodID(ss.FarePeriod)]++
			switch {
			case ss.FarePeriod == nil:
				// no tariff attached to this trip
			case prevFP != nil && prevFP.ID != ss.FarePeriod.ID:
				rule, _ := pf.supply.FareTransferRule(ctx, prevFP.ID, ss.FarePeriod.ID)
				ss.LinkFare = pf.fares.AdjustPrice(ss.FarePeriod.Price, ss.FarePeriod, rule, boardCounts[ss.FarePeriod.ID])
			default:
				ss.LinkFare = ss.FarePeriod.Price
			}
			prevFP = ss.FarePeriod

		default:
			// boundary-mode link carried over unchanged from initialization/finalization
		}

		if weights == nil {
			weights = domain.WeightSet{}
		}
		ss.LinkCost = TallyLinkCost(supplyMode, weights, attrs)

		totalCost += ss.LinkCost
		totalFare += ss.LinkFare
		rebuilt[i] = domain.PathLink{StopID: link.StopID, State: ss}
	}

	path.InitialCost = path.Cost
	path.InitialFare = path.Fare
	path.Cost = totalCost
	path.Fare = totalFare
	path.CapacityProblem = capacityProblem
	path.ReplaceChronological(rebuilt)
	return nil
}

// computePreferredDelay is only meaningful on the link anchored to the
// query's preferred time (the terminal-mode link placed at initialization);
// the opposite boundary link, placed at finalization against a label rather
// than the anchor, reports zero.
func computePreferredDelay(ss domain.StopState, spec *domain.PathSpecification) float64 {
	if ss.DeparrMode != domain.TerminalMode(spec.Outbound) {
		return 0
	}
	anchor := ss.ArrdepTime
	if !spec.Outbound {
		anchor = ss.DeparrTime
	}
	return math.Abs(anchor - spec.PreferredTime)
}

func computeWaitTime(i int, chrono []domain.PathLink, outbound bool) (waitTime, transferPenalty float64) {
	if i == 0 {
		return 0, 1
	}
	prev := chrono[i-1].State
	cur := chrono[i].State
	// deparr_time/arrdep_time swap which is the departure-side field between
	// outbound and inbound queries (§3), so the wait is cur's departure-side
	// time minus prev's arrival-side time in both directions, just reading
	// different fields rather than flipping sign on the same pair.
	if outbound {
		waitTime = cur.DeparrTime - prev.ArrdepTime
	} else {
		waitTime = cur.ArrdepTime - prev.DeparrTime
	}
	transferPenalty = 1
	if prev.DeparrMode == domain.BoundaryMode(outbound) {
		transferPenalty = 0
	}
	return waitTime, transferPenalty
}
