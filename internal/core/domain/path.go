package domain

import "fmt"

// PathLink is one stop-state placed into a Path, paired with the stop it
// was relaxed from/to.
type PathLink struct {
	StopID string
	State  StopState
}

// Path is an ordered sequence of links. During labeling it grows in the
// direction labeling proceeds (reversed relative to real time); during
// enumeration it is built by hyperpathGeneratePath one link at a time in
// the same append order. ChronologicalLinks always returns true time
// order regardless of append order.
type Path struct {
	Outbound  bool
	Hyperpath bool

	links []PathLink

	Fare            float64
	Cost            float64
	InitialFare     float64
	InitialCost     float64
	CapacityProblem bool

	boardsByFarePeriod map[string]int
}

// NewPath constructs an empty path with fixed orientation flags.
func NewPath(outbound, hyperpath bool) *Path {
	return &Path{
		Outbound:           outbound,
		Hyperpath:          hyperpath,
		boardsByFarePeriod: make(map[string]int),
	}
}

// Len returns the number of links placed so far.
func (p *Path) Len() int { return len(p.links) }

// Empty reports whether no link has been placed yet.
func (p *Path) Empty() bool { return len(p.links) == 0 }

// Last returns the most recently appended link and true, or the zero value
// and false if the path is empty.
func (p *Path) Last() (PathLink, bool) {
	if len(p.links) == 0 {
		return PathLink{}, false
	}
	return p.links[len(p.links)-1], true
}

// AppendOrderLinks returns the links in the order they were appended
// (labeling order for outbound, reverse-chronological for inbound).
func (p *Path) AppendOrderLinks() []PathLink {
	return p.links
}

// ChronologicalLinks returns the links in true time order: append order for
// outbound paths, reversed for inbound paths.
func (p *Path) ChronologicalLinks() []PathLink {
	if p.Outbound {
		out := make([]PathLink, len(p.links))
		copy(out, p.links)
		return out
	}
	out := make([]PathLink, len(p.links))
	for i, l := range p.links {
		out[len(p.links)-1-i] = l
	}
	return out
}

// MutateLast applies fn to the most recently appended link's state in
// place. Used by fare-transfer reconciliation, which may retroactively
// credit a link already placed in the path (§4.7).
func (p *Path) MutateLast(fn func(*StopState)) {
	if len(p.links) == 0 {
		return
	}
	fn(&p.links[len(p.links)-1].State)
}

// BoardCount returns the number of times this path has boarded a trip in
// the given fare period so far (used for free-transfer counting, §4.7).
func (p *Path) BoardCount(farePeriodID string) int {
	return p.boardsByFarePeriod[farePeriodID]
}

func (p *Path) recordBoard(farePeriodID string) {
	if farePeriodID == "" {
		return
	}
	p.boardsByFarePeriod[farePeriodID]++
}

// AddLink appends a new link, performing the chronological reconciliation
// of §4.4. It returns an error if reconciliation would place a trip before
// its vehicle leaves (a physical impossibility) — the caller must discard
// the enumeration attempt in that case.
func (p *Path) AddLink(stopID string, ss StopState) error {
	entry := PathLink{StopID: stopID, State: ss}

	prevEntry, hasPrev := p.Last()
	if !hasPrev {
		p.links = append(p.links, entry)
		if entry.State.DeparrMode == ModeTransit {
			p.recordBoard(farePeriodID(entry.State.FarePeriod))
		}
		return nil
	}

	prev := prevEntry.State
	next := entry.State

	if p.Outbound {
		if err := reconcileOutbound(&prev, &next); err != nil {
			return err
		}
	} else {
		if err := reconcileInbound(&prev, &next); err != nil {
			return err
		}
	}

	p.links[len(p.links)-1].State = prev
	entry.State = next
	p.links = append(p.links, entry)

	if next.DeparrMode == ModeTransit {
		p.recordBoard(farePeriodID(next.FarePeriod))
	}
	return nil
}

func farePeriodID(fp *FarePeriod) string {
	if fp == nil {
		return ""
	}
	return fp.ID
}

// reconcileOutbound fixes up time fields when new is appended chronologically
// after prev. See SPEC_FULL.md / DESIGN.md for the derivation of the inbound
// mirror below.
func reconcileOutbound(prev, next *StopState) error {
	switch {
	case prev.DeparrMode == ModeAccess && next.DeparrMode == ModeTransit:
		prev.ArrdepTime = next.DeparrTime
		prev.DeparrTime = prev.ArrdepTime - prev.LinkTime
		next.LinkTime = next.ArrdepTime - next.DeparrTime
	case next.DeparrMode == ModeTransit && (prev.DeparrMode == ModeTransit || prev.DeparrMode == ModeTransfer):
		next.LinkTime = next.ArrdepTime - prev.ArrdepTime
		if next.LinkTime < 0 {
			return fmt.Errorf("path: trip %s would board before it leaves (link_time=%.2f)", next.TripID, next.LinkTime)
		}
	case next.DeparrMode == ModeTransfer:
		next.DeparrTime = prev.ArrdepTime
		next.ArrdepTime = next.DeparrTime + next.LinkTime
	case next.DeparrMode == ModeEgress:
		next.DeparrTime = prev.ArrdepTime
		next.ArrdepTime = next.DeparrTime + next.LinkTime
	}
	return nil
}

// reconcileInbound is the direction-mirrored counterpart of reconcileOutbound:
// new is always appended chronologically *before* prev (append order runs
// reverse-chronological). For an inbound query deparr_time holds each
// state's own arrival-side time and arrdep_time its departure-side time —
// the opposite pairing from outbound — so the boundary-touches-transit
// cases (egress-then-transit, transit-then-access) pull from and write to
// the fields with those roles reversed relative to their outbound
// counterparts; a naive per-field substitution gives the wrong answer here
// because which side of the transit ride each boundary link touches
// (alight side for egress, board side for access) determines which of the
// transit's two fields is the one to pull.
func reconcileInbound(prev, next *StopState) error {
	switch {
	case prev.DeparrMode == ModeEgress && next.DeparrMode == ModeTransit:
		prev.ArrdepTime = next.DeparrTime
		prev.DeparrTime = prev.ArrdepTime + prev.LinkTime
		next.LinkTime = next.DeparrTime - next.ArrdepTime
	case next.DeparrMode == ModeTransit && (prev.DeparrMode == ModeTransit || prev.DeparrMode == ModeTransfer):
		next.LinkTime = prev.DeparrTime - next.DeparrTime
		if next.LinkTime < 0 {
			return fmt.Errorf("path: trip %s would board before it leaves (link_time=%.2f)", next.TripID, next.LinkTime)
		}
	case next.DeparrMode == ModeTransfer:
		next.ArrdepTime = prev.DeparrTime
		next.DeparrTime = next.ArrdepTime + next.LinkTime
	case next.DeparrMode == ModeAccess:
		next.DeparrTime = prev.ArrdepTime
		next.ArrdepTime = next.DeparrTime - next.LinkTime
	}
	return nil
}

// ReplaceChronological overwrites the path's links from a chronologically
// ordered slice, translating back to append order for inbound paths. Used
// by cost recomputation, which walks and rebuilds links in time order.
func (p *Path) ReplaceChronological(chrono []PathLink) {
	if p.Outbound {
		p.links = append(p.links[:0], chrono...)
		return
	}
	p.links = make([]PathLink, len(chrono))
	for i, l := range chrono {
		p.links[len(chrono)-1-i] = l
	}
}

// OriginDepartureTime and DestinationArrivalTime read off the two ends of
// the chronological path — the values §8 scenario (a)/(f) check. deparr_time
// is the departure-side field for an outbound query but the arrival-side
// field for an inbound one (§3), so which physical field holds "departs
// the origin" / "arrives at the destination" flips with Outbound.
func (p *Path) OriginDepartureTime() float64 {
	links := p.ChronologicalLinks()
	if len(links) == 0 {
		return 0
	}
	if p.Outbound {
		return links[0].State.DeparrTime
	}
	return links[0].State.ArrdepTime
}

func (p *Path) DestinationArrivalTime() float64 {
	links := p.ChronologicalLinks()
	if len(links) == 0 {
		return 0
	}
	last := links[len(links)-1].State
	if p.Outbound {
		return last.ArrdepTime
	}
	return last.DeparrTime
}
