package domain_test

import (
	"testing"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
)

// buildOutboundDirectTrip mirrors the append order a labeling walk would
// produce for an outbound query over taz-A --walk--> S1 --T1--> S2 --walk--> taz-B:
// access is seeded from the preferred time, then the transit ride is placed
// with its exact schedule times, then egress is appended last.
func buildOutboundDirectTrip(t *testing.T) *domain.Path {
	t.Helper()
	p := domain.NewPath(true, false)

	if err := p.AddLink("S1", domain.StopState{
		DeparrMode: domain.ModeAccess, StopSuccPred: "S1", Seq: -1, SeqSuccPred: -1,
		DeparrTime: 485, ArrdepTime: 490, LinkTime: 5,
	}); err != nil {
		t.Fatalf("access: %v", err)
	}
	if err := p.AddLink("S2", domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T1", StopSuccPred: "S2", Seq: 1, SeqSuccPred: 2,
		DeparrTime: 490, ArrdepTime: 510,
	}); err != nil {
		t.Fatalf("transit: %v", err)
	}
	if err := p.AddLink("taz-B", domain.StopState{
		DeparrMode: domain.ModeEgress, StopSuccPred: "taz-B", Seq: -1, SeqSuccPred: -1,
		DeparrTime: 510, ArrdepTime: 515, LinkTime: 5,
	}); err != nil {
		t.Fatalf("egress: %v", err)
	}
	return p
}

func TestAddLink_Outbound_ReconcilesBoundaryToExactSchedule(t *testing.T) {
	p := buildOutboundDirectTrip(t)
	chrono := p.ChronologicalLinks()
	if len(chrono) != 3 {
		t.Fatalf("expected 3 links, got %d", len(chrono))
	}

	access := chrono[0].State
	if access.ArrdepTime != 490 || access.DeparrTime != 485 {
		t.Errorf("access: got (D=%.0f,A=%.0f), want (D=485,A=490)", access.DeparrTime, access.ArrdepTime)
	}

	transit := chrono[1].State
	if transit.DeparrTime != 490 || transit.ArrdepTime != 510 {
		t.Errorf("transit: got (D=%.0f,A=%.0f), want (D=490,A=510)", transit.DeparrTime, transit.ArrdepTime)
	}

	egress := chrono[2].State
	if egress.DeparrTime != 510 || egress.ArrdepTime != 515 {
		t.Errorf("egress: got (D=%.0f,A=%.0f), want (D=510,A=515)", egress.DeparrTime, egress.ArrdepTime)
	}

	if got := p.OriginDepartureTime(); got != 485 {
		t.Errorf("OriginDepartureTime() = %f, want 485", got)
	}
	if got := p.DestinationArrivalTime(); got != 515 {
		t.Errorf("DestinationArrivalTime() = %f, want 515", got)
	}
}

// buildInboundDirectTrip mirrors the append order an inbound labeling walk
// produces: links are appended reverse-chronologically, so egress is placed
// first, then the transit ride, then access last.
func buildInboundDirectTrip(t *testing.T) *domain.Path {
	t.Helper()
	p := domain.NewPath(false, false)

	if err := p.AddLink("S2", domain.StopState{
		DeparrMode: domain.ModeEgress, StopSuccPred: "S2", Seq: -1, SeqSuccPred: -1,
		DeparrTime: 515, ArrdepTime: 510, LinkTime: 5,
	}); err != nil {
		t.Fatalf("egress: %v", err)
	}
	if err := p.AddLink("S1", domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T1", StopSuccPred: "S1", Seq: 2, SeqSuccPred: 1,
		DeparrTime: 510, ArrdepTime: 490,
	}); err != nil {
		t.Fatalf("transit: %v", err)
	}
	if err := p.AddLink("taz-A", domain.StopState{
		DeparrMode: domain.ModeAccess, StopSuccPred: "taz-A", Seq: -1, SeqSuccPred: -1,
		LinkTime: 5,
	}); err != nil {
		t.Fatalf("access: %v", err)
	}
	return p
}

func TestAddLink_Inbound_EgressTransitBoundary_PullsAlightTime(t *testing.T) {
	p := buildInboundDirectTrip(t)
	chrono := p.ChronologicalLinks()
	if len(chrono) != 3 {
		t.Fatalf("expected 3 links, got %d", len(chrono))
	}

	access := chrono[0].State
	transit := chrono[1].State
	egress := chrono[2].State

	if access.DeparrMode != domain.ModeAccess || transit.DeparrMode != domain.ModeTransit || egress.DeparrMode != domain.ModeEgress {
		t.Fatalf("unexpected mode order: %v %v %v", access.DeparrMode, transit.DeparrMode, egress.DeparrMode)
	}

	// The egress link's raw values already sit exactly at the transit's
	// alight time (510), so reconciliation is a no-op here.
	if egress.DeparrTime != 515 || egress.ArrdepTime != 510 {
		t.Errorf("egress: got (D=%.0f,A=%.0f), want (D=515,A=510)", egress.DeparrTime, egress.ArrdepTime)
	}
	if transit.DeparrTime != 510 || transit.ArrdepTime != 490 {
		t.Errorf("transit: got (D=%.0f,A=%.0f), want (D=510,A=490)", transit.DeparrTime, transit.ArrdepTime)
	}
}

func TestAddLink_Inbound_TransitAccessBoundary_ZeroWaitToBoard(t *testing.T) {
	p := buildInboundDirectTrip(t)
	chrono := p.ChronologicalLinks()

	access := chrono[0].State
	// The access link must arrive exactly at the trip's board time (490) with
	// zero wait, then depart the origin 5 minutes earlier. Inbound, the
	// arrival side is DeparrTime and the departure side is ArrdepTime.
	if access.DeparrTime != 490 {
		t.Errorf("access.DeparrTime = %f, want 490 (zero wait to board)", access.DeparrTime)
	}
	if access.ArrdepTime != 485 {
		t.Errorf("access.ArrdepTime = %f, want 485", access.ArrdepTime)
	}
}

func TestAddLink_Inbound_OriginDepartureAndDestinationArrival_AreOrderedCorrectly(t *testing.T) {
	p := buildInboundDirectTrip(t)

	origin := p.OriginDepartureTime()
	dest := p.DestinationArrivalTime()

	if origin != 485 {
		t.Errorf("OriginDepartureTime() = %f, want 485", origin)
	}
	if dest != 515 {
		t.Errorf("DestinationArrivalTime() = %f, want 515", dest)
	}
	if origin >= dest {
		t.Fatalf("origin departure (%f) must precede destination arrival (%f)", origin, dest)
	}
}

func TestAddLink_Inbound_PlainTransferBoundary_SwapsFields(t *testing.T) {
	p := domain.NewPath(false, false)

	if err := p.AddLink("S3", domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T2", StopSuccPred: "S3", Seq: 2, SeqSuccPred: 1,
		DeparrTime: 600, ArrdepTime: 580,
	}); err != nil {
		t.Fatalf("first transit: %v", err)
	}
	if err := p.AddLink("S2", domain.StopState{
		DeparrMode: domain.ModeTransfer, StopSuccPred: "S2", Seq: -1, SeqSuccPred: -1,
		LinkTime: 3,
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	chrono := p.ChronologicalLinks()
	transfer := chrono[0].State
	firstTransit := chrono[1].State

	if firstTransit.DeparrTime != 600 {
		t.Fatalf("first transit DeparrTime changed unexpectedly: %f", firstTransit.DeparrTime)
	}
	// A transfer pulls its arrival-side field from the already-placed link's
	// deparr_time and adds its own walk time on the departure side.
	if transfer.ArrdepTime != firstTransit.DeparrTime {
		t.Errorf("transfer.ArrdepTime = %f, want %f (firstTransit.DeparrTime)", transfer.ArrdepTime, firstTransit.DeparrTime)
	}
	if transfer.DeparrTime != transfer.ArrdepTime+3 {
		t.Errorf("transfer.DeparrTime = %f, want %f (ArrdepTime + LinkTime)", transfer.DeparrTime, transfer.ArrdepTime+3)
	}
}

func TestAddLink_Outbound_RejectsNegativeLinkTime(t *testing.T) {
	p := domain.NewPath(true, false)
	if err := p.AddLink("S1", domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T1", StopSuccPred: "S1", Seq: 1, SeqSuccPred: 2,
		DeparrTime: 500, ArrdepTime: 500,
	}); err != nil {
		t.Fatalf("first transit: %v", err)
	}
	err := p.AddLink("S2", domain.StopState{
		DeparrMode: domain.ModeTransit, TripID: "T2", StopSuccPred: "S2", Seq: 1, SeqSuccPred: 2,
		DeparrTime: 490, ArrdepTime: 490,
	})
	if err == nil {
		t.Fatal("expected an error when the next trip would board before the previous one arrives")
	}
}

func TestReplaceChronological_RoundTrips(t *testing.T) {
	p := buildInboundDirectTrip(t)
	chrono := p.ChronologicalLinks()

	p2 := domain.NewPath(false, false)
	p2.ReplaceChronological(chrono)

	if p2.Len() != p.Len() {
		t.Fatalf("expected %d links after replace, got %d", p.Len(), p2.Len())
	}
	got := p2.ChronologicalLinks()
	for i := range chrono {
		if got[i].StopID != chrono[i].StopID {
			t.Errorf("link %d: stop mismatch after round-trip: got %s, want %s", i, got[i].StopID, chrono[i].StopID)
		}
	}
}

func TestBoardCount_CountsTransitBoardsByFarePeriod(t *testing.T) {
	p := domain.NewPath(true, false)
	fp := &domain.FarePeriod{ID: "fp-1"}

	_ = p.AddLink("S1", domain.StopState{DeparrMode: domain.ModeTransit, TripID: "T1", FarePeriod: fp})
	_ = p.AddLink("S2", domain.StopState{DeparrMode: domain.ModeTransfer})
	_ = p.AddLink("S3", domain.StopState{DeparrMode: domain.ModeTransit, TripID: "T2", FarePeriod: fp})

	if got := p.BoardCount("fp-1"); got != 2 {
		t.Errorf("BoardCount(fp-1) = %d, want 2", got)
	}
	if got := p.BoardCount("unknown"); got != 0 {
		t.Errorf("BoardCount(unknown) = %d, want 0", got)
	}
}

func TestMutateLast_AppliesToMostRecentLink(t *testing.T) {
	p := domain.NewPath(true, false)
	_ = p.AddLink("S1", domain.StopState{DeparrMode: domain.ModeAccess, LinkFare: 0})

	p.MutateLast(func(ss *domain.StopState) { ss.LinkFare = 2.5 })

	last, ok := p.Last()
	if !ok {
		t.Fatal("expected a last link")
	}
	if last.State.LinkFare != 2.5 {
		t.Errorf("LinkFare = %f, want 2.5", last.State.LinkFare)
	}
}
