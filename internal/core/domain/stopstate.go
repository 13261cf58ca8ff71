package domain

// StopState is a single candidate link held inside a stop's Hyperlink.
// Two StopStates are equal iff their five identifying fields match:
// DeparrMode, TripID, StopSuccPred, Seq, SeqSuccPred.
type StopState struct {
	DeparrMode   DeparrMode
	TripID       string // trip number when TRANSIT; supply-mode number otherwise
	StopSuccPred string // successor (outbound) or predecessor (inbound) stop
	Seq          int    // position on the trip; -1 for non-trip links
	SeqSuccPred  int    // position of the linked stop; -1 for non-trip links

	DeparrTime float64 // departure (outbound) / arrival (inbound) time, minutes after midnight; may be <0 or >=1440
	ArrdepTime float64 // the complementary time

	LinkTime  float64
	LinkFare  float64
	LinkCost  float64
	LinkDist  float64
	LinkIvtWt float64 // in-vehicle-time weight, memoized for fare-adjustment arithmetic

	Cost      float64
	Iteration int
	Probability float64
	CumProbI    int64 // integerized cumulative probability; -1 means invalid

	FarePeriod *FarePeriod // optional

	// CapacityBumped records that this link's departure was pushed back by
	// the injected bump-wait map (§4.6).
	CapacityBumped bool

	// LowCostPath is a seed path owned by this StopState while it lives in a
	// labeling Hyperlink; released on replacement or on Hyperlink clear.
	// Never populated outside the labeling phase.
	LowCostPath *Path
}

// StopStateKey identifies a StopState by its five equality fields, used by
// LinkSet's key map and by the LabelQueue's per-(stop,is_trip) tracking.
type StopStateKey struct {
	DeparrMode   DeparrMode
	TripID       string
	StopSuccPred string
	Seq          int
	SeqSuccPred  int
}

// Key extracts the identifying key of a StopState.
func (ss *StopState) Key() StopStateKey {
	return StopStateKey{
		DeparrMode:   ss.DeparrMode,
		TripID:       ss.TripID,
		StopSuccPred: ss.StopSuccPred,
		Seq:          ss.Seq,
		SeqSuccPred:  ss.SeqSuccPred,
	}
}

// Less gives the lexicographic order over the five identifying fields,
// used only for deterministic iteration in tests and trace output.
func (k StopStateKey) Less(o StopStateKey) bool {
	if k.DeparrMode != o.DeparrMode {
		return k.DeparrMode < o.DeparrMode
	}
	if k.TripID != o.TripID {
		return k.TripID < o.TripID
	}
	if k.StopSuccPred != o.StopSuccPred {
		return k.StopSuccPred < o.StopSuccPred
	}
	if k.Seq != o.Seq {
		return k.Seq < o.Seq
	}
	return k.SeqSuccPred < o.SeqSuccPred
}

// Clone returns a shallow copy, dropping LowCostPath ownership — used when
// a StopState is copied into a Path during enumeration, which does not own
// the labeling-time seed path.
func (ss StopState) Clone() StopState {
	c := ss
	c.LowCostPath = nil
	return c
}
