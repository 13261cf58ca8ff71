package domain

import "math"

// DeparrMode is the four-variant link-type tag used throughout labeling.
// The numeric values are not meaningful outside this process; only the
// identity of the constant matters.
type DeparrMode int

const (
	ModeUnset DeparrMode = iota
	ModeAccess
	ModeEgress
	ModeTransfer
	ModeTransit
)

func (m DeparrMode) String() string {
	switch m {
	case ModeAccess:
		return "access"
	case ModeEgress:
		return "egress"
	case ModeTransfer:
		return "transfer"
	case ModeTransit:
		return "transit"
	default:
		return "unset"
	}
}

// IsTrip reports whether links of this mode belong to a stop's trip
// LinkSet (TRANSIT) as opposed to its non-trip LinkSet (ACCESS, EGRESS,
// TRANSFER).
func (m DeparrMode) IsTrip() bool {
	return m == ModeTransit
}

// BoundaryMode returns the window-exempt mode for a search direction:
// ACCESS for outbound, EGRESS for inbound.
func BoundaryMode(outbound bool) DeparrMode {
	if outbound {
		return ModeAccess
	}
	return ModeEgress
}

// TerminalMode returns the mode that ends path enumeration: EGRESS for
// outbound, ACCESS for inbound.
func TerminalMode(outbound bool) DeparrMode {
	if outbound {
		return ModeEgress
	}
	return ModeAccess
}

// DirFactor is +1 for outbound searches (labeling runs backward in time
// from the destination) and -1 for inbound searches (labeling runs forward
// in time from the origin). See spec §4.3.
func DirFactor(outbound bool) float64 {
	if outbound {
		return 1
	}
	return -1
}

// FixTimeRange reduces a time-of-day value to [0, 1440) by modular
// arithmetic. Nothing in the module calls it; deparr_time/arrdep_time keep
// sign and may fall outside [0, 1440) to represent a midnight crossing.
func FixTimeRange(t float64) float64 {
	const day = 1440.0
	r := math.Mod(t, day)
	if r < 0 {
		r += day
	}
	return r
}
