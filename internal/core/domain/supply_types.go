package domain

// AttributeBag is a named bag of link attributes fed to the CostEngine.
// Keys are the attribute names referenced by a WeightSet (e.g.
// "in_vehicle_time_min", "wait_time_min", "fare", "transfer_penalty",
// "preferred_delay_min"). Values are in whatever unit the weight expects.
type AttributeBag map[string]float64

// SupplyStopTime is one row of the sorted-per-trip stop-time input
// contract (§6): seq starts at 1 and increases strictly within a trip.
type SupplyStopTime struct {
	TripID     string
	Seq        int
	StopID     string
	ArriveTime float64 // minutes after midnight, may be >=1440 for trips that run past midnight
	DepartTime float64
}

// TripInfo is the read-only per-trip attribute bag (supply mode, route,
// and whatever additional attributes the cost engine wants).
type TripInfo struct {
	TripID     string
	SupplyMode string
	RouteID    string
	Attributes AttributeBag
	FarePeriod *FarePeriod
}

// AccessEgressLink is a TAZ<->stop link, valid within [StartTime, EndTime).
type AccessEgressLink struct {
	TAZ        string
	SupplyMode string
	StopID     string
	StartTime  float64
	EndTime    float64
	LinkTime   float64
	LinkDist   float64
	Attributes AttributeBag
}

// TransferLink is a stop-to-stop walk transfer, including the zero-walk
// self-transfer (FromStop == ToStop, LinkTime == 0).
type TransferLink struct {
	FromStop   string
	ToStop     string
	LinkTime   float64
	LinkDist   float64
	Attributes AttributeBag
}

// FarePeriod is a tariff stratum attached to a trip segment.
type FarePeriod struct {
	ID                string
	Price             float64
	FreeTransferCount int
}

// FareTransferRuleType is the kind of adjustment a FareTransfer applies to
// the price of the later trip in a chain.
type FareTransferRuleType int

const (
	FareTransferNone FareTransferRuleType = iota
	FareTransferFree
	FareTransferFixedCost
	FareTransferDiscount
)

// FareTransfer describes how boarding FarePeriod `To` right after
// FarePeriod `From` affects the later trip's price.
type FareTransfer struct {
	From   string
	To     string
	Rule   FareTransferRuleType
	Amount float64 // meaning depends on Rule: ignored for Free, absolute price for FixedCost, discount for Discount
}

// WeightSet is a named-weight table for one (user_class, demand_mode_type,
// demand_mode, supply_mode) combination. CostEngine iterates its keys and
// looks each one up in the attribute bag.
type WeightSet map[string]float64
