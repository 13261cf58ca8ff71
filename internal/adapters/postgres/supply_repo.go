package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
)

// SupplyRepo implements ports.SupplyModel over the same trips/stop_times/
// routes/stops tables TripRepo, RouteRepo, and StopRepo already read —
// the GTFS schedule the ingestor loads is the pathfinder's supply, not a
// second copy of it. Only the access/egress/transfer/fare/weight tables
// below are new: the teacher's schema has no concept of any of them.
type SupplyRepo struct {
	db *DB
}

func NewSupplyRepo(db *DB) *SupplyRepo {
	return &SupplyRepo{db: db}
}

// supplyModeForRouteType maps a GTFS route_type onto the handful of supply
// modes the weight tables and demand-mode matching key off. Extend this map,
// not the schema, when a new route_type shows up in ingested data.
func supplyModeForRouteType(routeType int) string {
	switch routeType {
	case 0:
		return "tram"
	case 1:
		return "subway"
	case 2:
		return "rail"
	case 4:
		return "ferry"
	case 6:
		return "cable_car"
	case 7:
		return "funicular"
	default:
		return "local_bus"
	}
}

func (r *SupplyRepo) StopTimesForTrip(ctx context.Context, tripID string) ([]domain.SupplyStopTime, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT t.trip_id, st.stop_sequence, s.stop_id,
		       EXTRACT(EPOCH FROM st.arrival_time) / 60,
		       EXTRACT(EPOCH FROM st.departure_time) / 60
		FROM stop_times st
		JOIN trips t ON t.id = st.trip_id
		JOIN stops s ON s.id = st.stop_id
		WHERE t.trip_id = $1
		ORDER BY st.stop_sequence
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SupplyStopTime
	for rows.Next() {
		var st domain.SupplyStopTime
		if err := rows.Scan(&st.TripID, &st.Seq, &st.StopID, &st.ArriveTime, &st.DepartTime); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *SupplyRepo) TripsServingStop(ctx context.Context, stopID string, alighting bool, allowedModes []string) ([]domain.SupplyStopTime, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT t.trip_id, st.stop_sequence, s.stop_id,
		       EXTRACT(EPOCH FROM st.arrival_time) / 60,
		       EXTRACT(EPOCH FROM st.departure_time) / 60,
		       r.route_type
		FROM stop_times st
		JOIN trips t ON t.id = st.trip_id
		JOIN stops s ON s.id = st.stop_id
		JOIN routes r ON r.id = t.route_id
		WHERE s.stop_id = $1
	`, stopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	modeFilter := make(map[string]bool, len(allowedModes))
	for _, m := range allowedModes {
		modeFilter[m] = true
	}

	var out []domain.SupplyStopTime
	for rows.Next() {
		var st domain.SupplyStopTime
		var routeType int
		if err := rows.Scan(&st.TripID, &st.Seq, &st.StopID, &st.ArriveTime, &st.DepartTime, &routeType); err != nil {
			return nil, err
		}
		if len(modeFilter) > 0 && !modeFilter[supplyModeForRouteType(routeType)] {
			continue
		}
		out = append(out, st)
	}
	_ = alighting // both boarding and alighting rows come from the same table; direction is applied by the caller
	return out, rows.Err()
}

func (r *SupplyRepo) TripInfo(ctx context.Context, tripID string) (*domain.TripInfo, error) {
	ti := &domain.TripInfo{Attributes: domain.AttributeBag{}}
	var tripUUID string
	var routeType int
	var farePeriodID *string
	var farePrice *float64
	var freeTransferCount *int

	err := r.db.Pool.QueryRow(ctx, `
		SELECT t.id, t.trip_id, r.route_id, r.route_type,
		       fp.id, fp.price, fp.free_transfer_count
		FROM trips t
		JOIN routes r ON r.id = t.route_id
		LEFT JOIN trip_fare_periods tfp ON tfp.trip_id = t.id
		LEFT JOIN fare_periods fp ON fp.id = tfp.fare_period_id
		WHERE t.trip_id = $1
	`, tripID).Scan(&tripUUID, &ti.TripID, &ti.RouteID, &routeType, &farePeriodID, &farePrice, &freeTransferCount)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ti.SupplyMode = supplyModeForRouteType(routeType)
	if farePeriodID != nil {
		ti.FarePeriod = &domain.FarePeriod{ID: *farePeriodID, Price: *farePrice, FreeTransferCount: *freeTransferCount}
	}

	attrRows, err := r.db.Pool.Query(ctx, `SELECT name, value FROM trip_attributes WHERE trip_id = $1`, tripUUID)
	if err != nil {
		return nil, err
	}
	defer attrRows.Close()
	for attrRows.Next() {
		var name string
		var value float64
		if err := attrRows.Scan(&name, &value); err != nil {
			return nil, err
		}
		ti.Attributes[name] = value
	}
	return ti, attrRows.Err()
}

func (r *SupplyRepo) AccessLinks(ctx context.Context, taz, demandMode string) ([]domain.AccessEgressLink, error) {
	return r.accessEgressLinks(ctx, taz, demandMode, "access_links")
}

func (r *SupplyRepo) EgressLinks(ctx context.Context, taz, demandMode string) ([]domain.AccessEgressLink, error) {
	return r.accessEgressLinks(ctx, taz, demandMode, "egress_links")
}

// accessEgressLinks reads one of the two TAZ<->stop link tables; stop_id
// here is stops.stop_id (the GTFS text id), the same identifier StopRepo
// and TripRepo expose, not the internal stops.id UUID.
func (r *SupplyRepo) accessEgressLinks(ctx context.Context, taz, demandMode, table string) ([]domain.AccessEgressLink, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT taz, supply_mode, stop_id, start_time, end_time, link_time, link_dist
		FROM `+table+` WHERE taz = $1 AND demand_mode = $2
	`, taz, demandMode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AccessEgressLink
	for rows.Next() {
		l := domain.AccessEgressLink{Attributes: domain.AttributeBag{}}
		if err := rows.Scan(&l.TAZ, &l.SupplyMode, &l.StopID, &l.StartTime, &l.EndTime, &l.LinkTime, &l.LinkDist); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SupplyRepo) TransfersFromStop(ctx context.Context, stopID string) ([]domain.TransferLink, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT from_stop, to_stop, link_time, link_dist
		FROM transfer_links WHERE from_stop = $1
	`, stopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransferLink
	for rows.Next() {
		t := domain.TransferLink{Attributes: domain.AttributeBag{}}
		if err := rows.Scan(&t.FromStop, &t.ToStop, &t.LinkTime, &t.LinkDist); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SupplyRepo) Weights(ctx context.Context, userClass, demandModeType, demandMode, supplyMode string) (domain.WeightSet, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT attribute_name, weight_value
		FROM weight_table
		WHERE user_class = $1 AND demand_mode_type = $2 AND demand_mode = $3 AND supply_mode = $4
	`, userClass, demandModeType, demandMode, supplyMode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ws := make(domain.WeightSet)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		ws[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ws) == 0 {
		return nil, nil
	}
	return ws, nil
}

func (r *SupplyRepo) FareTransferRule(ctx context.Context, from, to string) (*domain.FareTransfer, error) {
	ft := &domain.FareTransfer{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT from_fare_period, to_fare_period, rule, amount
		FROM fare_transfer_rules WHERE from_fare_period = $1 AND to_fare_period = $2
	`, from, to).Scan(&ft.From, &ft.To, &ft.Rule, &ft.Amount)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ft, nil
}
