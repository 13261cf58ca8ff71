package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
	"github.com/transitlabs/fasttrips-go/internal/core/ports"
)

// weightTTLSeconds and farePeriodTTLSeconds bound how long a read-through
// entry survives once the underlying schedule is reloaded by the ingestor.
const (
	weightTTLSeconds     = 3600
	farePeriodTTLSeconds = 3600
)

// SupplyCache wraps a ports.SupplyModel with a read-through Valkey cache over
// its two lookup-table calls (Weights, FareTransferRule) — the calls the
// labeling loop repeats most, since every candidate link needs a weight
// lookup and the two tables change far less often than trip/stop data.
type SupplyCache struct {
	cache  *Cache
	supply ports.SupplyModel
}

func NewSupplyCache(cache *Cache, supply ports.SupplyModel) *SupplyCache {
	return &SupplyCache{cache: cache, supply: supply}
}

func (c *SupplyCache) StopTimesForTrip(ctx context.Context, tripID string) ([]domain.SupplyStopTime, error) {
	return c.supply.StopTimesForTrip(ctx, tripID)
}

func (c *SupplyCache) TripsServingStop(ctx context.Context, stopID string, alighting bool, allowedModes []string) ([]domain.SupplyStopTime, error) {
	return c.supply.TripsServingStop(ctx, stopID, alighting, allowedModes)
}

func (c *SupplyCache) TripInfo(ctx context.Context, tripID string) (*domain.TripInfo, error) {
	return c.supply.TripInfo(ctx, tripID)
}

func (c *SupplyCache) AccessLinks(ctx context.Context, taz, demandMode string) ([]domain.AccessEgressLink, error) {
	return c.supply.AccessLinks(ctx, taz, demandMode)
}

func (c *SupplyCache) EgressLinks(ctx context.Context, taz, demandMode string) ([]domain.AccessEgressLink, error) {
	return c.supply.EgressLinks(ctx, taz, demandMode)
}

func (c *SupplyCache) TransfersFromStop(ctx context.Context, stopID string) ([]domain.TransferLink, error) {
	return c.supply.TransfersFromStop(ctx, stopID)
}

func (c *SupplyCache) Weights(ctx context.Context, userClass, demandModeType, demandMode, supplyMode string) (domain.WeightSet, error) {
	key := weightsCacheKey(userClass, demandModeType, demandMode, supplyMode)
	if b, err := c.cache.Get(ctx, key); err == nil && b != nil {
		var ws domain.WeightSet
		if jerr := json.Unmarshal(b, &ws); jerr == nil {
			return ws, nil
		}
	}

	ws, err := c.supply.Weights(ctx, userClass, demandModeType, demandMode, supplyMode)
	if err != nil || ws == nil {
		return ws, err
	}
	if b, jerr := json.Marshal(ws); jerr == nil {
		_ = c.cache.Set(ctx, key, b, weightTTLSeconds)
	}
	return ws, nil
}

func (c *SupplyCache) FareTransferRule(ctx context.Context, from, to string) (*domain.FareTransfer, error) {
	key := fareRuleCacheKey(from, to)
	if b, err := c.cache.Get(ctx, key); err == nil && b != nil {
		var ft domain.FareTransfer
		if jerr := json.Unmarshal(b, &ft); jerr == nil {
			return &ft, nil
		}
	}

	ft, err := c.supply.FareTransferRule(ctx, from, to)
	if err != nil || ft == nil {
		return ft, err
	}
	if b, jerr := json.Marshal(ft); jerr == nil {
		_ = c.cache.Set(ctx, key, b, farePeriodTTLSeconds)
	}
	return ft, nil
}

func weightsCacheKey(userClass, demandModeType, demandMode, supplyMode string) string {
	return fmt.Sprintf("fasttrips:weights:%s:%s:%s:%s", userClass, demandModeType, demandMode, supplyMode)
}

func fareRuleCacheKey(from, to string) string {
	return fmt.Sprintf("fasttrips:fare_transfer:%s:%s", from, to)
}
