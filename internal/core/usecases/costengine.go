package usecases

import (
	"log/slog"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
)

// TallyLinkCost is CostEngine (C6): a pure dot product of named weights
// against an attribute bag. A weight with no matching attribute is a
// DataWarning (§7) — logged, treated as 0, never fatal.
func TallyLinkCost(supplyMode string, weights domain.WeightSet, attributes domain.AttributeBag) float64 {
	var cost float64
	for name, weight := range weights {
		value, ok := attributes[name]
		if !ok {
			slog.Warn("pathfinder: missing attribute for weight",
				"supply_mode", supplyMode, "attribute", name)
			value = 0
		}
		cost += weight * value
	}
	return cost
}
