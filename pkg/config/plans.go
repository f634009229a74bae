package config

import (
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering"
)

// ToPlans converts the plan configuration into the runtime plan set
// used by the meter.
func (p *PlansConfig) ToPlans() *metering.Plans {
	plans := &metering.Plans{
		Actions:  make(map[string]metering.ActionLimit, len(p.Actions)),
		Features: make(map[string]metering.FeatureQuota, len(p.Features)),
	}

	for key, action := range p.Actions {
		strategy := metering.StrategyFixedWindow
		if action.Strategy == "sliding_window" {
			strategy = metering.StrategySlidingWindow
		}
		plans.Actions[key] = metering.ActionLimit{
			Limit:    action.Limit,
			Window:   action.Window,
			Strategy: strategy,
		}
	}

	for key, feature := range p.Features {
		plans.Features[key] = metering.FeatureQuota{
			DailyLimit:         feature.DailyLimit,
			Monetary:           feature.Monetary,
			EstimatedCostCents: feature.EstimatedCostCents,
		}
	}

	return plans
}
