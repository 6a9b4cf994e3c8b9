// Package alert provides stock-level severity classification and alert emission.
package alert

import (
	"math"

	"stockpilot/internal/models"
)

// Thresholds holds the tunable constants used by the classifier.
type Thresholds struct {
	// DefaultReorderLevel is applied when a product has no reorder level set.
	DefaultReorderLevel int
	// DefaultDailyConsumption is applied when a product has no consumption history.
	DefaultDailyConsumption float64
	// CriticalDays is the projected days-remaining at or below which a low
	// stock level becomes critical.
	CriticalDays int
}

// DefaultThresholds returns the default classification thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DefaultReorderLevel:     10,
		DefaultDailyConsumption: 0.5,
		CriticalDays:            3,
	}
}

// DaysRemaining estimates whole days of stock left at the given consumption
// rate. Returns models.UnboundedDays when the rate is zero or negative.
func DaysRemaining(quantity int, avgPerDay float64) int {
	if avgPerDay <= 0 {
		return models.UnboundedDays
	}
	days := int(math.Floor(float64(quantity) / avgPerDay))
	if days > models.UnboundedDays {
		return models.UnboundedDays
	}
	return days
}

// Classify maps a stock snapshot to a severity tier. It is a pure function
// of its inputs.
//
// The zero-quantity check runs first and short-circuits every other branch:
// an item can be both at-or-below its reorder level and empty, and
// out-of-stock must win.
func (t Thresholds) Classify(quantity, reorderLevel int, avgPerDay float64) models.Severity {
	if quantity == 0 {
		return models.SeverityOutOfStock
	}
	if quantity > reorderLevel {
		return models.SeverityHealthy
	}
	if DaysRemaining(quantity, avgPerDay) <= t.CriticalDays {
		return models.SeverityCritical
	}
	return models.SeverityLow
}

// Classify classifies using the default thresholds.
func Classify(quantity, reorderLevel int, avgPerDay float64) models.Severity {
	return DefaultThresholds().Classify(quantity, reorderLevel, avgPerDay)
}
