package alert

import (
	"github.com/rs/zerolog"

	"stockpilot/internal/models"
)

// Publisher is the outbound side of the broadcast hub.
type Publisher interface {
	Publish(event models.AlertEvent)
}

// Emitter evaluates product snapshots after inventory mutations and publishes
// alert events for non-healthy tiers.
//
// Alerts are advisory: a publish with no connected subscribers is dropped by
// the hub, not queued. The audit trail is a separate collaborator.
type Emitter struct {
	hub        Publisher
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewEmitter creates an emitter publishing to hub.
func NewEmitter(hub Publisher, thresholds Thresholds, logger zerolog.Logger) *Emitter {
	return &Emitter{
		hub:        hub,
		thresholds: thresholds,
		logger:     logger,
	}
}

// EvaluateAndEmit classifies the product's current stock level and, when the
// tier is not healthy, publishes exactly one alert event. It must be called
// synchronously after any operation that changes the product's quantity.
//
// Calls are not deduplicated: evaluating twice with unchanged quantity
// publishes two equivalent events. Deduplication is a client-side concern.
func (e *Emitter) EvaluateAndEmit(p models.Product) models.Severity {
	reorderLevel := p.ReorderLevel
	if reorderLevel <= 0 {
		reorderLevel = e.thresholds.DefaultReorderLevel
	}
	avgPerDay := p.AvgDailyConsumption
	if avgPerDay <= 0 {
		avgPerDay = e.thresholds.DefaultDailyConsumption
	}

	severity := e.thresholds.Classify(p.Quantity, reorderLevel, avgPerDay)
	if severity == models.SeverityHealthy {
		return severity
	}

	event := models.AlertEvent{
		Kind:          severity,
		ProductID:     p.ID,
		ProductName:   p.Name,
		Quantity:      p.Quantity,
		ReorderLevel:  reorderLevel,
		DaysRemaining: DaysRemaining(p.Quantity, avgPerDay),
	}
	e.hub.Publish(event)

	e.logger.Info().
		Str("event", "alert").
		Str("severity", severity.String()).
		Int64("product_id", p.ID).
		Str("product", p.Name).
		Int("quantity", p.Quantity).
		Int("reorder_level", reorderLevel).
		Msg("Stock alert emitted")

	return severity
}
