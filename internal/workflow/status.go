package workflow

import (
	"context"

	"juicenet/internal/logging"
	"juicenet/internal/queue"
	"juicenet/internal/stage"
)

// StatusSummary represents lightweight pipeline diagnostics.
type StatusSummary struct {
	QueueStats  map[queue.Status]int
	StageHealth map[string]stage.Health
}

// Status reports job counts and the readiness of every stage that can
// check itself.
func (c *Coordinator) Status(ctx context.Context) StatusSummary {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		c.logger.Warn("failed to read job stats", logging.Error(err))
	}

	named := map[string]any{
		string(queue.StageParity): c.stages.Parity,
		string(queue.StagePost):   c.stages.Post,
		string(queue.StageVerify): c.stages.Verify,
	}
	health := make(map[string]stage.Health, len(named))
	for name, handler := range named {
		checker, ok := handler.(stage.HealthChecker)
		if !ok {
			continue
		}
		health[name] = checker.HealthCheck(ctx)
	}
	return StatusSummary{QueueStats: stats, StageHealth: health}
}
