package pipeline

import (
	"context"
	"time"

	"github.com/heyjunin/vodforge/pkg/errors"
)

// DefaultBackoff is the wait schedule applied between attempts of a step
// that failed transiently. Three retries, then the failure stands.
var DefaultBackoff = []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second}

// withRetry runs fn, retrying after each transient failure until the
// backoff schedule is exhausted. Fatal errors return immediately; a job
// deadline hit while waiting reclassifies as a timeout.
func (o *Orchestrator) withRetry(ctx context.Context, assetID, step string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Retryable(err) || attempt >= len(o.backoff) {
			return err
		}
		delay := o.backoff[attempt]
		o.logger.Warn("Step failed, retrying", "pipeline", map[string]interface{}{
			"asset_id": assetID,
			"step":     step,
			"attempt":  attempt + 1,
			"retry_in": delay.String(),
			"error":    err.Error(),
		})
		encodeRetries.Inc()
		select {
		case <-ctx.Done():
			return errors.Wrap(err, errors.TimeoutError, "Job deadline reached while waiting to retry", errors.ErrJobTimeout)
		case <-time.After(delay):
		}
	}
}
