package calls

import (
	"context"
	"fmt"
	"time"

	"dehive/internal/observability/metrics"

	"github.com/adhocore/gronx"
)

func (s *Service) observeLive(n int64) {
	metrics.CallParticipants.WithLabelValues().Set(float64(n))
}

// StartReconciler runs Reconcile on the given cron schedule until the
// returned cancel func is called or ctx ends.
func (s *Service) StartReconciler(ctx context.Context, cronExpr string) (func(), error) {
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid reconcile cron expression: %s", cronExpr)
	}

	ctx2, cancel := context.WithCancel(ctx)
	go s.runScheduler(ctx2, cronExpr)
	s.log.Info("call reconciler started", "cron", cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression and sleeps
// until then.
func (s *Service) runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			s.log.Info("call reconciler stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			s.log.Error("reconciler next tick failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			s.log.Info("call reconciler stopping")
			return
		}

		if err := s.Reconcile(ctx); err != nil {
			s.log.Error("reconcile sweep failed", "error", err)
		}
	}
}
