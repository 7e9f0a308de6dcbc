package sweep

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/services"
)

type Activities struct {
	Log       *logger.Logger
	Scheduler services.Scheduler
}

func (a *Activities) RunDueSweep(ctx context.Context, in Input) (services.SweepResult, error) {
	if a == nil || a.Scheduler == nil {
		return services.SweepResult{}, fmt.Errorf("sweep: activity not configured")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	stopHB := startHeartbeat(ctx, 10*time.Second)
	defer stopHB()

	res, err := a.Scheduler.RunDueSweep(ctx, now, services.TriggerTemporal)
	if err != nil {
		if a.Log != nil {
			a.Log.Warn("due sweep activity failed", "attempt", activity.GetInfo(ctx).Attempt, "error", err)
		}
		return res, err
	}
	return res, nil
}

func startHeartbeat(ctx context.Context, every time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
