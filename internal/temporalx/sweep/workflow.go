package sweep

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/lineflow-backend/internal/services"
)

// Workflow runs one due sweep as a single activity.
func Workflow(ctx workflow.Context) (services.SweepResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})

	var out services.SweepResult
	in := Input{Now: workflow.Now(ctx).UTC()}
	if err := workflow.ExecuteActivity(ctx, ActivityRunDueSweep, in).Get(ctx, &out); err != nil {
		return services.SweepResult{}, err
	}
	workflow.GetLogger(ctx).Info("due sweep workflow finished",
		"due", out.Due, "sent", out.Sent, "completed", out.Completed, "failed", out.Failed)
	return out, nil
}
