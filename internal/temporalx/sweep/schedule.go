package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"

	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type ScheduleOptions struct {
	ID        string
	Cron      string
	TaskQueue string
}

// EnsureSchedule creates the due-sweep schedule, or rewrites its cron spec
// when a schedule with the same id already exists. Overlapping runs are skipped.
func EnsureSchedule(ctx context.Context, tc temporalsdkclient.Client, opts ScheduleOptions, log *logger.Logger) error {
	if tc == nil {
		return fmt.Errorf("sweep schedule: temporal client is not configured")
	}
	opts.Cron = strings.TrimSpace(opts.Cron)
	if opts.Cron == "" || opts.ID == "" {
		return nil
	}
	spec := temporalsdkclient.ScheduleSpec{CronExpressions: []string{opts.Cron}}

	_, err := tc.ScheduleClient().Create(ctx, temporalsdkclient.ScheduleOptions{
		ID:      opts.ID,
		Spec:    spec,
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Action: &temporalsdkclient.ScheduleWorkflowAction{
			ID:        WorkflowIDPrefix,
			Workflow:  WorkflowName,
			TaskQueue: opts.TaskQueue,
		},
	})
	if err == nil {
		if log != nil {
			log.Info("Created due sweep schedule", "schedule_id", opts.ID, "cron", opts.Cron)
		}
		return nil
	}
	if !errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return fmt.Errorf("sweep schedule: create: %w", err)
	}

	handle := tc.ScheduleClient().GetHandle(ctx, opts.ID)
	err = handle.Update(ctx, temporalsdkclient.ScheduleUpdateOptions{
		DoUpdate: func(in temporalsdkclient.ScheduleUpdateInput) (*temporalsdkclient.ScheduleUpdate, error) {
			in.Description.Schedule.Spec = &spec
			return &temporalsdkclient.ScheduleUpdate{Schedule: &in.Description.Schedule}, nil
		},
	})
	if err != nil {
		return fmt.Errorf("sweep schedule: update: %w", err)
	}
	if log != nil {
		log.Info("Updated due sweep schedule", "schedule_id", opts.ID, "cron", opts.Cron)
	}
	return nil
}
