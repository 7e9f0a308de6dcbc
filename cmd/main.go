package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/lineflow-backend/internal/app"
	"github.com/yungbote/lineflow-backend/internal/pkg/authtoken"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/services"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lineflow",
		Short:         "LINE story and survey bot backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newSweepCommand())
	cmd.AddCommand(newSyncFollowersCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newTokenCommand())
	return cmd
}

// withApp builds the full application, runs fn, and tears it down.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	log, err := app.NewLogger()
	if err != nil {
		return err
	}
	a, err := app.New(log)
	if err != nil {
		log.Sync()
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook and internal API, and run the due-sweep scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				if err := a.Start(); err != nil {
					return err
				}
				errc := make(chan error, 1)
				go func() { errc <- a.Run() }()

				select {
				case err := <-errc:
					return err
				case <-ctx.Done():
					a.Log.Info("Shutting down...")
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
					defer cancel()
					return a.Shutdown(shutdownCtx)
				}
			})
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one due sweep and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				res, err := a.Services.Scheduler.RunDueSweep(ctx, time.Now().UTC(), services.TriggerManual)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func newSyncFollowersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-followers",
		Short: "Reconcile customers with the channel's follower list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				res, err := a.Services.FollowerSync.Run(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			pg, err := app.OpenDatabase(log, app.LoadConfig(log))
			if err != nil {
				return err
			}
			return pg.Close()
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the internal API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig(logger.NewNop())
			tok, err := authtoken.Issue(cfg.InternalAPISecret, subject, ttl, time.Now())
			if err != nil {
				return fmt.Errorf("INTERNAL_API_SECRET must be set: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "ops", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
