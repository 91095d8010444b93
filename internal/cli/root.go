// Package cli is the operator command line for the reconciliation jobs.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"roombooking/internal/app"
	"roombooking/internal/config"
	"roombooking/internal/modules/reconcile"
)

// JobRunner is the part of the reconcile runner the CLI drives.
type JobRunner interface {
	Run(ctx context.Context, job string, opts reconcile.Options) (*reconcile.Summary, error)
}

// Opener builds a runner and returns a function releasing it.
type Opener func(ctx context.Context) (JobRunner, func(context.Context) error, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DryRun bool
	Tenant string
	Open   Opener
}

func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{Open: open}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run booking reconciliation jobs",
		Long: `Run the scheduled booking jobs once and print the JSON summary.

Examples:
  reconcile auto-cancel-declined --dry-run
  reconcile auto-checkout --tenant mc`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "report what would change without writing")
	cmd.PersistentFlags().StringVar(&opts.Tenant, "tenant", "", "limit the run to one tenant")

	for _, job := range reconcile.Jobs() {
		cmd.AddCommand(newJobCommand(opts, job))
	}
	cmd.AddCommand(newHashSecretCommand())
	return cmd
}

func newJobCommand(opts *RootOptions, job string) *cobra.Command {
	return &cobra.Command{
		Use:   job,
		Short: "Run the " + job + " job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), opts, job, cmd.OutOrStdout())
		},
	}
}

// runJob prints the summary and fails when the run failed or when pending
// side effects could not be drained on close.
func runJob(ctx context.Context, opts *RootOptions, job string, out io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runner, release, err := opts.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if closeErr := release(closeCtx); closeErr != nil {
			slog.Error("app_close_failed", "job", job, "error", closeErr)
			if err == nil {
				err = fmt.Errorf("close: %w", closeErr)
			}
		}
	}()

	sum, runErr := runner.Run(ctx, job, reconcile.Options{DryRun: opts.DryRun, Tenant: opts.Tenant})
	if sum != nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return runErr
}

// OpenApp wires the full service from the environment.
func OpenApp(ctx context.Context) (JobRunner, func(context.Context) error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	app.SetupLogger(cfg)
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a.Runner, a.Close, nil
}
