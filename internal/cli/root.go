// Package cli implements orderctl, the command-line front end of the order
// service.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/app"
	"github.com/TemirB/shop-orders/internal/config"
	"github.com/TemirB/shop-orders/internal/logger"
)

// Builder assembles the application for one command invocation.
type Builder func(ctx context.Context, verbose bool) (*app.App, error)

// Execute runs orderctl with the environment configuration.
func Execute() {
	if err := NewRootCmd(defaultBuilder).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultBuilder(ctx context.Context, verbose bool) (*app.App, error) {
	cfg, err := config.LoadErr()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	log, err := logger.New(level)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, log)
}

type root struct {
	build   Builder
	verbose bool
}

func NewRootCmd(build Builder) *cobra.Command {
	r := &root{build: build}
	cmd := &cobra.Command{
		Use:           "orderctl",
		Short:         "Fetch and inspect shop orders",
		Long:          `Fetches orders by creation date, backfills the cache and inspects delivery schedules.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "Verbose debug logging to stderr")

	cmd.AddCommand(
		r.fetchCmd(),
		r.detailCmd(),
		r.backfillCmd(),
		r.deliveryCmd(),
		r.cacheCmd(),
		r.requestRefreshCmd(),
	)
	return cmd
}

// run builds the application, hands it to fn and releases it afterwards.
func (r *root) run(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := r.build(ctx, r.verbose)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Warn("close", zap.Error(err))
		}
	}()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
