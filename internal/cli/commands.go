package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TemirB/shop-orders/internal/app"
	"github.com/TemirB/shop-orders/internal/application/service"
	"github.com/TemirB/shop-orders/internal/domain"
)

var ErrKafkaDisabled = errors.New("kafka is not configured, set KAFKA_BROKERS")

func (r *root) fetchCmd() *cobra.Command {
	var (
		date, selector string
		refresh        bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Retrieve the orders created on a date, splitting capped windows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *app.App) error {
				d := date
				if d == "" {
					d = a.Service.Today()
				}
				agg, st, err := a.Service.RetrieveWithStats(ctx, service.Request{Date: d, Window: selector, Force: refresh})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %d orders from %s in %d calls\n",
					agg.Date, agg.Window, agg.Count, st.Source, st.Calls)
				return printJSON(cmd.OutOrStdout(), agg)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date to fetch (YYYY-MM-DD, default today)")
	cmd.Flags().StringVarP(&selector, "window", "w", "", "Window selector: full, first-half, second-half, morning, business-hours, evening or HH:MM-HH:MM")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the cache")
	return cmd
}

func (r *root) detailCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "detail [date]",
		Short: "List a whole day with a single bulk call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, a *app.App) error {
				agg, err := a.Service.DayDetail(ctx, args[0], refresh)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), agg)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the cache")
	return cmd
}

func (r *root) backfillCmd() *cobra.Command {
	var (
		days     int
		selector string
		refresh  bool
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Fetch recent days one by one, today first; Ctrl-C stops after the current day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *app.App) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				n := days
				if n <= 0 {
					n = a.Config.Batch.Days
				}
				progress := func(d service.DaySummary) {
					status := fmt.Sprintf("%d orders", d.Count)
					switch {
					case d.Error != "":
						status = "failed: " + d.Error
					case d.FromCache:
						status += " (cached)"
					case d.HasMaxLimit:
						status += " (max limit hit)"
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", d.Date, status)
				}
				res, err := a.Service.Backfill(ctx, service.BatchRequest{Days: n, Window: selector, Force: refresh}, progress)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 0, "Number of days to fetch (default BATCH_DAYS)")
	cmd.Flags().StringVarP(&selector, "window", "w", "", "Window selector applied to every day")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the cache")
	return cmd
}

func (r *root) deliveryCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "delivery [date]",
		Short: "Orders due for delivery on a date, grouped by vendor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Service.Deliveries(ctx, args[0], refresh)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the cache")
	return cmd
}

func (r *root) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the order cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Show cache metadata",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return r.run(cmd, func(ctx context.Context, a *app.App) error {
					m, err := a.Service.CacheInfo(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), m)
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cached entry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return r.run(cmd, func(ctx context.Context, a *app.App) error {
					if err := a.Service.ClearCache(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.ErrOrStderr(), "cache cleared")
					return nil
				})
			},
		},
	)
	return cmd
}

func (r *root) requestRefreshCmd() *cobra.Command {
	var date, selector string
	cmd := &cobra.Command{
		Use:   "request-refresh",
		Short: "Ask running servers to re-fetch a date through Kafka",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *app.App) error {
				if a.Producer == nil {
					return ErrKafkaDisabled
				}
				d := date
				if d == "" {
					d = a.Service.Today()
				}
				return a.Producer.RequestRefresh(ctx, domain.RefreshRequest{Date: d, Window: selector})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date to refresh (YYYY-MM-DD, default today)")
	cmd.Flags().StringVarP(&selector, "window", "w", "", "Window selector")
	return cmd
}
