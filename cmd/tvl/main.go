package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/kelsos/realms-tvl/internal/api"
	"github.com/kelsos/realms-tvl/internal/config"
	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/models"
	"github.com/kelsos/realms-tvl/internal/scheduler"
	"github.com/kelsos/realms-tvl/internal/storage"
	"github.com/kelsos/realms-tvl/internal/tui"
	"github.com/kelsos/realms-tvl/internal/utils"
)

func main() {
	utils.LoadEnvironment()
	logger.Init()
	defer logger.Close()

	cfg := config.NewConfig()
	cfg.LoadFromEnvironment()

	if err := newRootCommand(cfg).Execute(); err != nil {
		logger.Fatal("Failed to execute command: %v", err)
	}
}

func newRootCommand(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tvl",
		Short: "Compute the total value locked in Solana governance treasuries",
		Long: `tvl walks spl-governance programs down to their native treasuries, prices
every holding and stores organization and fleet totals in PostgreSQL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	flags.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for the shared run lock (optional)")
	flags.StringVar(&cfg.RPCURL, "rpc-url", cfg.RPCURL, "Solana JSON-RPC endpoint")
	flags.StringVar(&cfg.PriceURL, "price-url", cfg.PriceURL, "Price oracle endpoint")
	flags.StringVar(&cfg.OrganizationsFile, "organizations-file", cfg.OrganizationsFile, "YAML file listing the governance programs to track")
	flags.DurationVar(&cfg.CallInterval, "call-interval", cfg.CallInterval, "Minimum spacing between upstream calls")
	flags.DurationVar(&cfg.OrgInterval, "org-interval", cfg.OrgInterval, "Pause between organizations")
	flags.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Treasuries valued per batch")
	flags.IntVarP(&cfg.MaxRetries, "max-retries", "r", cfg.MaxRetries, "Retries after a rate-limited call")
	flags.DurationVarP(&cfg.RetryDelay, "retry-delay", "d", cfg.RetryDelay, "First retry delay, doubled on each retry")
	flags.DurationVar(&cfg.OrgMaxAge, "org-max-age", cfg.OrgMaxAge, "Recompute stored organization totals older than this (0 = never)")

	rootCmd.AddCommand(
		newServeCommand(cfg),
		newRunCommand(cfg),
		newOrgCommand(cfg),
		newLatestCommand(cfg),
		newMigrateCommand(cfg),
	)
	return rootCmd
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled valuations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := scheduler.New()
			if err := sched.Add("fleet valuation", cfg.Schedule, func(ctx context.Context) error {
				_, err := a.service.RunFleet(ctx)
				return err
			}); err != nil {
				return err
			}
			if err := sched.Add("organization refresh", cfg.OrgSchedule, a.service.RefreshOrganizations); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			srv := api.NewServer(cfg.HTTPAddr, api.NewRouter(a.service, a.store))
			return api.Serve(ctx, srv)
		},
	}
	cmd.Flags().StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	cmd.Flags().StringVar(&cfg.Schedule, "schedule", cfg.Schedule, "Cron schedule of the fleet valuation")
	cmd.Flags().StringVar(&cfg.OrgSchedule, "org-schedule", cfg.OrgSchedule, "Cron schedule of the per-organization refresh (empty = off)")
	return cmd
}

func newRunCommand(cfg *config.Config) *cobra.Command {
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Value the whole fleet once and store the total",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			if !useTUI {
				a, err := newApp(ctx, cfg, nil)
				if err != nil {
					return err
				}
				defer a.Close()

				v, err := a.service.RunFleet(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Total TVL: $%s\n", v.TotalValueUSD.StringFixed(2))
				return nil
			}

			if err := logger.InitFileOnly(); err != nil {
				return fmt.Errorf("failed to initialize file logging: %w", err)
			}

			roots, err := models.LoadOrganizations(cfg.OrganizationsFile)
			if err != nil {
				return err
			}
			monitor := tui.NewRunMonitor(roots)

			a, err := newApp(ctx, cfg, monitor)
			if err != nil {
				return err
			}
			defer a.Close()

			total, err := monitor.Run(ctx, func(ctx context.Context) (decimal.Decimal, error) {
				v, err := a.service.RunFleet(ctx)
				return v.TotalValueUSD, err
			})
			if err != nil {
				return err
			}
			fmt.Printf("Total TVL: $%s\n", total.StringFixed(2))
			return nil
		},
	}
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Show a terminal monitor while running")
	return cmd
}

func newOrgCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "org <program-id>",
		Short: "Value a single organization, reusing its stored total if any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.service.TriggerOrganization(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: $%s (%s)\n", v.OrganizationID, v.TotalValueUSD.StringFixed(2), v.ComputedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newLatestCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "latest [program-id]",
		Short: "Print the latest stored fleet or organization total",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			db, store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if len(args) == 1 {
				v, err := store.LatestOrganization(ctx, args[0])
				if errors.Is(err, storage.ErrNotFound) {
					fmt.Println("TVL data not available")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("%s: $%s (%s)\n", v.OrganizationID, v.TotalValueUSD.StringFixed(2), v.ComputedAt.Format("2006-01-02 15:04:05"))
				return nil
			}

			v, err := store.LatestFleet(ctx)
			if errors.Is(err, storage.ErrNotFound) {
				fmt.Println("TVL data not available")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Total TVL: $%s (%s)\n", v.TotalValueUSD.StringFixed(2), v.ComputedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			db, _, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			return storage.Migrate(db.DB)
		},
	}
}
