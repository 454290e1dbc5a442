// Package main implements timerctl, a small operator CLI for inspecting
// and canceling timers directly against the persistent store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/timerd/internal/config"
	"github.com/vitaliisemenov/timerd/internal/domain"
	"github.com/vitaliisemenov/timerd/internal/repository"
	"github.com/vitaliisemenov/timerd/internal/repository/postgres"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "timerctl",
	Short: "Inspect and manage timerd timers from the command line",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List timers, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFlag, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		repo, closeFn, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		filter := repository.ListFilter{}
		if statusFlag != "" {
			s := domain.Status(statusFlag)
			filter.Status = &s
		}

		timers, total, err := repo.List(cmd.Context(), filter, repository.OrderCreatedAtDesc, limit, 0)
		if err != nil {
			return err
		}
		fmt.Printf("%d total, showing %d\n", total, len(timers))
		for _, t := range timers {
			fmt.Printf("%s  %-10s  execute_at=%s\n", t.ID, t.Status, t.ExecuteAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print the full record for a timer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid timer id: %w", err)
		}

		repo, closeFn, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		timer, err := repo.LoadByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(timer)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending timer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid timer id: %w", err)
		}

		repo, closeFn, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		timer, err := repo.Cancel(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Printf("canceled %s (was due %s)\n", timer.ID, timer.ExecuteAt)
		return nil
	},
}

func connect(ctx context.Context) (*postgres.Repository, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := postgres.Connect(ctx, postgres.PoolConfig{
		DSN:             cfg.GetDatabaseURL(),
		MaxConns:        1,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return postgres.New(pool.Pool, nil, nil), pool.Close, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")
	listCmd.Flags().String("status", "", "filter by status (pending, executing, completed, failed, canceled)")
	listCmd.Flags().Int("limit", 50, "maximum number of timers to print")
	rootCmd.AddCommand(listCmd, getCmd, cancelCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
