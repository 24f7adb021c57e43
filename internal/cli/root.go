// Package cli implements the soulctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Harshitk-cp/soulgarden/internal/app"
	"github.com/Harshitk-cp/soulgarden/internal/config"
	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile string
	verbose bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "soulctl",
	Short:         "Operate the soulgarden memory engine",
	Long:          "Seed agents, inspect working sets, archive stale memories and run reflections against a soulgarden database.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := os.Setenv("SOULGARDEN_ENV", envFile); err != nil {
				return err
			}
		}
		return config.Load()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Env file to load (default: $SOULGARDEN_ENV or .env)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")
}

// ExecuteContext runs the root command and reports a failure on stderr.
func ExecuteContext(ctx context.Context) int {
	if err := RootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openApp connects to the database and wires the engine. The returned
// function releases both.
func openApp(ctx context.Context) (*app.App, func(), error) {
	dsn := config.DatabaseURL()
	if dsn == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	logger := newLogger()

	pool, err := store.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	a, err := app.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		pool.Close()
		_ = logger.Sync()
	}, nil
}

// resolveAgent accepts an agent id or handle.
func resolveAgent(ctx context.Context, a *app.App, ref string) (*domain.Agent, error) {
	agent, err := a.Agents.Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("resolve agent %q: %w", ref, err)
	}
	return agent, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
