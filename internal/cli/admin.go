package cli

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/soulgarden/internal/buildconfig"
	"github.com/Harshitk-cp/soulgarden/internal/config"
	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/events"
	"github.com/Harshitk-cp/soulgarden/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Tail engine events from NATS",
		Args:  cobra.NoArgs,
		RunE:  runEvents,
	}
	eventsCmd.Flags().String("subject", "", "NATS subject filter (default: every soulgarden event)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), buildconfig.Get())
			return err
		},
	}

	RootCmd.AddCommand(migrateCmd, eventsCmd, versionCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dsn := config.DatabaseURL()
	if dsn == "" {
		return errors.New("DATABASE_URL is required")
	}
	if err := store.Migrate(cmd.Context(), dsn); err != nil {
		return err
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return err
}

func runEvents(cmd *cobra.Command, args []string) error {
	url := config.NATSURL()
	if url == "" {
		return errors.New("NATS_URL is required")
	}
	subject, _ := cmd.Flags().GetString("subject")

	ctx := cmd.Context()
	logger := newLogger()
	p, err := events.Connect(ctx, url, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	return p.Subscribe(ctx, subject, func(e domain.Event) {
		_ = printJSON(out, e)
	})
}
