package cli

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	wsCmd := &cobra.Command{
		Use:   "working-set <agent>",
		Short: "Show the memories that fit an agent's context budget",
		Args:  cobra.ExactArgs(1),
		RunE:  runWorkingSet,
	}
	wsCmd.Flags().Int("max-tokens", domain.DefaultWorkingMemoryTokens, "Token budget (1000-16000)")

	archiveCmd := &cobra.Command{
		Use:   "archive <agent>",
		Short: "Move stale, unimportant memories to the archive tier",
		Args:  cobra.ExactArgs(1),
		RunE:  runArchive,
	}
	archiveCmd.Flags().Int("older-than-days", domain.DefaultArchiveAfterDays, "Minimum memory age in days")

	searchCmd := &cobra.Command{
		Use:   "search <agent> <query>",
		Short: "Semantic search over an agent's memories",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runSearch,
	}
	searchCmd.Flags().IntP("limit", "l", service.DefaultSearchLimit, "Max results")
	searchCmd.Flags().Float64("threshold", service.DefaultSearchThreshold, "Minimum similarity")
	searchCmd.Flags().String("kind", "", "Filter by memory kind")

	RootCmd.AddCommand(wsCmd, archiveCmd, searchCmd)
}

func runWorkingSet(cmd *cobra.Command, args []string) error {
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	if err := domain.ValidateTokenBudget(maxTokens); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, done, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer done()

	agent, err := resolveAgent(ctx, a, args[0])
	if err != nil {
		return err
	}
	wm, err := a.WorkingSet.BuildWorkingMemory(ctx, agent.ID, maxTokens)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), wm)
}

func runArchive(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("older-than-days")

	ctx := cmd.Context()
	a, done, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer done()

	agent, err := resolveAgent(ctx, a, args[0])
	if err != nil {
		return err
	}
	moved, err := a.Tiers.MigrateStaleMemories(ctx, agent.ID, days)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "archived %d memories for %s\n", moved, agent.Handle)
	return err
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	kind, _ := cmd.Flags().GetString("kind")

	p := service.SearchParams{
		Query:     strings.Join(args[1:], " "),
		Limit:     limit,
		Threshold: &threshold,
	}
	if kind != "" {
		p.Kind = domain.Ptr(domain.MemoryKind(kind))
	}

	ctx := cmd.Context()
	a, done, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer done()

	agent, err := resolveAgent(ctx, a, args[0])
	if err != nil {
		return err
	}
	results, err := a.Memories.SearchMemories(ctx, agent.ID, p)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "[]")
		return err
	}
	return printJSON(cmd.OutOrStdout(), results)
}
