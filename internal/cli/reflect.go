package cli

import (
	"fmt"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/spf13/cobra"
)

func init() {
	reflectCmd := &cobra.Command{
		Use:   "reflect <agent>",
		Short: "Run a reflection for an agent now",
		Args:  cobra.ExactArgs(1),
		RunE:  runReflect,
	}
	reflectCmd.Flags().String("trigger", string(domain.TriggerExternal), "Trigger kind: temporal, volume, significance, external, social or drift")
	reflectCmd.Flags().String("context", "", "Why the reflection is happening")

	shouldCmd := &cobra.Command{
		Use:   "should-reflect <agent>",
		Short: "Evaluate whether an agent is due for reflection",
		Args:  cobra.ExactArgs(1),
		RunE:  runShouldReflect,
	}

	RootCmd.AddCommand(reflectCmd, shouldCmd)
}

func runReflect(cmd *cobra.Command, args []string) error {
	trigger, _ := cmd.Flags().GetString("trigger")
	triggerContext, _ := cmd.Flags().GetString("context")
	if !domain.ValidReflectionTrigger(trigger) {
		return fmt.Errorf("unknown trigger %q", trigger)
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
	refl, err := a.Reflections.RunReflection(ctx, agent, domain.ReflectionTrigger(trigger), triggerContext)
	if err != nil {
		return err
	}
	if err := a.Agents.Touch(ctx, agent.ID); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), refl)
}

func runShouldReflect(cmd *cobra.Command, args []string) error {
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
	decision, err := a.Triggers.EvaluateReflectionTrigger(ctx, agent)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), decision)
}
