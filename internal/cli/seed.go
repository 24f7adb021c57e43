package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/service"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout accepted by `soulctl seed`.
type SeedFile struct {
	Agents []SeedAgent `yaml:"agents"`
}

type SeedAgent struct {
	service.CreateAgentInput `yaml:",inline"`
	Memories                 []service.CreateMemoryInput `yaml:"memories"`
}

func parseSeed(data []byte) (*SeedFile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, a := range f.Agents {
		if a.Handle == "" {
			return nil, fmt.Errorf("agent %d: handle is required", i)
		}
		for j, m := range a.Memories {
			if m.Content == "" {
				return nil, fmt.Errorf("agent %s memory %d: content is required", a.Handle, j)
			}
		}
	}
	return &f, nil
}

type seedResult struct {
	Handle   string `json:"handle"`
	AgentID  string `json:"agent_id"`
	Created  bool   `json:"created"`
	Memories int    `json:"memories"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Create agents and memories from a YAML file",
		Long:  "Agents whose handle already exists are reused; their listed memories are added.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeed,
	}
	RootCmd.AddCommand(cmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	seed, err := parseSeed(data)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, done, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer done()

	var out []seedResult
	for _, sa := range seed.Agents {
		res := seedResult{Handle: sa.Handle, Created: true}
		agent, err := a.Agents.Create(ctx, sa.CreateAgentInput)
		if errors.Is(err, domain.ErrConflict) {
			res.Created = false
			agent, err = a.Agents.GetByHandle(ctx, sa.Handle)
		}
		if err != nil {
			return fmt.Errorf("seed agent %s: %w", sa.Handle, err)
		}
		res.AgentID = agent.ID.String()

		for _, m := range sa.Memories {
			m.AgentID = agent.ID
			if _, err := a.Memories.Create(ctx, m); err != nil {
				return fmt.Errorf("seed memory for %s: %w", sa.Handle, err)
			}
			res.Memories++
		}
		out = append(out, res)
	}
	return printJSON(cmd.OutOrStdout(), out)
}
