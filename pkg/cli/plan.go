package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/platinummonkey/prism/pkg/config"
	"github.com/platinummonkey/prism/pkg/groupmap"
)

func newPlanCommand() *Command {
	cmd := &Command{
		Name:        "plan",
		Description: "Plan compile groups from a planner config file",
		Flags:       newFlagSet("plan"),
		Run:         runPlan,
	}

	cmd.Flags.String("config", "", "Planner config file (YAML)")
	cmd.Flags.String("runtime", "", "Comma-separated runtimes (name@version) to resolve to a group")

	return cmd
}

func runPlan(args []string) error {
	cmd := newPlanCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	path := cmd.Flags.Lookup("config").Value.String()
	runtimes := splitList(cmd.Flags.Lookup("runtime").Value.String())
	if path == "" {
		return fmt.Errorf("config is required")
	}

	plannerConfig, err := groupmap.LoadPlannerConfig(path)
	if err != nil {
		return err
	}
	groups, err := groupmap.Plan(plannerConfig)
	if err != nil {
		return fmt.Errorf("failed to plan groups: %w", err)
	}

	data, err := json.MarshalIndent(groups, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode group map: %w", err)
	}
	fmt.Fprintln(stdout, string(data))

	if len(runtimes) == 0 {
		return nil
	}
	resolver, err := groupmap.NewResolver(groups, config.DefaultResolverCacheSize)
	if err != nil {
		return err
	}
	for _, rt := range runtimes {
		name, version, ok := strings.Cut(rt, "@")
		if !ok || name == "" || version == "" {
			return fmt.Errorf("invalid runtime %q (want name@version)", rt)
		}
		target := groupmap.RuntimeTarget{Name: name, Version: version}
		id, err := resolver.Resolve(target)
		if err != nil {
			fmt.Fprintf(stdout, "%s -> (none): %v\n", target, err)
			continue
		}
		fmt.Fprintf(stdout, "%s -> %s\n", target, id)
	}
	return nil
}
