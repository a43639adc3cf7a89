package cli

import (
	"context"
	"fmt"
	"time"
)

func newPruneCommand() *Command {
	cmd := &Command{
		Name:        "prune",
		Description: "Remove cached artifacts that have not been used recently",
		Flags:       newFlagSet("prune"),
		Run:         runPrune,
	}

	cmd.Flags.String("project", "", "Project directory (defaults to PRISM_PROJECT_DIR)")
	cmd.Flags.Duration("max-idle", 0, "Remove artifacts idle for longer than this (defaults to PRISM_PRUNE_MAX_IDLE)")

	return cmd
}

func runPrune(args []string) error {
	cmd := newPruneCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := loadRuntime(ctx, cmd.Flags.Lookup("project").Value.String())
	if err != nil {
		return err
	}
	defer rt.Close()

	maxIdle, err := time.ParseDuration(cmd.Flags.Lookup("max-idle").Value.String())
	if err != nil {
		return fmt.Errorf("invalid max-idle: %w", err)
	}
	if maxIdle == 0 {
		maxIdle = rt.Config.Janitor.PruneMaxIdle
	}

	stats, err := rt.Orchestrator.Prune(ctx, maxIdle)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Scanned %d artifacts, removed %d, skipped %d\n", stats.Scanned, stats.Removed, stats.Skipped)
	return nil
}
