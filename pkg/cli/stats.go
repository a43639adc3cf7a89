package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/prism/pkg/compilecache"
)

func newStatsCommand() *Command {
	cmd := &Command{
		Name:        "stats",
		Description: "Show cache metadata for one artifact or all of them",
		Flags:       newFlagSet("stats"),
		Run:         runStats,
	}

	cmd.Flags.String("project", "", "Project directory (defaults to PRISM_PROJECT_DIR)")
	cmd.Flags.String("resource", "", "Resource path; omit to list every artifact")
	cmd.Flags.String("group", "", "Group id")

	return cmd
}

func runStats(args []string) error {
	cmd := newStatsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	resource := cmd.Flags.Lookup("resource").Value.String()
	group := cmd.Flags.Lookup("group").Value.String()

	ctx := context.Background()
	rt, err := loadRuntime(ctx, cmd.Flags.Lookup("project").Value.String())
	if err != nil {
		return err
	}
	defer rt.Close()
	store := rt.Orchestrator.Store()

	if resource != "" {
		if group == "" {
			return fmt.Errorf("group is required with resource")
		}
		meta, err := store.ReadMeta(ctx, compilecache.ArtifactKey{Resource: resource, GroupID: group})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}

	keys, err := store.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tRESOURCE\tHITS\tLAST USED\tCONTENT TYPE")
	for _, key := range keys {
		meta, err := store.ReadMeta(ctx, key)
		if errors.Is(err, compilecache.ErrMetaNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", key.GroupID, key.Resource, meta.HitCount, meta.LastUsed().Format(time.RFC3339), meta.ContentType)
	}
	return w.Flush()
}
