package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/prism/pkg/compilecache"
)

func newResolveCommand() *Command {
	cmd := &Command{
		Name:        "resolve",
		Description: "Resolve a resource for one or more groups through the cache",
		Flags:       newFlagSet("resolve"),
		Run:         runResolve,
	}

	cmd.Flags.String("project", "", "Project directory (defaults to PRISM_PROJECT_DIR)")
	cmd.Flags.String("resource", "", "Resource path relative to the project directory")
	cmd.Flags.String("group", "", "Comma-separated group ids")
	cmd.Flags.String("cmd", "", "Compiler command; reads the source on stdin, writes content to stdout")
	cmd.Flags.String("content-type", "application/octet-stream", "Content type of the compiled output")
	cmd.Flags.String("sources", "", "Comma-separated extra source paths the output depends on")
	cmd.Flags.String("etag", "", "Expected content fingerprint")
	cmd.Flags.String("if-modified-since", "", "HTTP date; content modified later is recompiled")
	cmd.Flags.String("out", "", "Directory receiving <group>/<resource> for every result")

	return cmd
}

// compileRequest holds the flags shared by resolve and watch
type compileRequest struct {
	resource    string
	groups      []string
	command     []string
	contentType string
	sources     []string
}

func (r compileRequest) validate() error {
	if r.resource == "" {
		return fmt.Errorf("resource is required")
	}
	if len(r.groups) == 0 {
		return fmt.Errorf("at least one group is required")
	}
	if len(r.command) == 0 {
		return fmt.Errorf("cmd is required")
	}
	return nil
}

// compilers returns a factory of ExecCompilers running in dir
func (r compileRequest) compilers(dir string) compilecache.CompilerFactory {
	return func(group string) (compilecache.Compiler, error) {
		return &ExecCompiler{
			Command:     r.command,
			ContentType: r.contentType,
			Resource:    r.resource,
			Group:       group,
			Sources:     r.sources,
			Dir:         dir,
		}, nil
	}
}

func runResolve(args []string) error {
	cmd := newResolveCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	req := compileRequest{
		resource:    cmd.Flags.Lookup("resource").Value.String(),
		groups:      splitList(cmd.Flags.Lookup("group").Value.String()),
		command:     strings.Fields(cmd.Flags.Lookup("cmd").Value.String()),
		contentType: cmd.Flags.Lookup("content-type").Value.String(),
		sources:     splitList(cmd.Flags.Lookup("sources").Value.String()),
	}
	if err := req.validate(); err != nil {
		return err
	}

	var opts compilecache.ResolveOptions
	opts.Preconditions.ETag = cmd.Flags.Lookup("etag").Value.String()
	if ims := cmd.Flags.Lookup("if-modified-since").Value.String(); ims != "" {
		t, err := http.ParseTime(ims)
		if err != nil {
			return fmt.Errorf("invalid if-modified-since %q: %w", ims, err)
		}
		opts.Preconditions.IfModifiedSince = t
	}
	outDir := cmd.Flags.Lookup("out").Value.String()

	ctx := context.Background()
	rt, err := loadRuntime(ctx, cmd.Flags.Lookup("project").Value.String())
	if err != nil {
		return err
	}
	defer rt.Close()

	results, resolveErr := rt.Orchestrator.ResolveAll(ctx, req.resource, req.groups, req.compilers(rt.Root()), opts)
	for i, result := range results {
		if result == nil {
			continue
		}
		if err := printResult(req.groups[i], req.resource, result); err != nil {
			return err
		}
		if outDir != "" && result.Status != compilecache.StatusError {
			if err := writeOutput(outDir, req.groups[i], req.resource, result.Content); err != nil {
				return err
			}
		}
	}
	return resolveErr
}

// resolveReport is the JSON line printed for every resolve result
type resolveReport struct {
	Group       string `json:"group"`
	Resource    string `json:"resource"`
	Status      string `json:"status"`
	Fingerprint string `json:"fingerprint,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size"`
	LockMs      int64  `json:"lockMs"`
	CompileMs   int64  `json:"compileMs"`
	TotalMs     int64  `json:"totalMs"`
	Error       string `json:"error,omitempty"`
}

func printResult(group, resource string, result *compilecache.Result) error {
	report := resolveReport{
		Group:       group,
		Resource:    resource,
		Status:      string(result.Status),
		Fingerprint: result.Fingerprint,
		ContentType: result.ContentType,
		Size:        len(result.Content),
		LockMs:      result.Timing.Lock.Milliseconds(),
		CompileMs:   result.Timing.Compile.Milliseconds(),
		TotalMs:     result.Timing.Total.Milliseconds(),
	}
	if result.Err != nil {
		report.Error = result.Err.Error()
	}
	return json.NewEncoder(stdout).Encode(report)
}

func writeOutput(dir, group, resource string, content []byte) error {
	p := filepath.Join(dir, group, filepath.FromSlash(resource))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(p, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}
