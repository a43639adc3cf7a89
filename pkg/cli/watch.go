package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/prism/pkg/async"
	"github.com/platinummonkey/prism/pkg/compilecache"
	"github.com/platinummonkey/prism/pkg/errdefs"
	"github.com/platinummonkey/prism/pkg/observability"
)

func newWatchCommand() *Command {
	cmd := &Command{
		Name:        "watch",
		Description: "Re-resolve a resource whenever one of its sources changes",
		Flags:       newFlagSet("watch"),
		Run:         runWatch,
	}

	cmd.Flags.String("project", "", "Project directory (defaults to PRISM_PROJECT_DIR)")
	cmd.Flags.String("resource", "", "Resource path relative to the project directory")
	cmd.Flags.String("group", "", "Comma-separated group ids")
	cmd.Flags.String("cmd", "", "Compiler command; reads the source on stdin, writes content to stdout")
	cmd.Flags.String("content-type", "application/octet-stream", "Content type of the compiled output")
	cmd.Flags.String("sources", "", "Comma-separated extra source paths the output depends on")
	cmd.Flags.Duration("debounce", 200*time.Millisecond, "Quiet period before re-resolving")

	return cmd
}

func runWatch(args []string) error {
	cmd := newWatchCommand()
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
	delay, err := time.ParseDuration(cmd.Flags.Lookup("debounce").Value.String())
	if err != nil {
		return fmt.Errorf("invalid debounce: %w", err)
	}

	ctx, stop := observability.ExitOnSignal(context.Background())
	defer stop()

	rt, err := loadRuntime(ctx, cmd.Flags.Lookup("project").Value.String())
	if err != nil {
		return err
	}
	defer rt.Close()

	err = watch(ctx, rt, req.resource, req.groups, req.compilers(rt.Root()), delay)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watcher tracks the directories holding the sources of every watched
// artifact
type watcher struct {
	rt        *Runtime
	resource  string
	groups    []string
	compilers compilecache.CompilerFactory
	fs        *fsnotify.Watcher

	mu      sync.Mutex
	sources map[string]bool
	dirs    map[string]bool
}

// watch resolves resource for every group, then again after each change to
// one of the recorded sources, until ctx is done
func watch(ctx context.Context, rt *Runtime, resource string, groups []string, compilers compilecache.CompilerFactory, delay time.Duration) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	w := &watcher{
		rt:        rt,
		resource:  resource,
		groups:    groups,
		compilers: compilers,
		fs:        fsw,
		sources:   make(map[string]bool),
		dirs:      make(map[string]bool),
	}
	if err := w.resolve(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	debouncer := async.NewDebouncer(ctx, rt.Logger, delay, "re-resolve", w.resolve)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		debouncer.Run()
	}()
	defer func() { <-stopped }()
	defer cancel()

	rt.Logger.WithFields(map[string]interface{}{
		"resource": resource,
		"groups":   groups,
	}).Info("Watching for changes")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.tracks(event.Name) {
				rt.Logger.WithField("file", event.Name).Debug("Source changed")
				debouncer.Trigger()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			rt.Logger.WithError(err).Error("Watcher error")
		}
	}
}

// resolve runs one resolution round and refreshes the watched set from the
// recorded sources
func (w *watcher) resolve(ctx context.Context) error {
	results, err := w.rt.Orchestrator.ResolveAll(ctx, w.resource, w.groups, w.compilers, compilecache.ResolveOptions{})
	for i, result := range results {
		if result == nil {
			continue
		}
		if perr := printResult(w.groups[i], w.resource, result); perr != nil {
			return perr
		}
	}
	// parse errors are already reported per result
	if err != nil && !errors.Is(err, errdefs.ErrParse) {
		w.rt.Logger.WithError(err).Warn("Resolve failed")
	}

	keys := []string{w.resource}
	store := w.rt.Orchestrator.Store()
	for _, group := range w.groups {
		key := compilecache.ArtifactKey{Resource: w.resource, GroupID: group}
		meta, err := store.ReadMeta(ctx, key)
		if err != nil {
			continue
		}
		sources, err := store.SourceKeys(key, meta)
		if err != nil {
			continue
		}
		keys = append(keys, sources...)
	}
	return w.track(keys)
}

func (w *watcher) track(keys []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, key := range keys {
		p := w.rt.Path(key)
		w.sources[p] = true
		dir := filepath.Dir(p)
		if w.dirs[dir] {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	return nil
}

func (w *watcher) tracks(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sources[filepath.Clean(name)]
}
