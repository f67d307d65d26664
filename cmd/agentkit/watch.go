package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/logger"
)

// watchEvent is a change below the directory of an artifact kind
type watchEvent struct {
	Kind artifact.Kind
	Path string
	Op   fsnotify.Op
	Time time.Time
}

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the catalogs in sync with the artifact directories",
		Long: `Watch the skill, command and agent directories of every scope and sync the
matching catalog whenever files change. Bursts of changes are debounced into
a single sync per kind.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds, err := kindsFlag(cmd)
			if err != nil {
				return err
			}
			debounce, _ := cmd.Flags().GetDuration("debounce")
			if debounce < 0 {
				return errors.Errorf("debounce cannot be negative: %s", debounce)
			}
			return a.watch(cmd.Context(), kinds, debounce)
		},
	}
	addKindFlag(cmd)
	cmd.Flags().Duration("debounce", 500*time.Millisecond, "Quiet period before a change triggers a sync")
	return cmd
}

// watchRoots maps the existing kind directories to their kind
func (a *app) watchRoots(kinds []artifact.Kind) map[string]artifact.Kind {
	roots := map[string]artifact.Kind{}
	for _, kind := range kinds {
		for _, scope := range artifact.Scopes {
			dir := a.layout.KindDir(kind, scope)
			if dir == "" {
				continue
			}
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				roots[filepath.Clean(dir)] = kind
			}
		}
	}
	return roots
}

// kindForPath returns the kind whose root contains path
func kindForPath(roots map[string]artifact.Kind, path string) (artifact.Kind, bool) {
	best := ""
	for root := range roots {
		if (path == root || strings.HasPrefix(path, root+string(os.PathSeparator))) && len(root) > len(best) {
			best = root
		}
	}
	if best == "" {
		return "", false
	}
	return roots[best], true
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func (a *app) watch(ctx context.Context, kinds []artifact.Kind, delay time.Duration) error {
	roots := a.watchRoots(kinds)
	if len(roots) == 0 {
		return errors.New("no artifact directories to watch, create an artifact first")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	for root := range roots {
		if err := addTree(watcher, root); err != nil {
			return errors.Wrapf(err, "failed to watch %s", root)
		}
		logger.G(ctx).WithField("directory", root).Debug("watching directory")
	}

	events := make(chan watchEvent)
	debounced := make(chan watchEvent)
	go debounceEvents(ctx, events, debounced, delay)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				kind, ok := kindForPath(roots, event.Name)
				if !ok || event.Op == fsnotify.Chmod {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := addTree(watcher, event.Name); err != nil {
							logger.G(ctx).WithError(err).WithField("directory", event.Name).Warn("failed to watch new directory")
						}
					}
				}
				select {
				case events <- watchEvent{Kind: kind, Path: event.Name, Op: event.Op, Time: time.Now()}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.G(ctx).WithError(err).Error("error watching files")
			case <-ctx.Done():
				return
			}
		}
	}()

	a.out.Info("Watching %d directories... Press Ctrl+C to stop", len(roots))
	for {
		select {
		case event := <-debounced:
			logger.G(ctx).WithField("kind", event.Kind).WithField("file", event.Path).Debug("change detected")
			result, err := a.builder(event.Kind).Sync(ctx)
			if err != nil {
				a.out.Error(err, "Failed to sync "+string(event.Kind)+" catalog")
				continue
			}
			if result.Changed() {
				printSyncResult(a, event.Kind, result)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// debounceEvents forwards the last event of each kind once no further event
// of that kind arrived for delay
func debounceEvents(ctx context.Context, input <-chan watchEvent, output chan<- watchEvent, delay time.Duration) {
	d := newDebouncer(ctx, output, delay)
	defer d.stopAll()

	for {
		select {
		case event, ok := <-input:
			if !ok {
				return
			}
			d.add(event)
		case <-ctx.Done():
			return
		}
	}
}

// debouncer holds one pending timer per kind
type debouncer struct {
	ctx     context.Context
	output  chan<- watchEvent
	delay   time.Duration
	mu      sync.Mutex
	pending map[artifact.Kind]*time.Timer
}

func newDebouncer(ctx context.Context, output chan<- watchEvent, delay time.Duration) *debouncer {
	return &debouncer{
		ctx:     ctx,
		output:  output,
		delay:   delay,
		pending: make(map[artifact.Kind]*time.Timer),
	}
}

// add restarts the quiet period of event's kind
func (d *debouncer) add(event watchEvent) *time.Timer {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.pending[event.Kind]; exists {
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d.delay, func() {
		if !d.expire(event.Kind, timer) {
			return
		}
		select {
		case d.output <- event:
		case <-d.ctx.Done():
		}
	})
	d.pending[event.Kind] = timer
	return timer
}

// expire drops timer from the pending set. It reports false when a newer
// event replaced timer, whose callback then has nothing to forward.
func (d *debouncer) expire(kind artifact.Kind, timer *time.Timer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending[kind] != timer {
		return false
	}
	delete(d.pending, kind)
	return true
}

func (d *debouncer) stopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for kind, timer := range d.pending {
		timer.Stop()
		delete(d.pending, kind)
	}
}
