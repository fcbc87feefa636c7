// Package watcher runs an initial indexing pass and then keeps the index
// current by watching source_root for Markdown changes: a single-slot
// dirty signal coalesces bursts of fsnotify events, and a debounce timer
// triggers one further indexing pass once the tree goes quiet.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/memexmcp/memex/internal/index"
)

// DefaultDebounce is the quiescence window between the last observed change
// and the next indexing pass.
const DefaultDebounce = 2 * time.Second

// Service watches SourceRoot and drives Pipeline runs on change.
type Service struct {
	SourceRoot string
	Pipeline   *index.Pipeline
	Debounce   time.Duration
}

// New builds a Service with the default debounce window.
func New(sourceRoot string, pipeline *index.Pipeline) *Service {
	return &Service{SourceRoot: sourceRoot, Pipeline: pipeline, Debounce: DefaultDebounce}
}

// Run performs the startup indexing pass, then watches until ctx is
// cancelled. Indexing errors are logged, never returned, so a transient
// failure doesn't tear down the watch loop; only setup failures (building
// the fsnotify watcher, walking the tree) are returned to the caller.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.Pipeline.Run(ctx, false); err != nil {
		slog.Error("startup indexing pass failed", slog.String("error", err.Error()))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := addRecursive(fsw, s.SourceRoot); err != nil {
		return err
	}

	debounce := s.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	dirty := make(chan struct{}, 1)
	go watchEvents(ctx, fsw, dirty)

	return s.runStateMachine(ctx, dirty, debounce)
}

// runStateMachine implements Idle -> Dirty -> Rebuilding -> Idle. Idle is the
// outer select; Dirty is the inner debounce loop, restarted on every new
// signal; Rebuilding is one Pipeline.Run call.
func (s *Service) runStateMachine(ctx context.Context, dirty <-chan struct{}, debounce time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-dirty:
			if !s.waitForQuiescence(ctx, dirty, debounce) {
				return nil
			}
			if _, err := s.Pipeline.Run(ctx, false); err != nil {
				slog.Error("indexing pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// waitForQuiescence blocks until debounce elapses with no new dirty signal.
// Returns false if ctx was cancelled first.
func (s *Service) waitForQuiescence(ctx context.Context, dirty <-chan struct{}, debounce time.Duration) bool {
	timer := time.NewTimer(debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-dirty:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
		case <-timer.C:
			return true
		}
	}
}

// watchEvents drains fsnotify events, filters to Markdown files, grows the
// watch set on new directories, and coalesces everything relevant into a
// single-slot dirty signal.
func watchEvents(ctx context.Context, fsw *fsnotify.Watcher, dirty chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addRecursive(fsw, ev.Name); err != nil {
						slog.Warn("failed to watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
					}
					continue
				}
			}
			if !isRelevant(ev) {
				continue
			}
			signalDirty(dirty)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// isRelevant restricts the event stream to create/modify/delete/rename of
// Markdown files; chmod-only events and non-.md files are ignored.
func isRelevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return strings.EqualFold(filepath.Ext(ev.Name), ".md")
}

func signalDirty(dirty chan<- struct{}) {
	select {
	case dirty <- struct{}{}:
	default:
	}
}

// addRecursive adds root and every subdirectory to fsw, skipping .git.
func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
