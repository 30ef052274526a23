// Package watcher turns subscription-file edits into index mutations.
//
// The host application maintains a JSON subscription list. When a feed
// disappears from it, every indexed item of that feed must go too; the
// watcher diffs the file on change and enqueues the whole-feed deletes.
package watcher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/feedtools/feedindex/internal/feed"
)

// FeedDeleter is the slice of the gateway the watcher needs.
type FeedDeleter interface {
	DeleteFeed(term feed.Term)
}

// Subscription is one entry of the subscription file.
type Subscription struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// subscriptionFile is the on-disk shape of the feed list.
type subscriptionFile struct {
	Feeds []Subscription `json:"feeds"`
}

// FeedList watches the subscription file and enqueues DeleteFeed for
// feeds that vanish from it. Rapid rewrites (editors, sync tools) are
// debounced before reloading.
type FeedList struct {
	path     string
	debounce time.Duration
	gateway  FeedDeleter

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	known   map[string]struct{}
	timer   *time.Timer
	stopped bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewFeedList creates a watcher over the subscription file at path.
// The file's current content seeds the known set; a missing file is an
// empty subscription list.
func NewFeedList(path string, debounce time.Duration, gateway FeedDeleter) (*FeedList, error) {
	known, err := loadSubscriptions(path)
	if err != nil {
		return nil, err
	}

	return &FeedList{
		path:     path,
		debounce: debounce,
		gateway:  gateway,
		known:    known,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. The parent directory is watched rather than
// the file itself so atomic replace (write temp, rename) is seen.
func (fl *FeedList) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(fl.path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(fl.path), err)
	}

	fl.fsw = fsw
	go fl.loop()
	return nil
}

// Stop stops watching. Safe to call multiple times.
func (fl *FeedList) Stop() {
	fl.mu.Lock()
	if fl.stopped {
		fl.mu.Unlock()
		return
	}
	fl.stopped = true
	if fl.timer != nil {
		fl.timer.Stop()
	}
	fl.mu.Unlock()

	close(fl.stopCh)
	if fl.fsw != nil {
		_ = fl.fsw.Close()
		<-fl.doneCh
	}
}

// loop consumes fsnotify events until stopped.
func (fl *FeedList) loop() {
	defer close(fl.doneCh)

	for {
		select {
		case <-fl.stopCh:
			return

		case event, ok := <-fl.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(fl.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			fl.scheduleReload()

		case err, ok := <-fl.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("feed list watch error", slog.String("error", err.Error()))
		}
	}
}

// scheduleReload (re)arms the debounce timer.
func (fl *FeedList) scheduleReload() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.stopped {
		return
	}
	if fl.timer != nil {
		fl.timer.Stop()
	}
	fl.timer = time.AfterFunc(fl.debounce, fl.reload)
}

// reload diffs the subscription file against the known set and deletes
// removed feeds from the index. Added feeds need no index action; their
// items arrive through the refresh pipeline.
func (fl *FeedList) reload() {
	current, err := loadSubscriptions(fl.path)
	if err != nil {
		slog.Warn("feed list reload failed",
			slog.String("path", fl.path),
			slog.String("error", err.Error()))
		return
	}

	fl.mu.Lock()
	if fl.stopped {
		fl.mu.Unlock()
		return
	}
	var removed []string
	for url := range fl.known {
		if _, ok := current[url]; !ok {
			removed = append(removed, url)
		}
	}
	fl.known = current
	fl.mu.Unlock()

	for _, url := range removed {
		slog.Info("feed removed from subscriptions, deleting from index",
			slog.String("feed", url))
		fl.gateway.DeleteFeed(feed.FeedTerm(url))
	}
}

// loadSubscriptions reads the subscription file into a URL set.
func loadSubscriptions(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feed list: %w", err)
	}

	var f subscriptionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse feed list %s: %w", path, err)
	}

	set := make(map[string]struct{}, len(f.Feeds))
	for _, s := range f.Feeds {
		if s.URL != "" {
			set[s.URL] = struct{}{}
		}
	}
	return set, nil
}
