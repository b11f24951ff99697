package vcsworktree

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatbridge/internal/logging"
)

// BranchWatcher watches a single working directory's .git/HEAD for
// out-of-band branch switches (e.g. a human running `git checkout` in the
// same worktree a session is using) and invokes OnChange with the new
// branch. Adapted from the teacher's internal/vcs.Watcher, which published
// directly onto the process-wide event bus; this one calls back instead so
// the session manager can decide what, if anything, to say in-thread.
type BranchWatcher struct {
	fsw     *fsnotify.Watcher
	workDir string
	branch  string
	log     zerolog.Logger

	onChange func(branch string)

	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.RWMutex
	started bool
}

// NewBranchWatcher starts watching workDir. Returns (nil, nil) if workDir
// is not inside a git repository.
func NewBranchWatcher(workDir string, onChange func(branch string)) (*BranchWatcher, error) {
	dir := gitDir(workDir)
	if dir == "" {
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &BranchWatcher{
		fsw:      fsw,
		workDir:  workDir,
		branch:   CurrentBranch(workDir),
		log:      logging.Component("vcsworktree"),
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	return w, nil
}

// Start begins the watch loop in a background goroutine. Safe to call once.
func (w *BranchWatcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *BranchWatcher) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 && strings.Contains(ev.Name, "HEAD") {
				w.checkBranchChange()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("vcsworktree watcher error")
		}
	}
}

func (w *BranchWatcher) checkBranchChange() {
	newBranch := CurrentBranch(w.workDir)

	w.mu.Lock()
	old := w.branch
	changed := newBranch != old && newBranch != ""
	if changed {
		w.branch = newBranch
	}
	w.mu.Unlock()

	if changed {
		w.log.Info().Str("from", old).Str("to", newBranch).Msg("branch changed out of band")
		if w.onChange != nil {
			w.onChange(newBranch)
		}
	}
}

// CurrentBranch returns the last branch this watcher observed.
func (w *BranchWatcher) CurrentBranch() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.branch
}

// Stop halts the watch loop and releases the underlying fsnotify watcher.
func (w *BranchWatcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	if started {
		<-w.doneCh
	}
	return w.fsw.Close()
}
