package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/storyvoice/internal/voice"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// Watcher polls a file and keeps the most recent contents that parse.
// A change is noticed when the file's size or modification time moves and
// its SHA-256 differs from the installed snapshot. Contents that fail to
// parse are logged and the previous value stays current.
type Watcher[T any] struct {
	path     string
	interval time.Duration
	parse    func([]byte) (T, error)
	onChange func(old, new T)

	checking sync.Mutex // serialises checks so onChange sees versions in order

	mu   sync.Mutex
	snap snapshot[T]
	seen fileStamp // last stamp examined, valid or not

	quit     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// snapshot is one successfully parsed version of the file.
type snapshot[T any] struct {
	value T
	raw   []byte
	sum   [sha256.Size]byte
}

// fileStamp is the cheap part of change detection.
type fileStamp struct {
	mod  time.Time
	size int64
}

func stampOf(fi os.FileInfo) fileStamp {
	return fileStamp{mod: fi.ModTime(), size: fi.Size()}
}

func (s fileStamp) same(o fileStamp) bool {
	return s.size == o.size && s.mod.Equal(o.mod)
}

type watcherOptions struct {
	interval time.Duration
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*watcherOptions)

// WithInterval sets the polling interval. Non-positive values keep the
// default of [DefaultPollInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(o *watcherOptions) {
		if d > 0 {
			o.interval = d
		}
	}
}

// NewWatcher loads and parses path, then polls it in the background until
// [Watcher.Stop]. onChange may be nil.
func NewWatcher[T any](path string, parse func([]byte) (T, error), onChange func(old, new T), opts ...WatcherOption) (*Watcher[T], error) {
	o := watcherOptions{interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	snap, err := readSnapshot(path, parse)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}

	w := &Watcher[T]{
		path:     path,
		interval: o.interval,
		parse:    parse,
		onChange: onChange,
		snap:     snap,
		seen:     stampOf(fi),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// NewVoicesWatcher watches a voice configuration JSON array, parsed with
// [voice.Decode].
func NewVoicesWatcher(path string, onChange func(old, new []types.VoiceProfile), opts ...WatcherOption) (*Watcher[[]types.VoiceProfile], error) {
	return NewWatcher(path, voice.Decode, onChange, opts...)
}

// Current returns the value parsed from the installed snapshot.
func (w *Watcher[T]) Current() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap.value
}

// Raw returns the bytes [Watcher.Current] was parsed from.
func (w *Watcher[T]) Raw() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return bytes.Clone(w.snap.raw)
}

// Stop ends polling and waits for an in-progress check to finish. It is
// safe to call more than once.
func (w *Watcher[T]) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.exited
}

func (w *Watcher[T]) loop() {
	defer close(w.exited)

	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.quit:
			return
		case <-t.C:
			if _, err := w.check(false); err != nil {
				slog.Warn("config watcher: reload failed, keeping previous contents", "path", w.path, "err", err)
			}
		}
	}
}

// Reload checks the file immediately, ignoring the stamp shortcut. It
// reports whether a new value was installed; on error the previous value
// stays current.
func (w *Watcher[T]) Reload() (bool, error) {
	return w.check(true)
}

func (w *Watcher[T]) check(force bool) (bool, error) {
	w.checking.Lock()
	defer w.checking.Unlock()

	fi, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}
	stamp := stampOf(fi)

	w.mu.Lock()
	unchanged := stamp.same(w.seen)
	w.seen = stamp
	w.mu.Unlock()
	if unchanged && !force {
		return false, nil
	}

	next, err := readSnapshot(w.path, w.parse)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if next.sum == w.snap.sum {
		w.mu.Unlock()
		return false, nil
	}
	old := w.snap.value
	w.snap = next
	w.mu.Unlock()

	slog.Info("config watcher: file reloaded", "path", w.path, "bytes", len(next.raw))
	if w.onChange != nil {
		w.onChange(old, next.value)
	}
	return true, nil
}

func readSnapshot[T any](path string, parse func([]byte) (T, error)) (snapshot[T], error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return snapshot[T]{}, err
	}
	v, err := parse(raw)
	if err != nil {
		return snapshot[T]{}, err
	}
	return snapshot[T]{value: v, raw: raw, sum: sha256.Sum256(raw)}, nil
}
