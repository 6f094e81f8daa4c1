package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/gbuffer/engine/core"
)

// ReloadRequest asks the render thread to reload shaders. Compile is set
// when a source file changed and binaries must be produced first.
type ReloadRequest struct {
	Path    string
	Compile bool
}

// ShaderWatcher watches a shader directory tree and turns file changes into
// reload requests. Requests are coalesced: while one is pending, further
// changes only upgrade it to a compile request.
type ShaderWatcher struct {
	fsnotify *fsnotify.Watcher
	debounce time.Duration

	mutex    sync.Mutex
	pending  *ReloadRequest
	isClosed bool
	last     map[string]time.Time

	notify chan struct{}
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewShaderWatcher starts watching dir and all its sub-directories.
func NewShaderWatcher(dir string) (*ShaderWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &ShaderWatcher{
		fsnotify: fsWatch,
		debounce: 100 * time.Millisecond,
		last:     make(map[string]time.Time),
		notify:   make(chan struct{}, 1),
		errors:   make(chan error, 8),
		done:     make(chan struct{}),
	}
	if err := w.watchRecursive(dir); err != nil {
		fsWatch.Close()
		return nil, err
	}
	w.wg.Add(1)
	go w.start()
	core.LogDebug("watching shaders in %s", dir)
	return w, nil
}

// Notify is signaled when a request is pending.
func (w *ShaderWatcher) Notify() <-chan struct{} { return w.notify }

// Errors reports watcher errors. It is never closed before Close.
func (w *ShaderWatcher) Errors() <-chan error { return w.errors }

// Take returns the pending request and clears it.
func (w *ShaderWatcher) Take() (ReloadRequest, bool) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.pending == nil {
		return ReloadRequest{}, false
	}
	r := *w.pending
	w.pending = nil
	return r, true
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *ShaderWatcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return errors.New("shader watcher already closed")
	}
	w.isClosed = true
	w.mutex.Unlock()
	close(w.done)
	w.wg.Wait()
	return nil
}

func (w *ShaderWatcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() && e.Op&fsnotify.Create != 0 {
				w.watchRecursive(e.Name)
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				w.handleFileEvent(e.Name, time.Now())
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", err)
			select {
			case w.errors <- err:
			default:
			}

		case <-w.done:
			w.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds dir and every directory below it to the watch list.
func (w *ShaderWatcher) watchRecursive(dir string) error {
	return filepath.Walk(dir, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return w.fsnotify.Add(walkPath)
		}
		return nil
	})
}

// handleFileEvent records a request for shader files. Bursts of events on
// the same file within the debounce window count once.
func (w *ShaderWatcher) handleFileEvent(path string, now time.Time) {
	kind := classify(path)
	if kind == shaderNone {
		return
	}
	w.mutex.Lock()
	if t, ok := w.last[path]; ok && now.Sub(t) < w.debounce {
		w.mutex.Unlock()
		return
	}
	w.last[path] = now
	if w.pending == nil {
		w.pending = &ReloadRequest{Path: path}
	}
	if kind == shaderSource {
		w.pending.Compile = true
		w.pending.Path = path
	}
	w.mutex.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

type shaderFile int

const (
	shaderNone shaderFile = iota
	shaderSource
	shaderBinary
)

func classify(path string) shaderFile {
	switch filepath.Ext(path) {
	case ".spv":
		return shaderBinary
	case ".vert", ".frag", ".glsl", ".h":
		return shaderSource
	default:
		return shaderNone
	}
}
