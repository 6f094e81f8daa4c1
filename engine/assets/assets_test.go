package assets

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/core"
)

func writeWords(t *testing.T, path string, words ...uint32) {
	t.Helper()
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func TestLoadSPIRV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simple.vert.spv")
	writeWords(t, path, 0x07230203, 0x00010000, 42)

	code, err := LoadSPIRV(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 0x00010000, 42}, code)
}

func TestLoadSPIRVRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSPIRV(filepath.Join(dir, "missing.spv"))
	assert.Error(t, err)

	odd := filepath.Join(dir, "odd.spv")
	require.NoError(t, os.WriteFile(odd, []byte{1, 2, 3, 4, 5}, 0o644))
	_, err = LoadSPIRV(odd)
	assert.Error(t, err)

	notSpirv := filepath.Join(dir, "text.spv")
	writeWords(t, notSpirv, 0xdeadbeef)
	_, err = LoadSPIRV(notSpirv)
	assert.Error(t, err)
}

func TestLoadImageFlip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(0, 1, color.RGBA{B: 255, A: 255})
	path := filepath.Join(t.TempDir(), "tex.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	data, err := LoadImage(path, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), data.Width)
	assert.Equal(t, uint32(2), data.Height)
	assert.Equal(t, []uint8{255, 0, 0, 255, 0, 0, 255, 255}, data.Pixels)

	flipped, err := LoadImage(path, true)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 255, 255, 255, 0, 0, 255}, flipped.Pixels)
}

func TestLoadImageUndecodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	_, err := LoadImage(path, false)
	assert.Error(t, err)
}

func TestShaderWatcherCoalescesRequests(t *testing.T) {
	w := &ShaderWatcher{
		debounce: time.Second,
		last:     make(map[string]time.Time),
		notify:   make(chan struct{}, 1),
	}
	now := time.Now()

	w.handleFileEvent("shaders/readme.txt", now)
	_, ok := w.Take()
	assert.False(t, ok)

	w.handleFileEvent("shaders/mrt.frag.spv", now)
	w.handleFileEvent("shaders/mrt.frag.spv", now.Add(10*time.Millisecond))
	w.handleFileEvent("shaders/resolve.frag", now.Add(20*time.Millisecond))
	select {
	case <-w.Notify():
	default:
		t.Fatal("expected a notification")
	}

	req, ok := w.Take()
	require.True(t, ok)
	assert.True(t, req.Compile)
	assert.Equal(t, "shaders/resolve.frag", req.Path)

	_, ok = w.Take()
	assert.False(t, ok)
}

func TestShaderWatcherDetectsWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := NewShaderWatcher(dir)
	require.NoError(t, err)
	defer w.Close()

	writeWords(t, filepath.Join(dir, "resolve.vert.spv"), 0x07230203)

	select {
	case <-w.Notify():
	case <-time.After(5 * time.Second):
		t.Fatal("no reload request after writing a shader binary")
	}
	req, ok := w.Take()
	require.True(t, ok)
	assert.False(t, req.Compile)
	assert.Equal(t, "resolve.vert.spv", filepath.Base(req.Path))
}

func TestShaderWatcherForwardsErrorsVerbatim(t *testing.T) {
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	defer core.SetLogOutput(os.Stderr)

	w, err := NewShaderWatcher(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	sent := errors.New("queue overflow at 100%d")
	w.fsnotify.Errors <- sent

	select {
	case got := <-w.Errors():
		assert.Equal(t, sent, got)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher error was not forwarded")
	}
	assert.Contains(t, buf.String(), "queue overflow at 100%d")
	assert.NotContains(t, buf.String(), "MISSING")
}

func TestCompileShadersEmptyCommand(t *testing.T) {
	assert.NoError(t, CompileShaders(nil))
}
