package runlog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Tailer follows a run's event log and emits each newly appended line.
// It starts at end-of-file, so only lines written after creation are seen.
type Tailer struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	lines    chan []byte
	done     chan struct{}

	file   *os.File
	offset int64
	buf    bytes.Buffer
}

// NewTailer opens the log and starts following it. It watches the parent
// directory rather than the file so appends via rename/recreate are caught.
func NewTailer(path string) (*Tailer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		f.Close()
		return nil, err
	}

	t := &Tailer{
		watcher:  w,
		path:     path,
		debounce: 100 * time.Millisecond,
		lines:    make(chan []byte, 64),
		done:     make(chan struct{}),
		file:     f,
		offset:   offset,
	}
	go t.loop()
	return t, nil
}

// Lines returns the channel of newly appended log lines.
func (t *Tailer) Lines() <-chan []byte {
	return t.lines
}

// Close stops the tailer and releases the watcher and file handle.
func (t *Tailer) Close() error {
	close(t.done)
	t.file.Close()
	return t.watcher.Close()
}

func (t *Tailer) loop() {
	defer close(t.lines)
	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-t.done:
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(t.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce bursts of appends into one read.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(t.debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			t.drain()
		case _, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// drain reads everything appended since the last offset and emits the
// complete lines. A partial trailing line stays buffered until its newline
// arrives. A shrunken file means truncation; reading restarts at zero.
func (t *Tailer) drain() {
	info, err := os.Stat(t.path)
	if err != nil {
		return
	}
	if info.Size() < t.offset {
		t.offset = 0
		t.buf.Reset()
	}
	if _, err := t.file.Seek(t.offset, io.SeekStart); err != nil {
		return
	}
	chunk := make([]byte, 64*1024)
	for {
		n, err := t.file.Read(chunk)
		if n > 0 {
			t.offset += int64(n)
			t.buf.Write(chunk[:n])
		}
		if err != nil {
			break
		}
	}
	for {
		line, err := t.buf.ReadBytes('\n')
		if err != nil {
			// Incomplete line; push it back for the next drain.
			rest := make([]byte, len(line))
			copy(rest, line)
			t.buf.Reset()
			t.buf.Write(rest)
			return
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		select {
		case t.lines <- out:
		case <-t.done:
			return
		}
	}
}
