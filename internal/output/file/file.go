package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/output"
)

const (
	defaultBufSize       = 64 * 1024
	defaultFlushInterval = time.Second
	keepRotated          = 10
)

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize sets the file size (bytes) at which rotation triggers.
// 0 (default) disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(o *Output) { o.maxSize = bytes }
}

// WithBufSize sets the bufio.Writer buffer size. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// WithFlushInterval sets how often buffered events are written through to
// the file. 0 flushes only on rotation and Close.
func WithFlushInterval(d time.Duration) Option {
	return func(o *Output) { o.flushInterval = d }
}

// Output appends prediction events as NDJSON to a file, rotating it to
// path.1 .. path.10 once it exceeds the configured size.
type Output struct {
	mu        sync.Mutex
	path      string
	verbosity output.Verbosity
	maxSize   int64
	bufSize   int

	flushInterval time.Duration
	stop          chan struct{}
	done          chan struct{}

	f       *os.File
	w       *bufio.Writer
	written int64
}

// New opens path for appending.
func New(path string, verbosity output.Verbosity, opts ...Option) (*Output, error) {
	o := &Output{
		path:      path,
		verbosity:     verbosity,
		bufSize:       defaultBufSize,
		flushInterval: defaultFlushInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.open(); err != nil {
		return nil, err
	}
	if o.flushInterval > 0 {
		o.stop = make(chan struct{})
		o.done = make(chan struct{})
		go o.flushLoop()
	}
	return o, nil
}

func (o *Output) flushLoop() {
	defer close(o.done)
	ticker := time.NewTicker(o.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			if err := o.Flush(); err != nil {
				slog.Warn("file output flush failed", "path", o.path, "error", err)
			}
		}
	}
}

// Flush writes buffered events through to the file.
func (o *Output) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Flush()
}

func (o *Output) Write(_ context.Context, event model.Event) error {
	line, err := json.Marshal(output.FormatEvent(event, o.verbosity))
	if err != nil {
		return fmt.Errorf("file output: marshal: %w", err)
	}
	line = append(line, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.maxSize > 0 && o.written > 0 && o.written+int64(len(line)) > o.maxSize {
		if err := o.rotate(); err != nil {
			return fmt.Errorf("file output: rotate: %w", err)
		}
	}
	n, err := o.w.Write(line)
	o.written += int64(n)
	if err != nil {
		return fmt.Errorf("file output: write: %w", err)
	}
	return nil
}

// Close stops the flush loop, flushes buffered events and closes the file.
func (o *Output) Close() error {
	if o.stop != nil {
		close(o.stop)
		<-o.done
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		return fmt.Errorf("file output: flush: %w", err)
	}
	return o.f.Close()
}

func (o *Output) open() error {
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file output: open %s: %w", o.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file output: stat %s: %w", o.path, err)
	}
	o.f = f
	o.w = bufio.NewWriterSize(f, o.bufSize)
	o.written = info.Size()
	return nil
}

// rotate shifts path.N to path.N+1, moves the live file to path.1 and
// reopens. The oldest generation is overwritten.
func (o *Output) rotate() error {
	if err := o.w.Flush(); err != nil {
		return err
	}
	if err := o.f.Close(); err != nil {
		return err
	}
	for i := keepRotated - 1; i >= 1; i-- {
		// Missing generations are expected on early rotations.
		_ = os.Rename(rotatedName(o.path, i), rotatedName(o.path, i+1))
	}
	if err := os.Rename(o.path, rotatedName(o.path, 1)); err != nil {
		return err
	}
	return o.open()
}

func rotatedName(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}
