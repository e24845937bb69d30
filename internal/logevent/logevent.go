// Package logevent writes companella.log: append-only UTF-8 lines of the
// form "[yyyy-MM-dd HH:mm:ss.fff] [LEVEL] msg", rotated once the file
// exceeds 5 MiB. The exact line format and rotate-to-.old behavior
// required here don't match any logging library's default output, so this
// stays a small hand-rolled writer.
package logevent

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/kaanreal/companella/internal/clock"
)

const maxSizeBytes = 5 * 1024 * 1024 // 5 MiB

type Level string

const (
	Info  Level = "INFO"
	Warn  Level = "WARN"
	Error Level = "ERROR"
)

// Sink receives formatted log lines. The production Logger writes to a
// rotating file; tests substitute an in-memory Sink.
type Sink interface {
	io.Writer
}

// Logger is an owned value passed to every component that needs to log; it
// is never a package-level global.
type Logger struct {
	mu    sync.Mutex
	sink  Sink
	clock clock.Clock
}

// New returns a Logger writing to sink, timestamped by clk.
func New(sink Sink, clk clock.Clock) *Logger {
	return &Logger{sink: sink, clock: clk}
}

func (l *Logger) log(level Level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.clock.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.sink, "[%s] [%s] %s\n", ts, level, msg)
}

func (l *Logger) Info(format string, args ...any)  { l.log(Info, fmt.Sprintf(format, args...)) }
func (l *Logger) Warn(format string, args ...any)  { l.log(Warn, fmt.Sprintf(format, args...)) }
func (l *Logger) Error(format string, args ...any) { l.log(Error, fmt.Sprintf(format, args...)) }

// RotatingFile is a Sink backed by an on-disk file that rotates to
// "<path>.old" once it exceeds 5 MiB, keeping exactly one previous copy.
type RotatingFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
	size int64
}

// OpenRotatingFile opens (creating if needed) the log file at path.
func OpenRotatingFile(path string) (*RotatingFile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file %s: %w", path, err)
	}
	return &RotatingFile{path: path, f: f, size: info.Size()}, nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size+int64(len(p)) > maxSizeBytes {
		if err := r.rotateLocked(); err != nil {
			return 0, err
		}
	}

	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *RotatingFile) rotateLocked() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close log file before rotation: %w", err)
	}

	oldPath := r.path + ".old"
	if err := os.Rename(r.path, oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate log file (size %s) to %s: %w", humanize.Bytes(uint64(r.size)), oldPath, err)
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reopen log file %s after rotation: %w", r.path, err)
	}
	r.f = f
	r.size = 0
	return nil
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

// DefaultPath returns companella.log next to the given base directory.
func DefaultPath(baseDir string) string {
	return filepath.Join(baseDir, "companella.log")
}
