// Package process implements the Process Observer: attaching to the
// running game, locating its Songs folder, and reading its memory for
// status/accuracy/hit-error data behind a single process-wide lock.
package process

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// processExecutableNames identifies the game's executable across the
// platforms gopsutil supports.
var processExecutableNames = []string{"osu!.exe", "osu!"}

// Handle is the platform-specific memory-reading capability. Each OS build
// supplies its own implementation (reader_windows.go, reader_other.go);
// every method returns ok=false rather than erroring when the struct isn't
// currently readable. Exported so tests
// can substitute a scripted fake.
type Handle interface {
	ReadGeneral() (GeneralData, bool)
	ReadPlayer() (PlayerData, bool)
	ReadResults() (ResultsData, bool)
	ReadBeatmap() (BeatmapInfo, bool)
	Close()
}

// Reader is the injected capability every collaborator reads the game
// through. The lock field replaces what would otherwise be a global
// singleton memory reader: it is owned here, not at package scope.
type Reader struct {
	mu        sync.Mutex
	handle    Handle
	songsRoot string
}

// NewReader wraps an already-constructed Handle. Production code reaches
// it via Attach; tests construct a Reader directly with a fake Handle.
func NewReader(h Handle, songsRoot string) *Reader {
	return &Reader{handle: h, songsRoot: songsRoot}
}

// Attach locates a running game process, derives its Songs folder from its
// command line / working directory, and returns a Reader caching both. A
// failure to find the process or resolve the folder is a transient-
// external error: callers should retry, not abort the application.
func Attach(ctx context.Context) (*Reader, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if !matchesGameExecutable(name) {
			continue
		}

		songsRoot, err := resolveSongsRoot(ctx, p)
		if err != nil {
			continue
		}

		h, err := newHandle(p.Pid)
		if err != nil {
			continue
		}

		return &Reader{handle: h, songsRoot: songsRoot}, nil
	}

	return nil, fmt.Errorf("no running game process found")
}

func matchesGameExecutable(name string) bool {
	lower := strings.ToLower(name)
	for _, candidate := range processExecutableNames {
		if lower == strings.ToLower(candidate) {
			return true
		}
	}
	return false
}

// resolveSongsRoot derives the Songs folder from the process's working
// directory, falling back to a "Songs" subdirectory of its executable's
// directory — the two layouts the real game installer produces.
func resolveSongsRoot(ctx context.Context, p *process.Process) (string, error) {
	if cwd, err := p.CwdWithContext(ctx); err == nil && cwd != "" {
		return filepath.Join(cwd, "Songs"), nil
	}

	exe, err := p.ExeWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve game executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), "Songs"), nil
}

// SongsRoot returns the cached Songs folder.
func (r *Reader) SongsRoot() string {
	return r.songsRoot
}

// TryReadGeneral reads status/audio-time/mods, holding the memory-reader
// lock for exactly this one read.
func (r *Reader) TryReadGeneral() (GeneralData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle.ReadGeneral()
}

// TryReadPlayer reads accuracy/score/combo/hit-errors under the lock. Used
// both by the tracker and, independently, by the Hit-Error analyzer.
func (r *Reader) TryReadPlayer() (PlayerData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle.ReadPlayer()
}

// TryReadResults reads the results-screen score summary under the lock.
func (r *Reader) TryReadResults() (ResultsData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle.ReadResults()
}

// TryReadBeatmap reads the loaded beatmap's folder/file pair under the
// lock and resolves it to an absolute path via songsRoot.
func (r *Reader) TryReadBeatmap() (string, bool) {
	r.mu.Lock()
	info, ok := r.handle.ReadBeatmap()
	r.mu.Unlock()

	if !ok {
		return "", false
	}
	if info.FolderName == "" || info.OsuFile == "" {
		return "", false
	}
	return filepath.Join(r.songsRoot, info.FolderName, info.OsuFile), true
}

// Close releases the underlying OS handle.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handle.Close()
}
