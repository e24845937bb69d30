// Package tracker implements the Session Tracker: a state machine
// driven by periodic polls of the Process Observer that detects play
// start/completion/quit, counts pauses, and emits completed plays in
// completion order from a single polling goroutine.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/kaanreal/companella/internal/clock"
	"github.com/kaanreal/companella/internal/logevent"
	"github.com/kaanreal/companella/internal/model"
	"github.com/kaanreal/companella/internal/process"
)

const (
	pollInterval    = 150 * time.Millisecond
	pauseStallPolls = 3
	stopJoinTimeout = 1 * time.Second
)

type state int

const (
	stateIdle state = iota
	stateWatching
	stateWatchingPlaying
)

// Scorer invokes the external MSD tool for a beatmap at a given rate. A
// failure records peak_msd=0, dominant_skillset="unknown" rather than
// dropping the play.
type Scorer interface {
	Score(ctx context.Context, beatmapPath string, rate model.Rate) (model.Skillset, float64, error)
}

// Tracker runs the polling loop and reports completed plays and session
// lifecycle events to the caller.
type Tracker struct {
	reader *process.Reader
	scorer Scorer
	clock  clock.Clock
	log    *logevent.Logger

	mu           sync.Mutex // guards plays
	plays        []model.Play
	sessionStart time.Time

	st            state
	wasPlaying    bool
	playPath      string
	playRate      model.Rate
	playStart     time.Time
	lastAudioTime int64
	stallCount    int
	paused        bool
	pauseCount    int
	lastAccuracy  float64

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Tracker. scorer and log are owned values, never globals.
func New(reader *process.Reader, scorer Scorer, clk clock.Clock, log *logevent.Logger) *Tracker {
	return &Tracker{reader: reader, scorer: scorer, clock: clk, log: log}
}

// StartSession transitions Idle -> Watching and starts the polling
// goroutine. Calling it while already watching is a no-op.
func (t *Tracker) StartSession() {
	t.mu.Lock()
	if t.st != stateIdle {
		t.mu.Unlock()
		return
	}
	t.st = stateWatching
	t.plays = nil
	t.sessionStart = t.clock.Now()
	t.wasPlaying = false
	t.paused = false
	t.pauseCount = 0
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.run(ctx)
}

// StopSession cancels the polling goroutine, joins for up to 1s, and
// returns the persisted-shape Session. An empty
// session (zero plays) is returned with TotalPlays == 0; callers must not
// persist it.
func (t *Tracker) StopSession() model.Session {
	t.mu.Lock()
	if t.st == stateIdle {
		t.mu.Unlock()
		return model.Session{}
	}
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	select {
	case <-t.done:
	case <-time.After(stopJoinTimeout):
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	end := t.clock.Now()
	session := model.NewSession("", t.sessionStart, end, t.plays)
	t.st = stateIdle
	return session
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

func (t *Tracker) poll(ctx context.Context) {
	general, ok := t.reader.TryReadGeneral()
	if !ok {
		// Transient external failure: log and skip this poll.
		t.log.Info("poll skipped: general read failed")
		return
	}

	t.mu.Lock()
	playing := general.Status == process.Playing
	wasPlaying := t.wasPlaying
	t.wasPlaying = playing
	t.mu.Unlock()

	if playing && !wasPlaying {
		t.onPlayStart(general)
		return
	}

	if playing {
		t.trackPause(general)
	}

	if !playing && wasPlaying {
		t.onPlayEnd(ctx, general)
	}
}

// onPlayStart captures the beatmap path and rate at the moment Playing is
// first observed.
func (t *Tracker) onPlayStart(general process.GeneralData) {
	path, ok := t.reader.TryReadBeatmap()
	if !ok {
		path = ""
	}

	t.mu.Lock()
	t.st = stateWatchingPlaying
	t.playPath = path
	t.playRate = model.Mods(general.ActiveMods).Rate()
	t.playStart = t.clock.Now()
	t.lastAudioTime = general.AudioTime
	t.stallCount = 0
	t.paused = false
	t.lastAccuracy = 0
	t.mu.Unlock()
}

// trackPause implements pause detection: audio_time unchanged
// for >=3 consecutive polls while >0 records one pause; the first poll
// where it advances clears the paused flag so the next stall counts again.
func (t *Tracker) trackPause(general process.GeneralData) {
	if player, ok := t.reader.TryReadPlayer(); ok {
		t.mu.Lock()
		t.lastAccuracy = player.Accuracy
		t.mu.Unlock()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if general.AudioTime == t.lastAudioTime && general.AudioTime > 0 {
		t.stallCount++
		if t.stallCount == pauseStallPolls && !t.paused {
			t.pauseCount++
			t.paused = true
		}
		return
	}

	t.lastAudioTime = general.AudioTime
	t.stallCount = 0
	t.paused = false
}

// onPlayEnd implements EvaluateExit: ResultsScreen emits a completed
// play, SongSelect or anything else discards it.
func (t *Tracker) onPlayEnd(ctx context.Context, general process.GeneralData) {
	t.mu.Lock()
	path := t.playPath
	rate := t.playRate
	sessionTime := t.clock.Now().Sub(t.playStart)
	accuracy := t.lastAccuracy
	pauseCount := t.pauseCount
	t.st = stateWatching
	t.pauseCount = 0
	t.mu.Unlock()

	if general.Status != process.ResultsScreen {
		// SongSelect (quit/fail) or any other status: discard.
		return
	}

	if player, ok := t.reader.TryReadPlayer(); ok && player.Accuracy > 0 {
		accuracy = player.Accuracy
	}

	if accuracy <= 0 {
		t.log.Info("play discarded: accuracy <= 0")
		return
	}

	skillset, peakMSD := model.Skillset("unknown"), 0.0
	if scored, value, err := t.scorer.Score(ctx, path, rate); err != nil {
		t.log.Warn("msd tool failed for %s: %v", path, err)
	} else {
		skillset, peakMSD = scored, value
	}

	play := model.Play{
		BeatmapPath:      path,
		Accuracy:         accuracy,
		SessionTime:      sessionTime,
		RecordedAt:       t.clock.Now(),
		PeakMSD:          peakMSD,
		DominantSkillset: skillset,
		Rate:             float64(rate),
		PauseCount:       pauseCount,
	}

	t.mu.Lock()
	t.plays = append(t.plays, play)
	t.mu.Unlock()
}

// Plays returns a defensive copy of the plays recorded so far in the
// current session, for callers on other threads.
func (t *Tracker) Plays() []model.Play {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Play, len(t.plays))
	copy(out, t.plays)
	return out
}
