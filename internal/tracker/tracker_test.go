package tracker

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/kaanreal/companella/internal/clock"
	"github.com/kaanreal/companella/internal/logevent"
	"github.com/kaanreal/companella/internal/model"
	"github.com/kaanreal/companella/internal/process"
)

type fakeScorer struct {
	skillset model.Skillset
	value    float64
	err      error
}

func (f fakeScorer) Score(ctx context.Context, beatmapPath string, rate model.Rate) (model.Skillset, float64, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return f.skillset, f.value, nil
}

// newTestTracker builds a Tracker driven directly through poll() rather
// than the real 150ms-ticker goroutine, so scripted scenarios run
// deterministically.
func newTestTracker(t *testing.T, general []process.GeneralData, players []process.PlayerData) *Tracker {
	t.Helper()

	reader := process.NewReader(&process.ScriptedHandle{General: general, Players: players}, "/songs")
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	log := logevent.New(&bytes.Buffer{}, clk)

	tr := New(reader, fakeScorer{skillset: model.Stream, value: 20}, clk, log)
	tr.mu.Lock()
	tr.st = stateWatching
	tr.sessionStart = clk.Now()
	tr.mu.Unlock()
	return tr
}

func runAllPolls(tr *Tracker, count int) {
	ctx := context.Background()
	for i := 0; i < count; i++ {
		tr.poll(ctx)
	}
}

// A full play, no pauses: accuracy arrives mid-play and
// should be used as the final reading on ResultsScreen.
func TestTrackerRecordsOnePlayNoPauses(t *testing.T) {
	general := []process.GeneralData{
		{Status: process.Other, AudioTime: 0},
		{Status: process.Playing, AudioTime: 0},
		{Status: process.Playing, AudioTime: 1500},
		{Status: process.Playing, AudioTime: 3000},
		{Status: process.Playing, AudioTime: 6000},
		{Status: process.ResultsScreen, AudioTime: 6000},
	}
	players := []process.PlayerData{
		{Accuracy: 0},
		{Accuracy: 0},
		{Accuracy: 0},
		{Accuracy: 93.4},
		{Accuracy: 94.1},
		{Accuracy: 94.1},
	}

	tr := newTestTracker(t, general, players)
	runAllPolls(tr, len(general))

	plays := tr.Plays()
	if len(plays) != 1 {
		t.Fatalf("expected exactly one play, got %d", len(plays))
	}
	if plays[0].Accuracy != 94.1 {
		t.Fatalf("expected accuracy 94.1, got %v", plays[0].Accuracy)
	}
	if plays[0].PauseCount != 0 {
		t.Fatalf("expected pause_count 0, got %d", plays[0].PauseCount)
	}
}

// audio_time stalls for exactly 3 consecutive polls before
// the third-stall pause counter increments, and stays at 1 thereafter.
func TestTrackerPauseDetection(t *testing.T) {
	general := []process.GeneralData{
		{Status: process.Playing, AudioTime: 100},
		{Status: process.Playing, AudioTime: 200},
		{Status: process.Playing, AudioTime: 200},
		{Status: process.Playing, AudioTime: 200},
		{Status: process.Playing, AudioTime: 200},
		{Status: process.Playing, AudioTime: 300},
		{Status: process.ResultsScreen, AudioTime: 300},
	}
	players := make([]process.PlayerData, len(general))
	for i := range players {
		players[i] = process.PlayerData{Accuracy: 90}
	}

	tr := newTestTracker(t, general, players)
	runAllPolls(tr, len(general))

	plays := tr.Plays()
	if len(plays) != 1 {
		t.Fatalf("expected exactly one play, got %d", len(plays))
	}
	if plays[0].PauseCount != 1 {
		t.Fatalf("expected pause_count 1, got %d", plays[0].PauseCount)
	}
}

// Quitting to SongSelect (rather than reaching
// ResultsScreen) discards the play entirely.
func TestTrackerDiscardsPlayOnQuitToSongSelect(t *testing.T) {
	general := []process.GeneralData{
		{Status: process.Playing, AudioTime: 0},
		{Status: process.Playing, AudioTime: 1000},
		{Status: process.SongSelect, AudioTime: 1000},
	}
	players := []process.PlayerData{
		{Accuracy: 0},
		{Accuracy: 55.0},
		{Accuracy: 55.0},
	}

	tr := newTestTracker(t, general, players)
	runAllPolls(tr, len(general))

	if plays := tr.Plays(); len(plays) != 0 {
		t.Fatalf("expected no plays recorded on quit, got %d", len(plays))
	}
}

// A play ending with accuracy <= 0 is discarded even though the
// game reported ResultsScreen.
func TestTrackerDiscardsZeroAccuracyPlay(t *testing.T) {
	general := []process.GeneralData{
		{Status: process.Playing, AudioTime: 0},
		{Status: process.Playing, AudioTime: 1000},
		{Status: process.ResultsScreen, AudioTime: 1000},
	}
	players := []process.PlayerData{
		{Accuracy: 0},
		{Accuracy: 0},
		{Accuracy: 0},
	}

	tr := newTestTracker(t, general, players)
	runAllPolls(tr, len(general))

	if plays := tr.Plays(); len(plays) != 0 {
		t.Fatalf("expected accuracy<=0 play to be discarded, got %d", len(plays))
	}
}

// An MSD tool failure records the play with peak_msd=0 and
// dominant_skillset=unknown rather than dropping it.
func TestTrackerRecordsPlayWithUnknownSkillsetOnScorerFailure(t *testing.T) {
	general := []process.GeneralData{
		{Status: process.Playing, AudioTime: 0},
		{Status: process.Playing, AudioTime: 1000},
		{Status: process.ResultsScreen, AudioTime: 1000},
	}
	players := []process.PlayerData{
		{Accuracy: 80},
		{Accuracy: 85},
		{Accuracy: 85},
	}

	reader := process.NewReader(&process.ScriptedHandle{General: general, Players: players}, "/songs")
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	log := logevent.New(&bytes.Buffer{}, clk)
	tr := New(reader, fakeScorer{err: context.DeadlineExceeded}, clk, log)
	tr.mu.Lock()
	tr.st = stateWatching
	tr.sessionStart = clk.Now()
	tr.mu.Unlock()

	runAllPolls(tr, len(general))

	plays := tr.Plays()
	if len(plays) != 1 {
		t.Fatalf("expected one play despite scorer failure, got %d", len(plays))
	}
	if plays[0].PeakMSD != 0 {
		t.Fatalf("expected peak_msd 0 on scorer failure, got %v", plays[0].PeakMSD)
	}
	if plays[0].DominantSkillset != "unknown" {
		t.Fatalf("expected dominant_skillset unknown, got %q", plays[0].DominantSkillset)
	}
}
