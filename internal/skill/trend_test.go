package skill

import (
	"math"
	"reflect"
	"testing"

	"github.com/kaanreal/companella/internal/model"
)

func play(skillset model.Skillset, msd, accuracy float64) model.Play {
	return model.Play{
		BeatmapPath:      "/songs/x/x.osu",
		Accuracy:         accuracy,
		PeakMSD:          msd,
		DominantSkillset: skillset,
	}
}

func TestAnalyzeWeightsByAccuracy(t *testing.T) {
	tests := []struct {
		name        string
		plays       []model.Play
		wantOverall float64
		wantLevels  map[model.Skillset]float64
	}{
		{
			name:        "single play at full accuracy",
			plays:       []model.Play{play(model.Stream, 20, 100)},
			wantOverall: 20,
			wantLevels:  map[model.Skillset]float64{model.Stream: 20},
		},
		{
			name: "lower accuracy contributes less",
			plays: []model.Play{
				play(model.Stream, 20, 100),
				play(model.Stream, 30, 50),
			},
			// (20*1.0 + 30*0.5) / 1.5
			wantOverall: 35.0 / 1.5,
			wantLevels:  map[model.Skillset]float64{model.Stream: 35.0 / 1.5},
		},
		{
			name: "plays count into exactly one skillset",
			plays: []model.Play{
				play(model.Stream, 20, 100),
				play(model.Jackspeed, 24, 100),
			},
			wantOverall: 22,
			wantLevels: map[model.Skillset]float64{
				model.Stream:    20,
				model.Jackspeed: 24,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Analyzer{}.Analyze(tt.plays)

			if math.Abs(result.OverallSkillLevel-tt.wantOverall) > 1e-9 {
				t.Fatalf("overall: got %v, want %v", result.OverallSkillLevel, tt.wantOverall)
			}
			if result.TotalPlays != len(tt.plays) {
				t.Fatalf("total plays: got %d, want %d", result.TotalPlays, len(tt.plays))
			}
			for skillset, want := range tt.wantLevels {
				got, ok := result.CurrentSkillLevels[skillset]
				if !ok {
					t.Fatalf("missing level for %s", skillset)
				}
				if math.Abs(got-want) > 1e-9 {
					t.Fatalf("%s level: got %v, want %v", skillset, got, want)
				}
			}
			if len(result.CurrentSkillLevels) != len(tt.wantLevels) {
				t.Fatalf("unexpected extra skillset levels: %v", result.CurrentSkillLevels)
			}
		})
	}
}

func TestAnalyzeEmptyWindow(t *testing.T) {
	result := Analyzer{}.Analyze(nil)

	if result.OverallSkillLevel != 0 {
		t.Fatalf("expected zero overall for empty window, got %v", result.OverallSkillLevel)
	}
	if result.TotalPlays != 0 {
		t.Fatalf("expected zero total plays, got %d", result.TotalPlays)
	}
	if len(result.CurrentSkillLevels) != 0 {
		t.Fatalf("expected no skillset levels, got %v", result.CurrentSkillLevels)
	}
}

// Analyzing the same input twice yields identical output.
func TestAnalyzeIsDeterministic(t *testing.T) {
	plays := []model.Play{
		play(model.Stream, 21.5, 96.2),
		play(model.Chordjack, 19.0, 88.7),
		play(model.Stream, 23.1, 91.4),
		play(model.Technical, 17.8, 99.0),
	}

	first := Analyzer{}.Analyze(plays)
	second := Analyzer{}.Analyze(plays)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("analyzer is not deterministic:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestWeakestAndStrongestSkillsets(t *testing.T) {
	plays := []model.Play{
		play(model.Stream, 25, 100),
		play(model.Stamina, 15, 100),
		play(model.Chordjack, 20, 100),
	}
	result := Analyzer{}.Analyze(plays)

	weakest := GetWeakestSkillsets(result, 2)
	if len(weakest) != 2 || weakest[0] != model.Stamina || weakest[1] != model.Chordjack {
		t.Fatalf("weakest: got %v", weakest)
	}

	strongest := GetStrongestSkillsets(result, 2)
	if len(strongest) != 2 || strongest[0] != model.Stream || strongest[1] != model.Chordjack {
		t.Fatalf("strongest: got %v", strongest)
	}

	// Skillsets with zero plays are omitted even when k exceeds the
	// number present.
	all := GetWeakestSkillsets(result, 10)
	if len(all) != 3 {
		t.Fatalf("expected only played skillsets, got %v", all)
	}
}
