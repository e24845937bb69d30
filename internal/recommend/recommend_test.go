package recommend

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kaanreal/companella/internal/mmr"
	"github.com/kaanreal/companella/internal/model"
	"github.com/kaanreal/companella/internal/store"
)

func seedSkillsetMap(t *testing.T, maps *store.MapStore, path string, skillset model.Skillset, value float64) {
	t.Helper()
	scores := model.SkillsetScores{Overall: value}
	switch skillset {
	case model.Stream:
		scores.Stream = value
	case model.Jumpstream:
		scores.Jumpstream = value
	case model.Handstream:
		scores.Handstream = value
	case model.Stamina:
		scores.Stamina = value
	case model.Jackspeed:
		scores.Jackspeed = value
	case model.Chordjack:
		scores.Chordjack = value
	case model.Technical:
		scores.Technical = value
	}
	err := maps.Upsert(context.Background(), model.IndexedMap{
		BeatmapPath:      path,
		KeyCount:         4,
		OverallMSD:       value,
		DominantSkillset: skillset,
		DisplayName:      path,
		MsdScores: map[model.Rate]model.SkillsetScores{
			model.BaseRate: scores,
		},
	})
	if err != nil {
		t.Fatalf("seed map %s: %v", path, err)
	}
}

// DeficitFixing with
// weakest_skillsets=[stamina, technical, chordjack], each with non-zero
// player data. Expected: ~count/3 maps per skillset, each with
// relative_difficulty ≈ 1.10±0.15, reasoning strings naming the skillset.
func TestRecommendDeficitFixingSplitsAcrossWeakestSkillsets(t *testing.T) {
	maps, err := store.OpenMapStore(filepath.Join(t.TempDir(), "maps.db"))
	if err != nil {
		t.Fatalf("open map store: %v", err)
	}
	defer maps.Close()

	// Two candidates per weak skillset, each at 1.1x that skillset's
	// player level so relative_difficulty lands squarely at 1.10.
	seedSkillsetMap(t, maps, "stamina-a.osu", model.Stamina, 15*1.10)
	seedSkillsetMap(t, maps, "stamina-b.osu", model.Stamina, 15*1.10)
	seedSkillsetMap(t, maps, "technical-a.osu", model.Technical, 16*1.10)
	seedSkillsetMap(t, maps, "technical-b.osu", model.Technical, 16*1.10)
	seedSkillsetMap(t, maps, "chordjack-a.osu", model.Chordjack, 17*1.10)
	seedSkillsetMap(t, maps, "chordjack-b.osu", model.Chordjack, 17*1.10)

	trend := model.SkillsTrendResult{
		OverallSkillLevel: 22,
		CurrentSkillLevels: map[model.Skillset]float64{
			model.Stamina:    15,
			model.Technical:  16,
			model.Chordjack:  17,
			model.Stream:     25,
			model.Jumpstream: 26,
			model.Handstream: 24,
			model.Jackspeed:  23,
		},
		TotalPlays: 40,
	}

	svc := Service{
		MMR:  mmr.Calculator{Maps: maps},
		Rand: rand.New(rand.NewSource(1)),
	}

	batch, err := svc.Recommend(context.Background(), model.RecommendationFocus{Kind: model.FocusDeficitFixing}, trend, 6)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	counts := map[model.Skillset]int{}
	for _, m := range batch.Maps {
		if m.RelativeDifficulty < 0.95 || m.RelativeDifficulty > 1.25 {
			t.Fatalf("map %s has relative_difficulty %v outside 1.10±0.15", m.Map.BeatmapPath, m.RelativeDifficulty)
		}
		for _, sk := range []model.Skillset{model.Stamina, model.Technical, model.Chordjack} {
			if strings.Contains(m.Reasoning, string(sk)) {
				counts[sk]++
			}
		}
	}

	for _, sk := range []model.Skillset{model.Stamina, model.Technical, model.Chordjack} {
		if counts[sk] != 2 {
			t.Fatalf("expected 2 maps for weak skillset %s (count/3 of limit 6), got %d", sk, counts[sk])
		}
	}
	if len(batch.Maps) != 6 {
		t.Fatalf("expected 6 total recommended maps, got %d", len(batch.Maps))
	}
}

// Every DeficitFixing entry must name the weak skillset it targets.
func TestRecommendDeficitFixingReasoningNamesSkillset(t *testing.T) {
	maps, err := store.OpenMapStore(filepath.Join(t.TempDir(), "maps.db"))
	if err != nil {
		t.Fatalf("open map store: %v", err)
	}
	defer maps.Close()

	seedSkillsetMap(t, maps, "stamina-a.osu", model.Stamina, 15*1.10)

	// Every skillset has data so none is backfilled; stamina is the
	// weakest and the only one with a seeded map in range.
	trend := model.SkillsTrendResult{
		OverallSkillLevel: 20,
		CurrentSkillLevels: map[model.Skillset]float64{
			model.Stamina:    15,
			model.Technical:  18,
			model.Chordjack:  19,
			model.Stream:     25,
			model.Jumpstream: 26,
			model.Handstream: 24,
			model.Jackspeed:  23,
		},
		TotalPlays: 4,
	}
	svc := Service{MMR: mmr.Calculator{Maps: maps}}

	batch, err := svc.Recommend(context.Background(), model.RecommendationFocus{Kind: model.FocusDeficitFixing}, trend, 3)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(batch.Maps) == 0 {
		t.Fatalf("expected at least one recommended map")
	}
	want := fmt.Sprintf("%s", model.Stamina)
	if !strings.Contains(batch.Maps[0].Reasoning, want) {
		t.Fatalf("expected reasoning to name %q, got %q", want, batch.Maps[0].Reasoning)
	}
}

// A player with data on only one skillset still gets three deficit
// targets: the weakest-3 ranking backfills with never-played skillsets,
// and those take the introductory 0.9 target instead of 1.1.
func TestRecommendDeficitFixingBackfillsNeverPlayedSkillsets(t *testing.T) {
	maps, err := store.OpenMapStore(filepath.Join(t.TempDir(), "maps.db"))
	if err != nil {
		t.Fatalf("open map store: %v", err)
	}
	defer maps.Close()

	// Only stream has play data, so the three weakest are all
	// never-played; their player skill falls back to the overall level
	// of 20, putting the 0.9 target band around 18.
	trend := model.SkillsTrendResult{
		OverallSkillLevel:  20,
		CurrentSkillLevels: map[model.Skillset]float64{model.Stream: 25},
		TotalPlays:         8,
	}

	weakest := weakestSkillsets(trend, 3)
	if len(weakest) != 3 {
		t.Fatalf("expected weakest backfilled to 3 skillsets, got %v", weakest)
	}
	for _, sk := range weakest {
		if sk == model.Stream {
			t.Fatalf("played skillset ranked above never-played ones: %v", weakest)
		}
		seedSkillsetMap(t, maps, string(sk)+"-a.osu", sk, 18)
	}

	svc := Service{MMR: mmr.Calculator{Maps: maps}}
	batch, err := svc.Recommend(context.Background(), model.RecommendationFocus{Kind: model.FocusDeficitFixing}, trend, 3)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(batch.Maps) != 3 {
		t.Fatalf("expected one map per backfilled skillset, got %d", len(batch.Maps))
	}
	for _, m := range batch.Maps {
		if m.RelativeDifficulty < 0.75 || m.RelativeDifficulty > 1.05 {
			t.Fatalf("map %s has relative_difficulty %v outside the 0.90±0.15 introductory band", m.Map.BeatmapPath, m.RelativeDifficulty)
		}
		named := false
		for _, sk := range weakest {
			if strings.Contains(m.Reasoning, string(sk)) {
				named = true
			}
		}
		if !named {
			t.Fatalf("reasoning %q names none of the deficit skillsets %v", m.Reasoning, weakest)
		}
	}
}
