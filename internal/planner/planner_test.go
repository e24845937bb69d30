package planner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kaanreal/companella/internal/clock"
	"github.com/kaanreal/companella/internal/external"
	"github.com/kaanreal/companella/internal/model"
	"github.com/kaanreal/companella/internal/songsdir"
	"github.com/kaanreal/companella/internal/store"
)

func newTestPlanner(t *testing.T, songsRoot string) Planner {
	t.Helper()

	maps, err := store.OpenMapStore(filepath.Join(t.TempDir(), "maps.db"))
	if err != nil {
		t.Fatalf("open map store: %v", err)
	}
	t.Cleanup(func() { maps.Close() })

	idx, err := songsdir.Build(songsRoot)
	if err != nil {
		t.Fatalf("build songs index: %v", err)
	}

	return Planner{
		Maps:       maps,
		Songs:      idx,
		Collection: external.CollectionWriter{Path: filepath.Join(t.TempDir(), "collection.db")},
		OutputRoot: t.TempDir(),
		Clock:      clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)),
	}
}

func seedMap(t *testing.T, p Planner, relativeFolder string, overallMSD float64, skillset model.Skillset) string {
	t.Helper()

	dir := filepath.Join(p.Songs.Root(), relativeFolder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create map dir: %v", err)
	}
	osuPath := filepath.Join(dir, "map.osu")
	if err := os.WriteFile(osuPath, []byte("osu file format v14\n"), 0o644); err != nil {
		t.Fatalf("write osu file: %v", err)
	}

	err := p.Maps.Upsert(context.Background(), model.IndexedMap{
		BeatmapPath:      osuPath,
		KeyCount:         4,
		OverallMSD:       overallMSD,
		DominantSkillset: skillset,
		DisplayName:      relativeFolder,
		MsdScores: map[model.Rate]model.SkillsetScores{
			model.BaseRate: scoresFor(skillset, overallMSD),
		},
	})
	if err != nil {
		t.Fatalf("seed map: %v", err)
	}
	return osuPath
}

func scoresFor(skillset model.Skillset, value float64) model.SkillsetScores {
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
	return scores
}

func TestBuildCurvePlanEmptyPointsYieldsZeroItemsNoCollectionWrite(t *testing.T) {
	songsRoot := t.TempDir()
	p := newTestPlanner(t, songsRoot)

	plan, err := p.BuildCurvePlan(context.Background(), model.MsdCurveConfig{
		BaseMSD:             20,
		TotalSessionMinutes: 40,
	}, "", nil)
	if err != nil {
		t.Fatalf("BuildCurvePlan: %v", err)
	}

	if len(plan.Items) != 0 {
		t.Fatalf("expected zero items for an empty curve, got %d", len(plan.Items))
	}
	if plan.CollectionName != "" {
		t.Fatalf("expected no collection write for an empty curve, got name %q", plan.CollectionName)
	}
	if _, err := os.Stat(p.Collection.Path); !os.IsNotExist(err) {
		t.Fatalf("expected no collection.db file to be written, stat err = %v", err)
	}
}

func TestSortWithinPhaseRunsOrdersRampUpAscendingAndCooldownDescending(t *testing.T) {
	items := []model.SessionPlanItem{
		{Phase: model.Warmup, ActualMSD: 18},
		{Phase: model.RampUp, ActualMSD: 22},
		{Phase: model.RampUp, ActualMSD: 19},
		{Phase: model.RampUp, ActualMSD: 20.5},
		{Phase: model.Cooldown, ActualMSD: 17},
		{Phase: model.Cooldown, ActualMSD: 19.5},
	}

	sortWithinPhaseRuns(items)

	rampUp := []float64{items[1].ActualMSD, items[2].ActualMSD, items[3].ActualMSD}
	for i := 1; i < len(rampUp); i++ {
		if rampUp[i] < rampUp[i-1] {
			t.Fatalf("ramp-up run not ascending: %v", rampUp)
		}
	}

	cooldown := []float64{items[4].ActualMSD, items[5].ActualMSD}
	for i := 1; i < len(cooldown); i++ {
		if cooldown[i] > cooldown[i-1] {
			t.Fatalf("cooldown run not descending: %v", cooldown)
		}
	}
}

// When every selected item's indexed copy fails to materialize, the
// plan must come back empty and no collection.db entry must be written —
// distinct from the empty-control-points early return above, since here
// items existed and were selected before materialization wiped them out.
func TestBuildCurvePlanAllCopiesFailYieldsZeroItemsNoCollectionWrite(t *testing.T) {
	songsRoot := t.TempDir()
	p := newTestPlanner(t, songsRoot)

	for i := 0; i < 4; i++ {
		seedMap(t, p, filepath.Join("warmup-map", string(rune('a'+i))), 18, model.Stream)
	}

	// Block every copyBeatmap call: OutputRoot's own path component is a
	// plain file, so the per-item os.MkdirAll(destDir, ...) fails for all
	// of them instead of succeeding for some and failing for others.
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("create blocking file: %v", err)
	}
	p.OutputRoot = filepath.Join(blocked, "out")

	plan, err := p.BuildCurvePlan(context.Background(), model.MsdCurveConfig{
		Points: []model.MsdCurvePoint{
			{TimePercent: 0, MsdPercent: -10},
			{TimePercent: 100, MsdPercent: -10},
		},
		BaseMSD:             20,
		MinMsdPercent:       -10,
		MaxMsdPercent:       -10,
		TotalSessionMinutes: 10,
	}, "", nil)
	if err != nil {
		t.Fatalf("BuildCurvePlan: %v", err)
	}

	if len(plan.Items) != 0 {
		t.Fatalf("expected zero items once every copy failed, got %d", len(plan.Items))
	}
	if plan.CollectionName != "" {
		t.Fatalf("expected no collection name once every copy failed, got %q", plan.CollectionName)
	}
	if _, err := os.Stat(p.Collection.Path); !os.IsNotExist(err) {
		t.Fatalf("expected no collection.db file to be written, stat err = %v", err)
	}
}

func TestBuildCurvePlanProducesGaplessIndexAndWritesCollection(t *testing.T) {
	songsRoot := t.TempDir()
	p := newTestPlanner(t, songsRoot)

	for i := 0; i < 6; i++ {
		seedMap(t, p, filepath.Join("warmup-map", string(rune('a'+i))), 18, model.Stream)
	}

	plan, err := p.BuildCurvePlan(context.Background(), model.MsdCurveConfig{
		Points: []model.MsdCurvePoint{
			{TimePercent: 0, MsdPercent: -10},
			{TimePercent: 100, MsdPercent: -10},
		},
		BaseMSD:             20,
		MinMsdPercent:       -10,
		MaxMsdPercent:       -10,
		TotalSessionMinutes: 10,
	}, "", nil)
	if err != nil {
		t.Fatalf("BuildCurvePlan: %v", err)
	}

	for i, item := range plan.Items {
		if item.Index != i+1 {
			t.Fatalf("item %d has Index %d, want gapless 1-based sequence", i, item.Index)
		}
		if item.IndexedPath == "" {
			t.Fatalf("item %d missing indexed copy path", i)
		}
	}

	if len(plan.Items) > 0 && plan.CollectionName == "" {
		t.Fatalf("expected a collection name once items survived materialization")
	}
}
