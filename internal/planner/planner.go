// Package planner implements the Session Planner: builds an ordered
// practice session from an MSD curve (or a fixed legacy phase shape),
// materializes indexed on-disk copies of the chosen beatmaps, and writes a
// collection referencing them.
package planner

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/kaanreal/companella/internal/clock"
	"github.com/kaanreal/companella/internal/external"
	"github.com/kaanreal/companella/internal/model"
	"github.com/kaanreal/companella/internal/songsdir"
	"github.com/kaanreal/companella/internal/store"
)

const (
	segmentDurationSeconds = 300
	defaultMapDurationSecs = 120
	msdTolerance           = 0.5
)

// ProgressFunc reports planner progress: a status string plus a 0-100
// percentage, one call per stage.
type ProgressFunc func(status string, percentage int)

// Planner builds and materializes session plans.
type Planner struct {
	Maps       *store.MapStore
	Songs      *songsdir.Index
	Collection external.CollectionWriter
	OutputRoot string // directory under which indexed-copy folders are created
	Clock      clock.Clock
}

func noopProgress(string, int) {}

// BuildCurvePlan implements curve mode: segment walk, map selection
// per segment, indexed-copy creation, and collection write.
func (p Planner) BuildCurvePlan(ctx context.Context, config model.MsdCurveConfig, focusSkillset model.Skillset, progress ProgressFunc) (model.SessionPlan, error) {
	return p.buildPlan(ctx, model.PlanModeCurve, config, focusSkillset, progress)
}

// BuildPhasePlan implements the phase-based legacy planner: a fixed
// three-phase shape relative to the player's current
// skill — Warmup at 0.85x for the first 20% of total time, RampUp linearly
// from 0.85x to 1.15x for the middle 55%, Cooldown from 1.15x back to 0.9x
// for the final 25% — expressed as an equivalent MsdCurveConfig (BaseMSD =
// playerSkill, so msd_percent = (ratio-1)*100) and delegated to the same
// curve-mode sampler BuildCurvePlan uses, so the ordering and indexing
// invariants apply identically to both modes.
func (p Planner) BuildPhasePlan(ctx context.Context, playerSkill, totalSessionMinutes float64, focusSkillset model.Skillset, progress ProgressFunc) (model.SessionPlan, error) {
	config := model.MsdCurveConfig{
		Points: []model.MsdCurvePoint{
			{TimePercent: 0, MsdPercent: -15},
			{TimePercent: 20, MsdPercent: -15},
			{TimePercent: 75, MsdPercent: 15},
			{TimePercent: 100, MsdPercent: -10},
		},
		BaseMSD:             playerSkill,
		MinMsdPercent:       -15,
		MaxMsdPercent:       15,
		TotalSessionMinutes: totalSessionMinutes,
	}
	return p.buildPlan(ctx, model.PlanModeLegacyPhases, config, focusSkillset, progress)
}

// buildPlan is the segment walk, map selection, indexed-copy creation, and
// collection write shared by both planning modes.
func (p Planner) buildPlan(ctx context.Context, mode model.PlanMode, config model.MsdCurveConfig, focusSkillset model.Skillset, progress ProgressFunc) (model.SessionPlan, error) {
	if progress == nil {
		progress = noopProgress
	}
	progress("starting", 0)

	plan := model.SessionPlan{
		ID:            uuid.NewString(),
		Mode:          mode,
		FocusSkillset: focusSkillset,
		GeneratedAt:   p.Clock.Now(),
	}

	if len(config.Points) == 0 {
		// An empty curve yields zero items and no
		// collection write, not a curve that flatlines at zero percent.
		progress("done", 100)
		return plan, nil
	}

	totalSeconds := config.TotalSessionMinutes * 60
	segmentCount := int(math.Max(1, math.Round(totalSeconds/segmentDurationSeconds)))

	used := make(map[string]bool)
	var cumulativeSeconds float64

	for segment := 0; segment < segmentCount && cumulativeSeconds < totalSeconds; segment++ {
		timePercent := float64(segment) / float64(segmentCount) * 100
		targetMSD := config.MSD(timePercent)
		skillset := config.SkillsetAt(timePercent)
		if focusSkillset != "" {
			skillset = focusSkillset
		}
		phase := inferPhase(config, timePercent)

		wantCount := int(math.Ceil(segmentDurationSeconds / defaultMapDurationSecs))
		items, err := p.selectSegmentMaps(ctx, targetMSD, skillset, phase, wantCount, used)
		if err != nil {
			return model.SessionPlan{}, fmt.Errorf("select maps for segment %d: %w", segment, err)
		}

		for _, item := range items {
			if cumulativeSeconds >= totalSeconds {
				break
			}
			used[item.OriginalPath] = true
			plan.Items = append(plan.Items, item)
			cumulativeSeconds += item.EstimatedDurationSecs
		}
	}

	sortWithinPhaseRuns(plan.Items)
	plan.WarmupDifficulty, plan.PeakDifficulty, plan.CooldownDifficulty = phaseDifficulties(plan.Items)
	plan.Reindex()
	progress("maps selected", 70)

	if err := p.materializeCopies(&plan, progress); err != nil {
		return model.SessionPlan{}, err
	}

	if len(plan.Items) == 0 {
		// Every selected map's indexed copy failed; the collection is
		// only written when at least one item survived.
		progress("done", 100)
		return plan, nil
	}

	if err := p.writeCollection(&plan, progress); err != nil {
		return model.SessionPlan{}, err
	}

	progress("done", 100)
	return plan, nil
}

// inferPhase derives a segment's phase from the curve shape alone.
func inferPhase(config model.MsdCurveConfig, timePercent float64) model.Phase {
	msdPercent := config.MsdPercentAt(timePercent)
	if timePercent < 20 && msdPercent <= config.MinMsdPercent+5 {
		return model.Warmup
	}
	if timePercent > 75 && msdPercent < config.MsdPercentAt(timePercent-5) {
		return model.Cooldown
	}
	return model.RampUp
}

func (p Planner) selectSegmentMaps(ctx context.Context, targetMSD float64, skillset model.Skillset, phase model.Phase, want int, used map[string]bool) ([]model.SessionPlanItem, error) {
	minMSD := targetMSD - msdTolerance
	maxMSD := targetMSD + msdTolerance

	criteria := store.SearchCriteria{
		MinMSD:  &minMSD,
		MaxMSD:  &maxMSD,
		OrderBy: store.OrderRandom,
		Limit:   want * 3, // overfetch to survive the used-path and exists filters
	}
	if skillset != "" {
		criteria.Skillset = &skillset
	}

	candidates, err := p.Maps.Search(ctx, criteria)
	if err != nil {
		return nil, err
	}

	var items []model.SessionPlanItem
	for _, m := range candidates {
		if len(items) >= want {
			break
		}
		if used[m.BeatmapPath] {
			continue
		}
		if _, err := os.Stat(m.BeatmapPath); err != nil {
			continue
		}

		actualMSD := m.OverallMSD
		if scores, ok := m.BaseScores(); ok {
			actualMSD = scores.ValueFor(skillset)
		}

		items = append(items, model.SessionPlanItem{
			Phase:                 phase,
			OriginalPath:          m.BeatmapPath,
			TargetMSD:             targetMSD,
			ActualMSD:             actualMSD,
			Skillset:              skillset,
			EstimatedDurationSecs: defaultMapDurationSecs,
		})
	}
	return items, nil
}

// sortWithinPhaseRuns enforces the per-phase ordering invariant (ascending
// MSD within RampUp, descending within Cooldown, untouched within Warmup)
// on each maximal contiguous run of same-phase items, without disturbing
// the chronological ordering of the phases themselves.
func sortWithinPhaseRuns(items []model.SessionPlanItem) {
	start := 0
	for start < len(items) {
		end := start + 1
		for end < len(items) && items[end].Phase == items[start].Phase {
			end++
		}
		switch items[start].Phase {
		case model.RampUp:
			run := items[start:end]
			sort.SliceStable(run, func(i, j int) bool { return run[i].ActualMSD < run[j].ActualMSD })
		case model.Cooldown:
			run := items[start:end]
			sort.SliceStable(run, func(i, j int) bool { return run[i].ActualMSD > run[j].ActualMSD })
		}
		start = end
	}
}

func phaseDifficulties(items []model.SessionPlanItem) (warmup, peak, cooldown float64) {
	var peakSeen bool
	for _, item := range items {
		switch item.Phase {
		case model.Warmup:
			warmup = item.ActualMSD
		case model.Cooldown:
			cooldown = item.ActualMSD
		default:
			if !peakSeen || item.ActualMSD > peak {
				peak = item.ActualMSD
				peakSeen = true
			}
		}
	}
	return warmup, peak, cooldown
}

// materializeCopies creates the indexed copies: a physical
// copy of each item's .osu file and its sibling assets under a new
// plan-index-encoded directory. A failed copy drops the item and reindexes
// the rest to stay gapless.
func (p Planner) materializeCopies(plan *model.SessionPlan, progress ProgressFunc) error {
	progress("indexing", 75)

	kept := make([]model.SessionPlanItem, 0, len(plan.Items))
	for _, item := range plan.Items {
		indexedPath, err := p.copyBeatmap(plan.ID, item)
		if err != nil {
			continue // drop: indexed copy creation failed for this item
		}
		item.IndexedPath = indexedPath
		kept = append(kept, item)
	}

	plan.Items = kept
	plan.Reindex()
	return nil
}

func (p Planner) copyBeatmap(planID string, item model.SessionPlanItem) (string, error) {
	relative, err := filepath.Rel(p.Songs.Root(), item.OriginalPath)
	if err != nil {
		relative = filepath.Base(item.OriginalPath)
	}

	siblings := p.Songs.FilesInFolder(relative)
	destDir := filepath.Join(p.OutputRoot, fmt.Sprintf("%s_%04d_%s", planID, item.Index, filepath.Base(filepath.Dir(relative))))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	var destOsuPath string
	for _, sibling := range siblings {
		src, err := p.Songs.Resolve(sibling)
		if err != nil {
			continue
		}
		dest := filepath.Join(destDir, filepath.Base(sibling))
		if err := copyFile(src, dest); err != nil {
			return "", err
		}
		if filepath.Ext(sibling) == ".osu" && src == item.OriginalPath {
			destOsuPath = dest
		}
	}

	if destOsuPath == "" {
		destOsuPath = filepath.Join(destDir, filepath.Base(item.OriginalPath))
		if err := copyFile(item.OriginalPath, destOsuPath); err != nil {
			return "", err
		}
	}

	return destOsuPath, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// writeCollection appends the plan's collection entry. Failure aborts the
// plan with an error but leaves the indexed copies in place.
func (p Planner) writeCollection(plan *model.SessionPlan, progress ProgressFunc) error {
	progress("writing collection", 90)

	hashes := make([]string, 0, len(plan.Items))
	for _, item := range plan.Items {
		hash, err := hashFile(item.IndexedPath)
		if err != nil {
			return fmt.Errorf("hash indexed copy %s: %w", item.IndexedPath, err)
		}
		hashes = append(hashes, hash)
	}

	plan.CollectionName = external.CollectionNameFor(plan.GeneratedAt)
	if err := p.Collection.WriteCollection(plan.CollectionName, hashes); err != nil {
		return fmt.Errorf("write collection: %w", err)
	}
	return nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}
