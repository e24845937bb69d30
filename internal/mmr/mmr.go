// Package mmr implements the Map-MMR Calculator: relates a map's
// difficulty to a player's current skill for a skillset, and finds maps
// sitting in a target ratio band around that skill.
package mmr

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kaanreal/companella/internal/model"
	"github.com/kaanreal/companella/internal/store"
)

// AccuracyHistory is the player's recorded performance on a single map,
// supplied by the caller from the Sessions store.
type AccuracyHistory struct {
	AverageAccuracy float64
	PlayCount       int
}

// Calculator computes MapMmrResult for a map against a player's trend.
type Calculator struct {
	Maps *store.MapStore
}

// Compute scores one map against the player's trend. skillset is
// optional; when nil, the
// map's own dominant skillset is used.
func Compute(m model.IndexedMap, trend model.SkillsTrendResult, history AccuracyHistory, skillset *model.Skillset) model.MapMmrResult {
	target := m.DominantSkillset
	if skillset != nil {
		target = *skillset
	}

	baseMSD := m.OverallMSD
	if scores, ok := m.BaseScores(); ok {
		baseMSD = scores.ValueFor(target)
	}

	playerSkill := trend.OverallSkillLevel
	if level, ok := trend.CurrentSkillLevels[target]; ok && level > 0 {
		playerSkill = level
	}

	var adjustment float64
	switch {
	case history.AverageAccuracy > 95:
		adjustment = -0.5 * (history.AverageAccuracy - 95) / 5
	case history.AverageAccuracy > 0 && history.AverageAccuracy < 90:
		adjustment = 0.5 * (90 - history.AverageAccuracy) / 10
	}

	mmrValue := 0.6*baseMSD + 0.4*(baseMSD+adjustment)

	relativeDifficulty := 1.0
	if playerSkill > 0 {
		relativeDifficulty = mmrValue / playerSkill
	}

	confidence := 0.0
	if m.HasRate(model.BaseRate) {
		confidence += 0.4
	}
	confidence += math.Min(0.3, 0.1*float64(history.PlayCount))
	switch {
	case trend.TotalPlays >= 10:
		confidence += 0.3
	case trend.TotalPlays >= 5:
		confidence += 0.15
	}
	confidence = math.Min(1.0, confidence)

	return model.MapMmrResult{
		Map:                m,
		MMR:                mmrValue,
		RelativeDifficulty: relativeDifficulty,
		Confidence:         confidence,
	}
}

// HistoryLookup resolves a player's accuracy history on a beatmap, supplied
// by the caller (kept out of this package so it stays store-agnostic beyond
// the Maps store itself).
type HistoryLookup func(ctx context.Context, beatmapPath string) (AccuracyHistory, error)

// FindMapsInOptimalRange runs the optimal-range query: maps whose
// MSD falls in [player_skill*ratio*(1-tol), player_skill*(1+tol)*ratio],
// filtered post-hoc to those whose computed relative_difficulty actually
// lands within ratio+-tol, sorted by closeness to ratio.
func (c Calculator) FindMapsInOptimalRange(ctx context.Context, trend model.SkillsTrendResult, targetRatio, tolerance float64, skillset *model.Skillset, history HistoryLookup, limit int) ([]model.MapMmrResult, error) {
	target := model.Skillset("")
	playerSkill := trend.OverallSkillLevel
	if skillset != nil {
		target = *skillset
		if level, ok := trend.CurrentSkillLevels[target]; ok && level > 0 {
			playerSkill = level
		}
	}

	minMSD := playerSkill * targetRatio * (1 - tolerance)
	maxMSD := playerSkill * (1 + tolerance) * targetRatio

	criteria := store.SearchCriteria{
		MinMSD:  &minMSD,
		MaxMSD:  &maxMSD,
		OrderBy: store.OrderRandom,
		Limit:   limit * 4, // overfetch; post-filter narrows by relative_difficulty
	}
	if skillset != nil {
		criteria.Skillset = skillset
	}

	candidates, err := c.Maps.Search(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("search optimal range: %w", err)
	}

	var results []model.MapMmrResult
	for _, m := range candidates {
		hist := AccuracyHistory{}
		if history != nil {
			hist, err = history(ctx, m.BeatmapPath)
			if err != nil {
				return nil, fmt.Errorf("accuracy history for %s: %w", m.BeatmapPath, err)
			}
		}

		var sk *model.Skillset
		if skillset != nil {
			sk = skillset
		}
		result := Compute(m, trend, hist, sk)
		if result.RelativeDifficulty < targetRatio-tolerance || result.RelativeDifficulty > targetRatio+tolerance {
			continue
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		return math.Abs(results[i].RelativeDifficulty-targetRatio) < math.Abs(results[j].RelativeDifficulty-targetRatio)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
