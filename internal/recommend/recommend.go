// Package recommend implements the Recommendation Service,
// dispatching on a RecommendationFocus tagged union to produce a
// RecommendationBatch.
package recommend

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/kaanreal/companella/internal/mmr"
	"github.com/kaanreal/companella/internal/model"
)

// Service produces recommendation batches per focus.
type Service struct {
	MMR     mmr.Calculator
	History mmr.HistoryLookup
	Rand    *rand.Rand // nil uses the package-level default source
}

func (s Service) shuffle(slice []model.RecommendedMap) {
	swap := func(i, j int) { slice[i], slice[j] = slice[j], slice[i] }
	if s.Rand != nil {
		s.Rand.Shuffle(len(slice), swap)
		return
	}
	rand.Shuffle(len(slice), swap)
}

// Recommend dispatches on focus.Kind and produces the corresponding batch.
func (s Service) Recommend(ctx context.Context, focus model.RecommendationFocus, trend model.SkillsTrendResult, limit int) (model.RecommendationBatch, error) {
	switch focus.Kind {
	case model.FocusSkillset:
		return s.recommendSkillset(ctx, focus, trend, limit)
	case model.FocusConsistency:
		return s.recommendConsistency(ctx, focus, trend, limit)
	case model.FocusPush:
		return s.recommendPush(ctx, focus, trend, limit)
	case model.FocusDeficitFixing:
		return s.recommendDeficitFixing(ctx, focus, trend, limit)
	default:
		return model.RecommendationBatch{}, fmt.Errorf("unknown recommendation focus kind %d", focus.Kind)
	}
}

func (s Service) recommendSkillset(ctx context.Context, focus model.RecommendationFocus, trend model.SkillsTrendResult, limit int) (model.RecommendationBatch, error) {
	results, err := s.MMR.FindMapsInOptimalRange(ctx, trend, 1.0, 0.2, &focus.Skillset, s.History, limit)
	if err != nil {
		return model.RecommendationBatch{}, err
	}

	batch := model.RecommendationBatch{Focus: focus}
	for _, r := range results {
		batch.Maps = append(batch.Maps, model.RecommendedMap{
			MapMmrResult: r,
			Reasoning:    fmt.Sprintf("matches your %s skill (map overall MSD %.1f)", focus.Skillset, r.Map.OverallMSD),
		})
	}
	return batch, nil
}

func (s Service) recommendConsistency(ctx context.Context, focus model.RecommendationFocus, trend model.SkillsTrendResult, limit int) (model.RecommendationBatch, error) {
	results, err := s.MMR.FindMapsInOptimalRange(ctx, trend, 0.9, 0.15, nil, s.History, limit*2)
	if err != nil {
		return model.RecommendationBatch{}, err
	}

	var played, unplayed []model.MapMmrResult
	for _, r := range results {
		if r.Map.PlayCount > 0 && r.Map.BestAccuracy < 98 {
			played = append(played, r)
		} else if r.Map.PlayCount == 0 {
			unplayed = append(unplayed, r)
		}
	}

	sort.Slice(played, func(i, j int) bool { return played[i].Map.BestAccuracy > played[j].Map.BestAccuracy })
	sort.Slice(unplayed, func(i, j int) bool {
		return absDiff(unplayed[i].RelativeDifficulty, 0.9) < absDiff(unplayed[j].RelativeDifficulty, 0.9)
	})

	half := limit / 2
	batch := model.RecommendationBatch{Focus: focus}
	for _, r := range firstN(played, half) {
		batch.Maps = append(batch.Maps, model.RecommendedMap{
			MapMmrResult: r,
			Reasoning:    fmt.Sprintf("your best accuracy here is %.1f%%, room to tighten consistency", r.Map.BestAccuracy),
		})
	}
	for _, r := range firstN(unplayed, limit-half) {
		batch.Maps = append(batch.Maps, model.RecommendedMap{
			MapMmrResult: r,
			Reasoning:    "unplayed, close to your consistency target",
		})
	}
	return batch, nil
}

func (s Service) recommendPush(ctx context.Context, focus model.RecommendationFocus, trend model.SkillsTrendResult, limit int) (model.RecommendationBatch, error) {
	results, err := s.MMR.FindMapsInOptimalRange(ctx, trend, 1.15, 0.1, nil, s.History, limit*2)
	if err != nil {
		return model.RecommendationBatch{}, err
	}

	var unplayed, played []model.MapMmrResult
	for _, r := range results {
		if r.Map.PlayCount == 0 {
			unplayed = append(unplayed, r)
		} else {
			played = append(played, r)
		}
	}
	sort.Slice(unplayed, func(i, j int) bool {
		return absDiff(unplayed[i].RelativeDifficulty, 1.15) < absDiff(unplayed[j].RelativeDifficulty, 1.15)
	})
	sort.Slice(played, func(i, j int) bool {
		return absDiff(played[i].RelativeDifficulty, 1.15) < absDiff(played[j].RelativeDifficulty, 1.15)
	})

	ordered := append(unplayed, played...)
	batch := model.RecommendationBatch{Focus: focus}
	for _, r := range firstN(ordered, limit) {
		batch.Maps = append(batch.Maps, model.RecommendedMap{
			MapMmrResult: r,
			Reasoning:    fmt.Sprintf("%.0f%% above your current skill, a stretch target", (r.RelativeDifficulty-1)*100),
		})
	}
	return batch, nil
}

func (s Service) recommendDeficitFixing(ctx context.Context, focus model.RecommendationFocus, trend model.SkillsTrendResult, limit int) (model.RecommendationBatch, error) {
	weakest := weakestSkillsets(trend, 3)

	perSkillset := limit / max(1, len(weakest))
	batch := model.RecommendationBatch{Focus: focus}

	for _, sk := range weakest {
		sk := sk
		ratio := 0.9
		if _, ok := trend.CurrentSkillLevels[sk]; ok {
			ratio = 1.1
		}

		results, err := s.MMR.FindMapsInOptimalRange(ctx, trend, ratio, 0.15, &sk, s.History, perSkillset)
		if err != nil {
			return model.RecommendationBatch{}, err
		}
		for _, r := range results {
			batch.Maps = append(batch.Maps, model.RecommendedMap{
				MapMmrResult: r,
				Reasoning:    fmt.Sprintf("targets your weaker %s skillset", sk),
			})
		}
	}

	s.shuffle(batch.Maps)
	return batch, nil
}

// weakestSkillsets ranks the full closed skillset set by the player's
// current level, with never-played skillsets (no CurrentSkillLevels entry)
// treated as the weakest of all. Unlike the trend analyzer's own ranking,
// which omits skillsets with zero plays, deficit fixing needs those
// included: a skillset the player has never touched is the deficit, and
// it takes the introductory 0.9 target rather than the 1.1 one.
func weakestSkillsets(trend model.SkillsTrendResult, k int) []model.Skillset {
	ranked := make([]model.Skillset, len(model.Skillsets))
	copy(ranked, model.Skillsets)
	sort.SliceStable(ranked, func(i, j int) bool {
		return trend.CurrentSkillLevels[ranked[i]] < trend.CurrentSkillLevels[ranked[j]]
	})
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func firstN(s []model.MapMmrResult, n int) []model.MapMmrResult {
	if n < 0 {
		n = 0
	}
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}
