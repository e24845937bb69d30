// Package skill implements the Skill-Trend Analyzer: a weighted
// central tendency of peak MSD per skillset, over a rolling window of plays.
package skill

import (
	"github.com/kaanreal/companella/internal/model"
)

// Analyzer computes SkillsTrendResult from a set of plays. It holds no
// state of its own; the window is supplied by the caller.
type Analyzer struct{}

// Analyze computes the trend over plays. An empty slice yields a zero-value
// result with TotalPlays == 0.
func (Analyzer) Analyze(plays []model.Play) model.SkillsTrendResult {
	result := model.SkillsTrendResult{
		CurrentSkillLevels: make(map[model.Skillset]float64, len(model.Skillsets)),
		TotalPlays:         len(plays),
		AnalysisWindow:     len(plays),
	}
	if len(plays) == 0 {
		return result
	}

	var overallWeightedSum, overallWeightSum float64
	perSkillset := make(map[model.Skillset][2]float64, len(model.Skillsets)) // [weightedSum, weightSum]

	for _, p := range plays {
		weight := p.Accuracy / 100
		overallWeightedSum += p.PeakMSD * weight
		overallWeightSum += weight

		acc := perSkillset[p.DominantSkillset]
		acc[0] += p.PeakMSD * weight
		acc[1] += weight
		perSkillset[p.DominantSkillset] = acc
	}

	if overallWeightSum > 0 {
		result.OverallSkillLevel = overallWeightedSum / overallWeightSum
	}

	for skillset, acc := range perSkillset {
		if acc[1] > 0 {
			result.CurrentSkillLevels[skillset] = acc[0] / acc[1]
		}
	}

	return result
}

// GetWeakestSkillsets returns the k skillsets with the lowest
// CurrentSkillLevels, omitting skillsets with zero plays, ascending.
func GetWeakestSkillsets(result model.SkillsTrendResult, k int) []model.Skillset {
	return rankedSkillsets(result, k, true)
}

// GetStrongestSkillsets returns the k skillsets with the highest
// CurrentSkillLevels, omitting skillsets with zero plays, descending.
func GetStrongestSkillsets(result model.SkillsTrendResult, k int) []model.Skillset {
	return rankedSkillsets(result, k, false)
}

func rankedSkillsets(result model.SkillsTrendResult, k int, ascending bool) []model.Skillset {
	present := make([]model.Skillset, 0, len(result.CurrentSkillLevels))
	for _, s := range model.Skillsets {
		if _, ok := result.CurrentSkillLevels[s]; ok {
			present = append(present, s)
		}
	}

	for i := 1; i < len(present); i++ {
		for j := i; j > 0; j-- {
			a, b := result.CurrentSkillLevels[present[j-1]], result.CurrentSkillLevels[present[j]]
			swap := a > b
			if !ascending {
				swap = a < b
			}
			if !swap {
				break
			}
			present[j-1], present[j] = present[j], present[j-1]
		}
	}

	if k < len(present) {
		present = present[:k]
	}
	return present
}
