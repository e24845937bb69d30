package model

// Rate is an audio-playback multiplier. Valid values step by 0.1 across
// [0.7, 2.0]; 1.0 is the unmodified rate.
type Rate float64

const BaseRate Rate = 1.0

// IndexedMap is one on-disk beatmap tracked by the maps store.
type IndexedMap struct {
	BeatmapPath      string
	KeyCount         int
	OverallMSD       float64
	DominantSkillset Skillset
	MsdScores        map[Rate]SkillsetScores
	DisplayName      string
	PlayCount        int
	BestAccuracy     float64
}

// HasRate reports whether the map has an MSD entry for the given rate.
func (m IndexedMap) HasRate(rate Rate) bool {
	_, ok := m.MsdScores[rate]
	return ok
}

// BaseScores returns the 1.0x entry. Invariant: a non-empty MsdScores map
// always contains it.
func (m IndexedMap) BaseScores() (SkillsetScores, bool) {
	scores, ok := m.MsdScores[BaseRate]
	return scores, ok
}
