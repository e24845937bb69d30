package model

// FocusKind tags the variant of RecommendationFocus. Dispatch is on this
// tag rather than a type hierarchy with one focus type per variant.
type FocusKind int

const (
	FocusSkillset FocusKind = iota
	FocusConsistency
	FocusPush
	FocusDeficitFixing
)

// RecommendationFocus selects what the Recommendation Service optimizes
// for. Skillset is only meaningful when Kind == FocusSkillset.
type RecommendationFocus struct {
	Kind     FocusKind
	Skillset Skillset
}

// RecommendedMap pairs an MMR result with the human-readable reasoning the
// Recommendation Service produced for surfacing it.
type RecommendedMap struct {
	MapMmrResult
	Reasoning string
}

// RecommendationBatch is the Recommendation Service's output for one focus.
type RecommendationBatch struct {
	Focus RecommendationFocus
	Maps  []RecommendedMap
}
