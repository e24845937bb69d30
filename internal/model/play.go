package model

import "time"

// Play is one completed attempt at a beatmap. Immutable once written.
type Play struct {
	BeatmapPath      string
	Accuracy         float64 // 0-100
	SessionTime      time.Duration
	RecordedAt       time.Time
	PeakMSD          float64
	DominantSkillset Skillset
	Rate             float64
	PauseCount       int
}

// Session is a bounded practice run: an ordered list of plays plus
// denormalized aggregate stats computed at write time.
type Session struct {
	ID              string
	StartTime       time.Time
	EndTime         time.Time
	Plays           []Play
	TotalPlays      int
	AvgAccuracy     float64
	BestAccuracy    float64
	WorstAccuracy   float64
	AvgMSD          float64
	TotalTimePlayed time.Duration
}

// NewSession computes a Session's denormalized aggregates from its plays.
// Plays must already be ordered by SessionTime ascending; an empty slice
// yields a zero-value Session that callers must not persist.
func NewSession(id string, start, end time.Time, plays []Play) Session {
	s := Session{
		ID:        id,
		StartTime: start,
		EndTime:   end,
		Plays:     plays,
	}
	if len(plays) == 0 {
		return s
	}

	s.TotalPlays = len(plays)
	s.BestAccuracy = plays[0].Accuracy
	s.WorstAccuracy = plays[0].Accuracy

	var accSum, msdSum float64
	var timeSum time.Duration
	for _, p := range plays {
		accSum += p.Accuracy
		msdSum += p.PeakMSD
		timeSum += p.SessionTime
		if p.Accuracy > s.BestAccuracy {
			s.BestAccuracy = p.Accuracy
		}
		if p.Accuracy < s.WorstAccuracy {
			s.WorstAccuracy = p.Accuracy
		}
	}
	s.AvgAccuracy = accSum / float64(len(plays))
	s.AvgMSD = msdSum / float64(len(plays))
	s.TotalTimePlayed = timeSum
	return s
}
