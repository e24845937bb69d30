// Package indexer is the Maps store's background writer: it walks the
// Songs-folder index, runs the
// MSD tool over every beatmap the store hasn't scored yet, and upserts the
// results. It runs as an off-loop task; like the other long scans it is deliberately not cancellable mid-map — each upsert
// is its own transaction, so stopping between maps loses nothing.
package indexer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/kaanreal/companella/internal/logevent"
	"github.com/kaanreal/companella/internal/model"
	"github.com/kaanreal/companella/internal/songsdir"
	"github.com/kaanreal/companella/internal/store"
)

// RateScorer runs the MSD tool across every supported rate for one beatmap
// (the batch path; the batch timeout lives behind it).
type RateScorer interface {
	ScoreAllRates(ctx context.Context, beatmapPath string) (map[model.Rate]model.SkillsetScores, error)
}

// Progress reports indexing progress: done counts beatmaps fully processed
// (scored or skipped), total the size of the work list.
type Progress func(status string, done, total int)

// Indexer scans the Songs index into the Maps store.
type Indexer struct {
	Maps   *store.MapStore
	Songs  *songsdir.Index
	Scorer RateScorer
	Log    *logevent.Logger
}

// Run indexes every .osu file under the Songs folder that has no MSD
// scores yet. MSD-tool failures follow the transient-external policy:
// the map is recorded without scores and the scan continues. Returns the
// number of maps newly scored.
func (ix Indexer) Run(ctx context.Context, progress Progress) (int, error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}

	files := ix.Songs.OsuFiles()
	progress("scanning songs folder", 0, len(files))

	scored := 0
	for done, relative := range files {
		absolute, err := ix.Songs.Resolve(relative)
		if err != nil {
			progress("indexing", done+1, len(files))
			continue
		}

		existing, found, err := ix.Maps.ByPath(ctx, absolute)
		if err != nil {
			return scored, err
		}
		if found && len(existing.MsdScores) > 0 {
			progress("indexing", done+1, len(files))
			continue
		}

		m := existing
		if !found {
			m = model.IndexedMap{
				BeatmapPath: absolute,
				DisplayName: displayName(relative),
			}
		}

		scores, err := ix.Scorer.ScoreAllRates(ctx, absolute)
		if err != nil {
			ix.Log.Info("msd batch failed for %s: %v", relative, err)
		} else if len(scores) > 0 {
			m.MsdScores = scores
			if base, ok := scores[model.BaseRate]; ok {
				m.OverallMSD = base.Overall
				m.DominantSkillset = base.Dominant()
			}
			scored++
		}

		if err := ix.Maps.Upsert(ctx, m); err != nil {
			return scored, err
		}
		progress("indexing", done+1, len(files))
	}

	ix.Log.Info("library index pass complete: %s beatmaps seen, %s newly scored",
		humanize.Comma(int64(len(files))), humanize.Comma(int64(scored)))
	progress("index complete", len(files), len(files))
	return scored, nil
}

// displayName derives a human-readable name from the beatmap's relative
// path: the .osu filename without its extension, which in the game's own
// layout already carries "Artist - Title [Difficulty]".
func displayName(relative string) string {
	base := filepath.Base(relative)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
