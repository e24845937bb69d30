package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/kaanreal/companella/internal/model"
)

const mapsSchema = `
CREATE TABLE IF NOT EXISTS maps (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	beatmap_path TEXT NOT NULL UNIQUE,
	key_count INTEGER NOT NULL,
	overall_msd REAL NOT NULL,
	dominant_skillset TEXT NOT NULL,
	display_name TEXT NOT NULL,
	play_count INTEGER NOT NULL DEFAULT 0,
	best_accuracy REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS map_rate_scores (
	map_id INTEGER NOT NULL REFERENCES maps(id) ON DELETE CASCADE,
	rate REAL NOT NULL,
	stream REAL NOT NULL,
	jumpstream REAL NOT NULL,
	handstream REAL NOT NULL,
	stamina REAL NOT NULL,
	jackspeed REAL NOT NULL,
	chordjack REAL NOT NULL,
	technical REAL NOT NULL,
	overall REAL NOT NULL,
	PRIMARY KEY (map_id, rate)
);
`

// MapStore persists indexed beatmaps and their per-rate MSD scores.
type MapStore struct {
	db *sqlx.DB
}

// OpenMapStore opens (creating if needed) the maps database at path. The
// shared cache is on: the background indexer writes this database while
// recommendation and planner queries read it.
func OpenMapStore(path string) (*MapStore, error) {
	db, err := openShared(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(mapsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create maps schema: %w", err)
	}
	return &MapStore{db: db}, nil
}

func (s *MapStore) Close() error { return s.db.Close() }

type mapRow struct {
	ID               int64   `db:"id"`
	BeatmapPath      string  `db:"beatmap_path"`
	KeyCount         int     `db:"key_count"`
	OverallMSD       float64 `db:"overall_msd"`
	DominantSkillset string  `db:"dominant_skillset"`
	DisplayName      string  `db:"display_name"`
	PlayCount        int     `db:"play_count"`
	BestAccuracy     float64 `db:"best_accuracy"`
}

type rateScoreRow struct {
	MapID      int64   `db:"map_id"`
	Rate       float64 `db:"rate"`
	Stream     float64 `db:"stream"`
	Jumpstream float64 `db:"jumpstream"`
	Handstream float64 `db:"handstream"`
	Stamina    float64 `db:"stamina"`
	Jackspeed  float64 `db:"jackspeed"`
	Chordjack  float64 `db:"chordjack"`
	Technical  float64 `db:"technical"`
	Overall    float64 `db:"overall"`
}

// Upsert inserts or replaces the indexed map at BeatmapPath, along with its
// full MsdScores rate mapping, in one transaction.
func (s *MapStore) Upsert(ctx context.Context, m model.IndexedMap) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin map upsert: %w", err)
	}
	defer tx.Rollback()

	row := mapRow{
		BeatmapPath:      m.BeatmapPath,
		KeyCount:         m.KeyCount,
		OverallMSD:       m.OverallMSD,
		DominantSkillset: string(m.DominantSkillset),
		DisplayName:      m.DisplayName,
		PlayCount:        m.PlayCount,
		BestAccuracy:     m.BestAccuracy,
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO maps (beatmap_path, key_count, overall_msd, dominant_skillset, display_name, play_count, best_accuracy)
		VALUES (:beatmap_path, :key_count, :overall_msd, :dominant_skillset, :display_name, :play_count, :best_accuracy)
		ON CONFLICT(beatmap_path) DO UPDATE SET
			key_count=excluded.key_count, overall_msd=excluded.overall_msd,
			dominant_skillset=excluded.dominant_skillset, display_name=excluded.display_name,
			play_count=excluded.play_count, best_accuracy=excluded.best_accuracy
	`, row)
	if err != nil {
		return fmt.Errorf("upsert map: %w", err)
	}

	// LastInsertId is not updated when ON CONFLICT takes the update path, so
	// the id is always resolved by path.
	var mapID int64
	if err := tx.GetContext(ctx, &mapID, `SELECT id FROM maps WHERE beatmap_path = ?`, m.BeatmapPath); err != nil {
		return fmt.Errorf("resolve map id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM map_rate_scores WHERE map_id = ?`, mapID); err != nil {
		return fmt.Errorf("clear rate scores: %w", err)
	}
	for rate, scores := range m.MsdScores {
		rr := rateScoreRow{
			MapID: mapID, Rate: float64(rate),
			Stream: scores.Stream, Jumpstream: scores.Jumpstream, Handstream: scores.Handstream,
			Stamina: scores.Stamina, Jackspeed: scores.Jackspeed, Chordjack: scores.Chordjack,
			Technical: scores.Technical, Overall: scores.Overall,
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO map_rate_scores (map_id, rate, stream, jumpstream, handstream, stamina, jackspeed, chordjack, technical, overall)
			VALUES (:map_id, :rate, :stream, :jumpstream, :handstream, :stamina, :jackspeed, :chordjack, :technical, :overall)
		`, rr); err != nil {
			return fmt.Errorf("insert rate score: %w", err)
		}
	}

	return tx.Commit()
}

// ByPath looks up the indexed map for beatmapPath; paths are unique.
func (s *MapStore) ByPath(ctx context.Context, beatmapPath string) (model.IndexedMap, bool, error) {
	var row mapRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM maps WHERE beatmap_path = ?`, beatmapPath); err != nil {
		if err == sql.ErrNoRows {
			return model.IndexedMap{}, false, nil
		}
		return model.IndexedMap{}, false, fmt.Errorf("lookup map %s: %w", beatmapPath, err)
	}

	m, err := s.hydrate(ctx, row)
	if err != nil {
		return model.IndexedMap{}, false, err
	}
	return m, true, nil
}

func (s *MapStore) hydrate(ctx context.Context, row mapRow) (model.IndexedMap, error) {
	var rateRows []rateScoreRow
	if err := s.db.SelectContext(ctx, &rateRows, `SELECT * FROM map_rate_scores WHERE map_id = ?`, row.ID); err != nil {
		return model.IndexedMap{}, fmt.Errorf("load rate scores: %w", err)
	}

	scores := make(map[model.Rate]model.SkillsetScores, len(rateRows))
	for _, rr := range rateRows {
		scores[model.Rate(rr.Rate)] = model.SkillsetScores{
			Stream: rr.Stream, Jumpstream: rr.Jumpstream, Handstream: rr.Handstream,
			Stamina: rr.Stamina, Jackspeed: rr.Jackspeed, Chordjack: rr.Chordjack,
			Technical: rr.Technical, Overall: rr.Overall,
		}
	}

	return model.IndexedMap{
		BeatmapPath:      row.BeatmapPath,
		KeyCount:         row.KeyCount,
		OverallMSD:       row.OverallMSD,
		DominantSkillset: model.Skillset(row.DominantSkillset),
		MsdScores:        scores,
		DisplayName:      row.DisplayName,
		PlayCount:        row.PlayCount,
		BestAccuracy:     row.BestAccuracy,
	}, nil
}

// RecordPlayStats bumps a map's play count and raises its best accuracy
// after a completed play — the per-player play-stats write path.
// A beatmap path with no indexed row is a no-op, not an error: plays on
// maps the indexer hasn't reached yet are still valid plays.
func (s *MapStore) RecordPlayStats(ctx context.Context, beatmapPath string, accuracy float64) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE maps SET play_count = play_count + 1, best_accuracy = MAX(best_accuracy, ?)
		WHERE beatmap_path = ?
	`, accuracy, beatmapPath); err != nil {
		return fmt.Errorf("record play stats for %s: %w", beatmapPath, err)
	}
	return nil
}

// Count returns the number of indexed maps.
func (s *MapStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM maps`); err != nil {
		return 0, fmt.Errorf("count maps: %w", err)
	}
	return n, nil
}

// OrderBy selects the Search result ordering.
type OrderBy int

const (
	OrderRandom OrderBy = iota
	OrderMsdAsc
	OrderMsdDesc
)

// SearchCriteria is the Maps store query interface.
type SearchCriteria struct {
	MinMSD   *float64
	MaxMSD   *float64
	Skillset *model.Skillset
	KeyCount *int
	Limit    int
	OrderBy  OrderBy
}

// Search returns indexed maps matching criteria. When Skillset is set, MSD
// bounds and ordering apply to that skillset's value rather than
// OverallMSD.
func (s *MapStore) Search(ctx context.Context, criteria SearchCriteria) ([]model.IndexedMap, error) {
	msdExpr := "overall_msd"
	join := ""
	if criteria.Skillset != nil {
		join = "LEFT JOIN map_rate_scores mrs ON mrs.map_id = maps.id AND mrs.rate = 1.0"
		msdExpr = skillsetColumn(*criteria.Skillset)
	}

	var where []string
	var args []interface{}

	if criteria.MinMSD != nil {
		where = append(where, msdExpr+" >= ?")
		args = append(args, *criteria.MinMSD)
	}
	if criteria.MaxMSD != nil {
		where = append(where, msdExpr+" <= ?")
		args = append(args, *criteria.MaxMSD)
	}
	if criteria.KeyCount != nil {
		where = append(where, "key_count = ?")
		args = append(args, *criteria.KeyCount)
	}

	query := "SELECT maps.* FROM maps " + join
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	switch criteria.OrderBy {
	case OrderMsdAsc:
		query += " ORDER BY " + msdExpr + " ASC"
	case OrderMsdDesc:
		query += " ORDER BY " + msdExpr + " DESC"
	default:
		query += " ORDER BY RANDOM()"
	}

	if criteria.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", criteria.Limit)
	}

	var rows []mapRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("search maps: %w", err)
	}

	maps := make([]model.IndexedMap, 0, len(rows))
	for _, row := range rows {
		m, err := s.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, nil
}

func skillsetColumn(skillset model.Skillset) string {
	for _, s := range model.Skillsets {
		if s == skillset {
			return "mrs." + string(s)
		}
	}
	return "overall_msd"
}
