package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kaanreal/companella/internal/model"
)

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL,
	total_plays INTEGER NOT NULL,
	avg_accuracy REAL NOT NULL,
	best_accuracy REAL NOT NULL,
	worst_accuracy REAL NOT NULL,
	avg_msd REAL NOT NULL,
	total_time_played_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS session_plays (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	beatmap_path TEXT NOT NULL,
	accuracy REAL NOT NULL,
	session_time_ns INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	peak_msd REAL NOT NULL,
	dominant_skillset TEXT NOT NULL,
	rate REAL NOT NULL,
	pause_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_plays_session_id ON session_plays(session_id);
`

// SessionStore persists completed sessions and their plays. A session with zero plays is never written.
type SessionStore struct {
	db *sqlx.DB
}

// OpenSessionStore opens (creating if needed) the sessions database at path.
func OpenSessionStore(path string) (*SessionStore, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sessionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions schema: %w", err)
	}
	return &SessionStore{db: db}, nil
}

func (s *SessionStore) Close() error { return s.db.Close() }

type sessionRow struct {
	ID                string  `db:"id"`
	StartTime         int64   `db:"start_time"`
	EndTime           int64   `db:"end_time"`
	TotalPlays        int     `db:"total_plays"`
	AvgAccuracy       float64 `db:"avg_accuracy"`
	BestAccuracy      float64 `db:"best_accuracy"`
	WorstAccuracy     float64 `db:"worst_accuracy"`
	AvgMSD            float64 `db:"avg_msd"`
	TotalTimePlayedNs int64   `db:"total_time_played_ns"`
}

type playRow struct {
	SessionID        string  `db:"session_id"`
	BeatmapPath      string  `db:"beatmap_path"`
	Accuracy         float64 `db:"accuracy"`
	SessionTimeNs    int64   `db:"session_time_ns"`
	RecordedAt       int64   `db:"recorded_at"`
	PeakMSD          float64 `db:"peak_msd"`
	DominantSkillset string  `db:"dominant_skillset"`
	Rate             float64 `db:"rate"`
	PauseCount       int     `db:"pause_count"`
}

// Save writes a completed session and all its plays in a single
// transaction: insert session, insert all plays, commit or rollback
// atomically. An empty session is a no-op, not an error.
func (s *SessionStore) Save(ctx context.Context, session model.Session) (string, error) {
	if session.TotalPlays == 0 {
		return "", nil
	}

	id := session.ID
	if id == "" {
		id = uuid.NewString()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin session write: %w", err)
	}
	defer tx.Rollback()

	row := sessionRow{
		ID:                id,
		StartTime:         session.StartTime.UnixNano(),
		EndTime:           session.EndTime.UnixNano(),
		TotalPlays:        session.TotalPlays,
		AvgAccuracy:       session.AvgAccuracy,
		BestAccuracy:      session.BestAccuracy,
		WorstAccuracy:     session.WorstAccuracy,
		AvgMSD:            session.AvgMSD,
		TotalTimePlayedNs: int64(session.TotalTimePlayed),
	}
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO sessions (id, start_time, end_time, total_plays, avg_accuracy, best_accuracy, worst_accuracy, avg_msd, total_time_played_ns)
		VALUES (:id, :start_time, :end_time, :total_plays, :avg_accuracy, :best_accuracy, :worst_accuracy, :avg_msd, :total_time_played_ns)
	`, row); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	for _, p := range session.Plays {
		prow := playRow{
			SessionID:        id,
			BeatmapPath:      p.BeatmapPath,
			Accuracy:         p.Accuracy,
			SessionTimeNs:    int64(p.SessionTime),
			RecordedAt:       p.RecordedAt.UnixNano(),
			PeakMSD:          p.PeakMSD,
			DominantSkillset: string(p.DominantSkillset),
			Rate:             p.Rate,
			PauseCount:       p.PauseCount,
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO session_plays (session_id, beatmap_path, accuracy, session_time_ns, recorded_at, peak_msd, dominant_skillset, rate, pause_count)
			VALUES (:session_id, :beatmap_path, :accuracy, :session_time_ns, :recorded_at, :peak_msd, :dominant_skillset, :rate, :pause_count)
		`, prow); err != nil {
			return "", fmt.Errorf("insert play: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit session write: %w", err)
	}
	return id, nil
}

// Sessions returns every persisted session's denormalized row, most recent
// first, without hydrating plays.
func (s *SessionStore) Sessions(ctx context.Context) ([]model.Session, error) {
	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM sessions ORDER BY start_time DESC
	`); err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	sessions := make([]model.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, model.Session{
			ID:              r.ID,
			StartTime:       time.Unix(0, r.StartTime),
			EndTime:         time.Unix(0, r.EndTime),
			TotalPlays:      r.TotalPlays,
			AvgAccuracy:     r.AvgAccuracy,
			BestAccuracy:    r.BestAccuracy,
			WorstAccuracy:   r.WorstAccuracy,
			AvgMSD:          r.AvgMSD,
			TotalTimePlayed: time.Duration(r.TotalTimePlayedNs),
		})
	}
	return sessions, nil
}

// PlaysForSession returns one session's plays ordered by session_time
// ascending.
func (s *SessionStore) PlaysForSession(ctx context.Context, sessionID string) ([]model.Play, error) {
	var rows []playRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT session_id, beatmap_path, accuracy, session_time_ns, recorded_at, peak_msd, dominant_skillset, rate, pause_count
		FROM session_plays WHERE session_id = ? ORDER BY session_time_ns ASC
	`, sessionID); err != nil {
		return nil, fmt.Errorf("query session plays: %w", err)
	}
	return toPlays(rows), nil
}

// DeleteSession removes a session; its plays cascade.
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// MapAccuracyHistory aggregates the player's recorded plays on one beatmap
// across all sessions — the accuracy-history input to the Map-MMR
// Calculator's performance adjustment. A never-played map
// returns (0, 0, nil).
func (s *SessionStore) MapAccuracyHistory(ctx context.Context, beatmapPath string) (avgAccuracy float64, playCount int, err error) {
	row := struct {
		Avg   *float64 `db:"avg"`
		Count int      `db:"count"`
	}{}
	if err := s.db.GetContext(ctx, &row, `
		SELECT AVG(accuracy) AS avg, COUNT(*) AS count FROM session_plays WHERE beatmap_path = ?
	`, beatmapPath); err != nil {
		return 0, 0, fmt.Errorf("query accuracy history for %s: %w", beatmapPath, err)
	}
	if row.Avg != nil {
		avgAccuracy = *row.Avg
	}
	return avgAccuracy, row.Count, nil
}

// AllPlays returns every play ever recorded, across all sessions, ordered
// by recorded_at ascending — the default "rolling window = all plays" input
// to the Skill-Trend Analyzer.
func (s *SessionStore) AllPlays(ctx context.Context) ([]model.Play, error) {
	var rows []playRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT session_id, beatmap_path, accuracy, session_time_ns, recorded_at, peak_msd, dominant_skillset, rate, pause_count
		FROM session_plays ORDER BY recorded_at ASC
	`); err != nil {
		return nil, fmt.Errorf("query plays: %w", err)
	}
	return toPlays(rows), nil
}

// RecentPlays returns the last limit plays, most recent last, for bounded
// analysis windows.
func (s *SessionStore) RecentPlays(ctx context.Context, limit int) ([]model.Play, error) {
	var rows []playRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT session_id, beatmap_path, accuracy, session_time_ns, recorded_at, peak_msd, dominant_skillset, rate, pause_count
		FROM session_plays ORDER BY recorded_at DESC LIMIT ?
	`, limit); err != nil {
		return nil, fmt.Errorf("query recent plays: %w", err)
	}
	plays := toPlays(rows)
	for i, j := 0, len(plays)-1; i < j; i, j = i+1, j-1 {
		plays[i], plays[j] = plays[j], plays[i]
	}
	return plays, nil
}

func toPlays(rows []playRow) []model.Play {
	plays := make([]model.Play, 0, len(rows))
	for _, r := range rows {
		plays = append(plays, model.Play{
			BeatmapPath:      r.BeatmapPath,
			Accuracy:         r.Accuracy,
			SessionTime:      time.Duration(r.SessionTimeNs),
			RecordedAt:       time.Unix(0, r.RecordedAt),
			PeakMSD:          r.PeakMSD,
			DominantSkillset: model.Skillset(r.DominantSkillset),
			Rate:             r.Rate,
			PauseCount:       r.PauseCount,
		})
	}
	return plays
}
