// Package approot wires every capability the core depends on. Cyclic
// references between services (Tracker -> MSD tool -> Store; Planner ->
// Indexer -> Store -> Planner) are broken by depending only on narrow
// capability interfaces and letting this package own construction order.
package approot

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kaanreal/companella/internal/clock"
	"github.com/kaanreal/companella/internal/config"
	"github.com/kaanreal/companella/internal/external"
	"github.com/kaanreal/companella/internal/indexer"
	"github.com/kaanreal/companella/internal/logevent"
	"github.com/kaanreal/companella/internal/mmr"
	"github.com/kaanreal/companella/internal/planner"
	"github.com/kaanreal/companella/internal/process"
	"github.com/kaanreal/companella/internal/recommend"
	"github.com/kaanreal/companella/internal/skill"
	"github.com/kaanreal/companella/internal/songsdir"
	"github.com/kaanreal/companella/internal/store"
	"github.com/kaanreal/companella/internal/telemetry"
	"github.com/kaanreal/companella/internal/tracker"
)

// App owns every wired capability. Nothing here is a package-level global
// ; callers pass *App through explicitly.
type App struct {
	Settings config.Settings
	Dans     config.DansConfig
	Clock    clock.Clock
	Log      *logevent.Logger

	Reader *process.Reader

	Sessions *store.SessionStore
	Maps     *store.MapStore

	Tracker   *tracker.Tracker
	Skill     skill.Analyzer
	MMR       mmr.Calculator
	Recommend recommend.Service
	Planner   planner.Planner
	Indexer   *indexer.Indexer
	Telemetry *telemetry.Queue

	MsdTool      external.MsdTool
	SettingsPath string
}

// Paths configures every on-disk location the root needs to wire storage
// and logging.
type Paths struct {
	DataDir        string // holds sessions.db, maps.db, companella.log
	SettingsFile   string
	DansConfigFile string
	SongsRoot      string
	IndexedCopies  string // output dir for session-plan indexed copies
	CollectionFile string
	MsdToolBinary  string
}

// Build constructs and wires the full application: loads settings/dans
// config, opens both SQL stores, attaches the process reader, and
// assembles every service on top of them. Any failure here is a
// persistent-external error — the application cannot start without
// its stores and config.
func Build(ctx context.Context, paths Paths) (*App, error) {
	settings, err := config.LoadSettings(paths.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	dans, err := config.LoadDansConfig(paths.DansConfigFile)
	if err != nil {
		return nil, fmt.Errorf("load dans config: %w", err)
	}

	logPath := filepath.Join(paths.DataDir, "companella.log")
	sink, err := logevent.OpenRotatingFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	realClock := clock.Real{}
	log := logevent.New(sink, realClock)

	sessions, err := store.OpenSessionStore(filepath.Join(paths.DataDir, "sessions.db"))
	if err != nil {
		return nil, fmt.Errorf("open sessions store: %w", err)
	}

	maps, err := store.OpenMapStore(filepath.Join(paths.DataDir, "maps.db"))
	if err != nil {
		sessions.Close()
		return nil, fmt.Errorf("open maps store: %w", err)
	}

	songs, err := songsdir.Build(paths.SongsRoot)
	if err != nil {
		log.Warn("songs folder index failed, continuing without it: %v", err)
	}

	reader, err := process.Attach(ctx)
	if err != nil {
		log.Info("process attach failed, session tracker disabled: %v", err)
	}

	msdTool := external.MsdTool{BinaryPath: paths.MsdToolBinary}

	var t *tracker.Tracker
	if reader != nil {
		t = tracker.New(reader, msdTool, realClock, log)
	}

	mmrCalc := mmr.Calculator{Maps: maps}
	history := func(ctx context.Context, beatmapPath string) (mmr.AccuracyHistory, error) {
		avg, count, err := sessions.MapAccuracyHistory(ctx, beatmapPath)
		if err != nil {
			return mmr.AccuracyHistory{}, err
		}
		return mmr.AccuracyHistory{AverageAccuracy: avg, PlayCount: count}, nil
	}
	recommendSvc := recommend.Service{MMR: mmrCalc, History: history}

	var libraryIndexer *indexer.Indexer
	if songs != nil {
		libraryIndexer = &indexer.Indexer{Maps: maps, Songs: songs, Scorer: msdTool, Log: log}
	}

	plan := planner.Planner{
		Maps:       maps,
		Songs:      songs,
		Collection: external.CollectionWriter{Path: paths.CollectionFile},
		OutputRoot: paths.IndexedCopies,
		Clock:      realClock,
	}

	var telemetryQueue *telemetry.Queue
	if settings.SendAnalytics {
		telemetryQueue = telemetry.NewQueue("", log)
		go telemetryQueue.Run(ctx)
	}

	return &App{
		Settings:     settings,
		Dans:         dans,
		Clock:        realClock,
		Log:          log,
		Reader:       reader,
		Sessions:     sessions,
		Maps:         maps,
		Tracker:      t,
		Skill:        skill.Analyzer{},
		MMR:          mmrCalc,
		Recommend:    recommendSvc,
		Planner:      plan,
		Indexer:      libraryIndexer,
		Telemetry:    telemetryQueue,
		MsdTool:      msdTool,
		SettingsPath: paths.SettingsFile,
	}, nil
}

// Close releases every owned resource. Safe to call on a partially built
// App (nil fields are skipped).
func (a *App) Close() {
	if a.Reader != nil {
		a.Reader.Close()
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.Maps != nil {
		a.Maps.Close()
	}
}
