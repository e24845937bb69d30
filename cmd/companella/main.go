// Command companella is the application entrypoint: one executable, no
// positional arguments, recognizing only --training.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/olekukonko/tablewriter"

	"github.com/kaanreal/companella/internal/approot"
	"github.com/kaanreal/companella/internal/config"
)

func main() {
	training := flag.Bool("training", false, "boot the aggregation/training UI instead of the main UI")
	flag.Parse()

	dataDir := defaultDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "companella: create data directory: %v\n", err)
		os.Exit(1)
	}

	paths := approot.Paths{
		DataDir:        dataDir,
		SettingsFile:   filepath.Join(dataDir, "settings.json"),
		DansConfigFile: filepath.Join(dataDir, "dans.json"),
		SongsRoot:      os.Getenv("COMPANELLA_SONGS_ROOT"),
		IndexedCopies:  filepath.Join(dataDir, "indexed"),
		CollectionFile: filepath.Join(dataDir, "collection.db"),
		MsdToolBinary:  os.Getenv("COMPANELLA_MSD_TOOL"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := approot.Build(ctx, paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "companella: startup failed: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if *training {
		runTrainingMode(app.Dans)
		os.Exit(0)
	}

	runMainLoop(ctx, app)
	os.Exit(0)
}

func defaultDataDir() string {
	if dir := os.Getenv("COMPANELLA_DATA_DIR"); dir != "" {
		return dir
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(configDir, "companella")
}

// runTrainingMode renders the loaded dan-config table to the terminal: a
// readable dump of what was loaded, without booting the main loop.
func runTrainingMode(dans config.DansConfig) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Rank", "Label", "Patterns"})

	for i, tier := range dans.Dans {
		table.Append([]string{
			fmt.Sprintf("%d", i),
			tier.Label,
			fmt.Sprintf("%d pattern(s)", len(tier.Patterns)),
		})
	}
	table.Render()
}

// runMainLoop starts the session tracker (when a process reader attached
// successfully), kicks off a background library-index pass, watches the
// settings file for live edits, and blocks until interrupted. The
// single-threaded UI/event loop itself is out of scope for this core;
// this drives the pieces of it the core owns.
func runMainLoop(ctx context.Context, app *approot.App) {
	settings := app.Settings

	if app.Indexer != nil {
		// Off-loop task, deliberately not cancellable mid-map: a
		// Background context keeps a Ctrl-C from killing the MSD
		// subprocess partway through a beatmap.
		go func() {
			if _, err := app.Indexer.Run(context.Background(), func(status string, done, total int) {
				if done == 0 || done == total {
					app.Log.Info("indexer: %s (%d/%d)", status, done, total)
				}
			}); err != nil {
				app.Log.Error("library index pass failed: %v", err)
			}
		}()
	}

	var settingsChanges <-chan config.Settings
	if watcher, err := config.WatchSettings(app.SettingsPath); err != nil {
		app.Log.Info("settings watch unavailable: %v", err)
	} else {
		defer watcher.Close()
		settingsChanges = watcher.Changes()
	}

	if app.Tracker == nil {
		app.Log.Warn("no game process attached; idling")
		<-ctx.Done()
		return
	}

	if settings.AutoStartSession {
		app.Tracker.StartSession()
	}

	for {
		select {
		case <-ctx.Done():
			if settings.AutoEndSession {
				persistSession(app)
			}
			return
		case updated, ok := <-settingsChanges:
			if !ok {
				settingsChanges = nil
				continue
			}
			settings = updated
			app.Log.Info("settings reloaded from disk")
		}
	}
}

func persistSession(app *approot.App) {
	session := app.Tracker.StopSession()
	if session.TotalPlays == 0 {
		return
	}

	ctx := context.Background()
	if _, err := app.Sessions.Save(ctx, session); err != nil {
		app.Log.Error("failed to persist session: %v", err)
		return
	}

	for _, play := range session.Plays {
		if err := app.Maps.RecordPlayStats(ctx, play.BeatmapPath, play.Accuracy); err != nil {
			app.Log.Info("play stats update failed for %s: %v", play.BeatmapPath, err)
		}
	}
}
