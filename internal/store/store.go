// Package store persists sessions/plays and indexed maps to two embedded
// sqlite databases, using jmoiron/sqlx over mattn/go-sqlite3.
package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

func open(path string) (*sqlx.DB, error) {
	return openDSN(path, path+"?_foreign_keys=on&_busy_timeout=5000")
}

// openShared opens a database with the shared cache on, for the maps DB:
// the background indexer writes it while the recommendation and planner
// paths read it concurrently. As with open, the 5s busy timeout makes a
// connection that finds the database locked wait before failing.
func openShared(path string) (*sqlx.DB, error) {
	return openDSN(path, "file:"+path+"?_foreign_keys=on&_busy_timeout=5000&cache=shared")
}

func openDSN(path, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}
