package store

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the SQLite journal of one session: every message the daemon has
// seen, conversation titles and last-known presence.
type DB struct {
	*sql.DB
}

// journalPragmas: WAL lets searches read while the journal writer commits,
// and synchronous=NORMAL is durable enough for a cache the server can refill.
var journalPragmas = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
	"_txlock":       {"immediate"},
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?"+journalPragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &DB{db}, nil
}
