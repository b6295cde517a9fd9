package sync

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/matheus3301/rentchat/internal/store"
)

const checkpointPrefix = "checkpoint:"

// Checkpoints stores per-conversation sync positions in sync_state. A
// checkpoint is the newest server timestamp reconciled for a conversation;
// the backfill after a reconnect asks the REST API for anything newer.
type Checkpoints struct {
	db *store.DB
}

func NewCheckpoints(db *store.DB) *Checkpoints {
	return &Checkpoints{db: db}
}

// Put sets a raw sync_state value.
func (c *Checkpoints) Put(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := c.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// Get returns a raw sync_state value, or "" if unset.
func (c *Checkpoints) Get(key string) (string, error) {
	var value string
	err := c.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Advance moves conv's checkpoint forward to t. Older timestamps are
// ignored, so replays and out-of-order backfills never move it back.
func (c *Checkpoints) Advance(conv string, t time.Time) error {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	_, err := c.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		WHERE CAST(excluded.value AS INTEGER) > CAST(sync_state.value AS INTEGER)`,
		checkpointPrefix+conv, strconv.FormatInt(ms, 10), time.Now().UnixMilli())
	return err
}

// Since returns conv's checkpoint, or the zero time if none was recorded.
func (c *Checkpoints) Since(conv string) (time.Time, error) {
	v, err := c.Get(checkpointPrefix + conv)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
