package store

import (
	"database/sql"
	"time"
)

// UpsertPresence records the latest status of a user. A blank name keeps
// the stored one.
func (db *DB) UpsertPresence(p *Presence) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO presence (user_id, user_name, is_online, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			user_name = CASE WHEN excluded.user_name != '' THEN excluded.user_name ELSE presence.user_name END,
			is_online = excluded.is_online,
			last_seen = MAX(presence.last_seen, excluded.last_seen),
			updated_at = excluded.updated_at`,
		p.UserID, p.UserName, p.IsOnline, p.LastSeen, now)
	return err
}

// GetPresence returns a user's last known status, or nil.
func (db *DB) GetPresence(userID string) (*Presence, error) {
	var p Presence
	err := db.QueryRow(`SELECT user_id, user_name, is_online, last_seen FROM presence WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.UserName, &p.IsOnline, &p.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPresence returns every known user, online users first.
func (db *DB) ListPresence() ([]Presence, error) {
	rows, err := db.Query(`
		SELECT user_id, user_name, is_online, last_seen
		FROM presence
		ORDER BY is_online DESC, user_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Presence
	for rows.Next() {
		var p Presence
		if err := rows.Scan(&p.UserID, &p.UserName, &p.IsOnline, &p.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
