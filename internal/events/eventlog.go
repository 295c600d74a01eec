package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type Event struct {
	Offset    int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// Log is an append-only audit trail backed by the event_log table.
type Log struct {
	db   *sql.DB
	site string
}

func NewLog(db *sql.DB, site string) *Log {
	if site == "" {
		site = "local"
	}
	return &Log{db: db, site: site}
}

// Append records one event. payload is JSON-encoded; a nil payload
// writes an empty object.
func (l *Log) Append(ctx context.Context, typ, key string, payload any) error {
	data := "{}"
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = string(b)
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		l.site, typ, key, data, time.Now().Unix())
	return err
}
