// Package accesslog persists a log of proxied requests to SQLite.
package accesslog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Outcome classifies how a request was handled.
type Outcome string

const (
	OutcomeHit               Outcome = "hit"
	OutcomeMiss              Outcome = "miss"
	OutcomeBadRequest        Outcome = "bad_request"
	OutcomeNotImplemented    Outcome = "not_implemented"
	OutcomeOriginUnreachable Outcome = "origin_unreachable"
)

// Record is one handled request.
type Record struct {
	Time    time.Time `json:"time"`
	SrcIP   string    `json:"src_ip"`
	Method  string    `json:"method"`
	URI     string    `json:"uri"`
	Outcome Outcome   `json:"outcome"`
	Bytes   int       `json:"bytes"`
}

// Log is a SQLite-backed access log. Writes serialize on a mutex since
// the driver does not handle concurrent writers.
type Log struct {
	db         *sql.DB
	writeMutex sync.Mutex
}

// Open opens, and if needed creates, the access log database. Use
// "file::memory:?cache=shared" for an ephemeral log.
func Open(filename string) (*Log, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open access log: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS access_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time INTEGER,
		src_ip TEXT,
		method TEXT,
		uri TEXT,
		outcome TEXT,
		bytes INTEGER
	)`); err != nil {
		return nil, fmt.Errorf("create access log table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS time_idx ON access_log (time)"); err != nil {
		return nil, fmt.Errorf("create access log index: %w", err)
	}
	return &Log{db: db}, nil
}

// Append writes one record to the log.
func (l *Log) Append(r Record) error {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	_, err := l.db.Exec(
		"INSERT INTO access_log (time, src_ip, method, uri, outcome, bytes) VALUES (?, ?, ?, ?, ?, ?)",
		r.Time.Unix(), r.SrcIP, r.Method, r.URI, string(r.Outcome), r.Bytes)
	return err
}

// Recent returns up to limit records, newest first.
func (l *Log) Recent(limit int) ([]Record, error) {
	rows, err := l.db.Query(
		"SELECT time, src_ip, method, uri, outcome, bytes FROM access_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		var ts int64
		var outcome string
		if err := rows.Scan(&ts, &r.SrcIP, &r.Method, &r.URI, &outcome, &r.Bytes); err != nil {
			return records, err
		}
		r.Time = time.Unix(ts, 0)
		r.Outcome = Outcome(outcome)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}
