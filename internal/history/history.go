package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/logger"
)

const schema = `CREATE TABLE IF NOT EXISTS questions (
	id           TEXT PRIMARY KEY,
	channel      TEXT NOT NULL,
	requester    TEXT NOT NULL,
	question     TEXT NOT NULL,
	answer       TEXT NOT NULL,
	success      INTEGER NOT NULL,
	chunks_found INTEGER NOT NULL,
	error        TEXT,
	created_at   TEXT NOT NULL
)`

// timeLayout is fixed width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one logged question and its answer.
type Entry struct {
	ID          string
	Channel     string
	Requester   string
	Question    string
	Answer      string
	Success     bool
	ChunksFound int
	Error       string
	CreatedAt   time.Time
}

// Log records every question asked on any channel, e.g. a USSD session's
// phone number or a Telegram user ID as requester.
type Log struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the log file and table if needed.
func Open(ctx context.Context, path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history: %w", err)
	}
	return &Log{db: db, now: time.Now}, nil
}

// Record stores a question and its answer. Failures are logged, never
// returned, so the log cannot fail a query. A nil Log is a no-op.
func (l *Log) Record(ctx context.Context, channel, requester, question string, a core.Answer) {
	if l == nil {
		return
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO questions(id, channel, requester, question, answer, success, chunks_found, error, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), channel, requester, question, a.Text, a.Success, a.ChunksFound,
		a.Error, l.now().UTC().Format(timeLayout))
	if err != nil {
		logger.Warn("Failed to record question from %s/%s: %v", channel, requester, err)
	}
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, channel, requester, question, answer, success, chunks_found, COALESCE(error, ''), created_at
		 FROM questions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.Channel, &e.Requester, &e.Question, &e.Answer,
			&e.Success, &e.ChunksFound, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
