// Package cache keeps discovered match metadata in a local SQLite file. It is
// a lookup convenience for the schedule page and the CLI; nothing depends on
// it for correctness.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "matchbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrDisabled = errors.New("cache disabled")

// Event is one cached schedule row.
type Event struct {
	ID          string    `json:"id"`
	Kickoff     time.Time `json:"kickoff"`
	Competition string    `json:"competition"`
	Home        string    `json:"home"`
	Away        string    `json:"away"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Store struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

// Open creates or migrates the database at path.
func Open(ctx context.Context, path string, busy time.Duration, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busy > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{db: db, log: log.With(logx.String("comp", "cache")), now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert inserts or replaces the row for e.ID.
func (s *Store) Upsert(ctx context.Context, e Event) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("cache: empty event id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, kickoff, competition, home, away, status, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   kickoff=excluded.kickoff, competition=excluded.competition,
		   home=excluded.home, away=excluded.away,
		   status=excluded.status, updated_at=excluded.updated_at`,
		e.ID, e.Kickoff.Unix(), e.Competition, e.Home, e.Away, e.Status, s.now().Unix(),
	)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (Event, bool, error) {
	if s == nil || s.db == nil {
		return Event{}, false, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kickoff, competition, home, away, status, updated_at FROM events WHERE id = ?`, id)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}
	return e, true, nil
}

// Upcoming lists events with kickoff in [from, to), earliest first.
func (s *Store) Upcoming(ctx context.Context, from, to time.Time) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kickoff, competition, home, away, status, updated_at FROM events
		 WHERE kickoff >= ? AND kickoff < ? ORDER BY kickoff, id`, from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes events that kicked off before cutoff and returns how many.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE kickoff < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Debug("pruned events", logx.Int64("count", n))
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Event, error) {
	var (
		e                Event
		kickoff, updated int64
	)
	if err := r.Scan(&e.ID, &kickoff, &e.Competition, &e.Home, &e.Away, &e.Status, &updated); err != nil {
		return Event{}, err
	}
	e.Kickoff = time.Unix(kickoff, 0).UTC()
	e.UpdatedAt = time.Unix(updated, 0).UTC()
	return e, nil
}
