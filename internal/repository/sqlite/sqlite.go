// Package sqlite implements repository.Store on an embedded SQLite database
// (pure Go driver). It suits single-node deployments and tests.
//
// The pool is pinned to one connection, so transactions are executed one at a
// time by construction; that is the single-writer guarantee the booking
// engine relies on in place of SELECT … FOR UPDATE.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/repository"
	sqlitedrv "modernc.org/sqlite" // Pure Go SQLite driver
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id                TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	date              TEXT NOT NULL,
	location          TEXT NOT NULL,
	capacity          INTEGER NOT NULL CHECK (capacity > 0),
	available_tickets INTEGER NOT NULL CHECK (available_tickets >= 0 AND available_tickets <= capacity),
	price             REAL NOT NULL CHECK (price >= 0),
	organizer_id      TEXT NOT NULL,
	is_published      INTEGER NOT NULL DEFAULT 1,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_published_date ON events (is_published, date);

CREATE TABLE IF NOT EXISTS bookings (
	id          TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL REFERENCES events (id),
	user_id     TEXT NOT NULL,
	user_email  TEXT NOT NULL DEFAULT '',
	tickets     INTEGER NOT NULL CHECK (tickets > 0),
	total_price REAL NOT NULL,
	status      TEXT NOT NULL CHECK (status IN ('ACTIVE', 'CANCELLED')),
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings (user_id, created_at);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_bookings_active_user_event
	ON bookings (user_id, event_id)
	WHERE status = 'ACTIVE';
`

const eventColumns = `id, title, description, date, location, capacity, available_tickets,
	price, organizer_id, is_published, created_at, updated_at`

const bookingColumns = `id, event_id, user_id, user_email, tickets, total_price, status,
	created_at, updated_at`

// Timestamps are stored as fixed-width UTC text so lexical order matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

// Store persists events and bookings to SQLite.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// New opens (creating if needed) the database at path and applies the schema.
// The path should be a file path (e.g., "./events.db") or ":memory:".
func New(path string) (*Store, error) {
	const op = "repository.sqlite.New"

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%s: open database: %w", op, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: enable WAL mode: %w", op, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: create schema: %w", op, err)
	}

	return &Store{db: db}, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	const op = "repository.sqlite.CreateEvent"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, formatTime(e.Date), e.Location, e.Capacity,
		e.AvailableTickets, e.Price, e.OrganizerID, e.IsPublished,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// EventByID returns a single event or repository.ErrEventNotFound.
func (s *Store) EventByID(ctx context.Context, id string) (*model.Event, error) {
	const op = "repository.sqlite.EventByID"

	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// ListPublishedEvents returns upcoming published events ordered by date.
func (s *Store) ListPublishedEvents(ctx context.Context, from time.Time) ([]model.Event, error) {
	const op = "repository.sqlite.ListPublishedEvents"

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE is_published = 1 AND date >= ?
		 ORDER BY date ASC`,
		formatTime(from),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

// BookingByID returns a snapshot of one booking.
func (s *Store) BookingByID(ctx context.Context, id string) (*model.Booking, error) {
	const op = "repository.sqlite.BookingByID"

	b, err := scanBooking(s.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// ListBookingsByUser returns the user's bookings with event details attached.
func (s *Store) ListBookingsByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	const op = "repository.sqlite.ListBookingsByUser"

	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.event_id, b.user_id, b.user_email, b.tickets, b.total_price, b.status,
		        b.created_at, b.updated_at, e.title, e.date, e.location, e.price
		 FROM bookings b
		 JOIN events e ON e.id = b.event_id
		 WHERE b.user_id = ?
		 ORDER BY b.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var (
			b                           model.Booking
			ev                          model.EventSummary
			created, updated, eventDate string
		)
		if err := rows.Scan(&b.ID, &b.EventID, &b.UserID, &b.UserEmail, &b.Tickets, &b.TotalPrice,
			&b.Status, &created, &updated, &ev.Title, &eventDate, &ev.Location, &ev.Price); err != nil {
			return nil, fmt.Errorf("%s: scan booking: %w", op, err)
		}
		var tp timeParser
		b.CreatedAt = tp.parse(created)
		b.UpdatedAt = tp.parse(updated)
		ev.Date = tp.parse(eventDate)
		if tp.err != nil {
			return nil, fmt.Errorf("%s: booking %s: %w", op, b.ID, tp.err)
		}
		b.Event = &ev
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return bookings, nil
}

// InTx runs fn inside one transaction on the single pooled connection.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) (err error) {
	const op = "repository.sqlite.InTx"

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&tx{q: sqlTx}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("%s: commit transaction: %w", op, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type tx struct {
	q querier
}

// LockEvent reads the event. The surrounding transaction already owns the
// only connection, so no other writer can interleave.
func (t *tx) LockEvent(ctx context.Context, id string) (*model.Event, error) {
	const op = "repository.sqlite.LockEvent"

	e, err := scanEvent(t.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

func (t *tx) SaveEvent(ctx context.Context, e *model.Event) error {
	const op = "repository.sqlite.SaveEvent"

	res, err := t.q.ExecContext(ctx,
		`UPDATE events
		 SET title = ?, description = ?, date = ?, location = ?, capacity = ?,
		     available_tickets = ?, price = ?, is_published = ?, updated_at = ?
		 WHERE id = ?`,
		e.Title, e.Description, formatTime(e.Date), e.Location, e.Capacity,
		e.AvailableTickets, e.Price, e.IsPublished, formatTime(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrEventNotFound)
	}
	return nil
}

func (t *tx) LockBooking(ctx context.Context, id string) (*model.Booking, error) {
	const op = "repository.sqlite.LockBooking"

	b, err := scanBooking(t.q.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

func (t *tx) ActiveBooking(ctx context.Context, userID, eventID string) (*model.Booking, error) {
	const op = "repository.sqlite.ActiveBooking"

	b, err := scanBooking(t.q.QueryRowContext(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE user_id = ? AND event_id = ? AND status = 'ACTIVE'`,
		userID, eventID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

func (t *tx) ActiveBookings(ctx context.Context, eventID string) ([]model.Booking, error) {
	const op = "repository.sqlite.ActiveBookings"

	rows, err := t.q.QueryContext(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE event_id = ? AND status = 'ACTIVE'
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return bookings, nil
}

func (t *tx) InsertBooking(ctx context.Context, b *model.Booking) error {
	const op = "repository.sqlite.InsertBooking"

	_, err := t.q.ExecContext(ctx,
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.EventID, b.UserID, b.UserEmail, b.Tickets, b.TotalPrice, string(b.Status),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, repository.ErrDuplicateBooking)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *tx) SetBookingStatus(ctx context.Context, id string, status model.BookingStatus, at time.Time) error {
	const op = "repository.sqlite.SetBookingStatus"

	res, err := t.q.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrBookingNotFound)
	}
	return nil
}

func scanEvent(row scanner) (*model.Event, error) {
	var (
		e                      model.Event
		date, created, updated string
	)
	err := row.Scan(&e.ID, &e.Title, &e.Description, &date, &e.Location, &e.Capacity,
		&e.AvailableTickets, &e.Price, &e.OrganizerID, &e.IsPublished, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrEventNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	var tp timeParser
	e.Date = tp.parse(date)
	e.CreatedAt = tp.parse(created)
	e.UpdatedAt = tp.parse(updated)
	if tp.err != nil {
		return nil, fmt.Errorf("scan event %s: %w", e.ID, tp.err)
	}
	return &e, nil
}

func scanBooking(row scanner) (*model.Booking, error) {
	var (
		b                model.Booking
		status           string
		created, updated string
	)
	err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.UserEmail, &b.Tickets, &b.TotalPrice,
		&status, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrBookingNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.Status = model.BookingStatus(status)
	var tp timeParser
	b.CreatedAt = tp.parse(created)
	b.UpdatedAt = tp.parse(updated)
	if tp.err != nil {
		return nil, fmt.Errorf("scan booking %s: %w", b.ID, tp.err)
	}
	return &b, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timeParser parses stored timestamps and keeps the first failure.
type timeParser struct {
	err error
}

func (p *timeParser) parse(s string) time.Time {
	if p.err != nil {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		p.err = fmt.Errorf("parse time %q: %w", s, err)
	}
	return t
}

func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
