// Package postgres implements repository.Store on PostgreSQL using pgx
// directly (no ORM).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const eventColumns = `id, title, description, date, location, capacity, available_tickets,
	price, organizer_id, is_published, created_at, updated_at`

const bookingColumns = `id, event_id, user_id, user_email, tickets, total_price, status,
	created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store handles persistence for events and bookings.
type Store struct {
	db *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// New constructs a Store over an open pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	const op = "repository.postgres.CreateEvent"

	_, err := s.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Title, e.Description, e.Date, e.Location, e.Capacity, e.AvailableTickets,
		e.Price, e.OrganizerID, e.IsPublished, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// EventByID returns a single event or repository.ErrEventNotFound.
func (s *Store) EventByID(ctx context.Context, id string) (*model.Event, error) {
	const op = "repository.postgres.EventByID"

	e, err := scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// ListPublishedEvents returns upcoming published events ordered by date.
func (s *Store) ListPublishedEvents(ctx context.Context, from time.Time) ([]model.Event, error) {
	const op = "repository.postgres.ListPublishedEvents"

	rows, err := s.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE is_published AND date >= $1
		 ORDER BY date ASC`,
		from,
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
	const op = "repository.postgres.BookingByID"

	b, err := scanBooking(s.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// ListBookingsByUser returns the user's bookings with event details attached.
func (s *Store) ListBookingsByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	const op = "repository.postgres.ListBookingsByUser"

	rows, err := s.db.Query(ctx,
		`SELECT b.id, b.event_id, b.user_id, b.user_email, b.tickets, b.total_price, b.status,
		        b.created_at, b.updated_at, e.title, e.date, e.location, e.price
		 FROM bookings b
		 JOIN events e ON e.id = b.event_id
		 WHERE b.user_id = $1
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
			b  model.Booking
			ev model.EventSummary
		)
		if err := rows.Scan(&b.ID, &b.EventID, &b.UserID, &b.UserEmail, &b.Tickets, &b.TotalPrice,
			&b.Status, &b.CreatedAt, &b.UpdatedAt, &ev.Title, &ev.Date, &ev.Location, &ev.Price); err != nil {
			return nil, fmt.Errorf("%s: scan booking: %w", op, err)
		}
		b.Event = &ev
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return bookings, nil
}

// InTx runs fn inside a READ COMMITTED transaction.
//
// Naive read-then-write on available_tickets is broken:
//
//	tx A: SELECT available_tickets FROM events WHERE id = X  → 1
//	tx B: SELECT available_tickets FROM events WHERE id = X  → 1
//	tx A: 1 >= 1, OK → INSERT booking, UPDATE available_tickets = 0
//	tx B: 1 >= 1, OK → INSERT booking, UPDATE available_tickets = 0
//	Result: two bookings for one ticket.
//
// Callers therefore read the event through Tx.LockEvent, which issues
// SELECT … FOR UPDATE. The row lock is held until COMMIT or ROLLBACK, so any
// other transaction locking the same event blocks and then sees the committed
// value. This is pessimistic locking: contention is prevented up front rather
// than detected and retried.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) (err error) {
	const op = "repository.postgres.InTx"

	pgTx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if p := recover(); p != nil {
			_ = pgTx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = pgTx.Rollback(ctx)
		}
	}()

	if err = fn(&tx{q: pgTx}); err != nil {
		return err
	}

	if err = pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit transaction: %w", op, err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

type tx struct {
	q querier
}

func (t *tx) LockEvent(ctx context.Context, id string) (*model.Event, error) {
	const op = "repository.postgres.LockEvent"

	e, err := scanEvent(t.q.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

func (t *tx) SaveEvent(ctx context.Context, e *model.Event) error {
	const op = "repository.postgres.SaveEvent"

	tag, err := t.q.Exec(ctx,
		`UPDATE events
		 SET title = $2, description = $3, date = $4, location = $5, capacity = $6,
		     available_tickets = $7, price = $8, is_published = $9, updated_at = $10
		 WHERE id = $1`,
		e.ID, e.Title, e.Description, e.Date, e.Location, e.Capacity,
		e.AvailableTickets, e.Price, e.IsPublished, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrEventNotFound)
	}
	return nil
}

func (t *tx) LockBooking(ctx context.Context, id string) (*model.Booking, error) {
	const op = "repository.postgres.LockBooking"

	b, err := scanBooking(t.q.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

func (t *tx) ActiveBooking(ctx context.Context, userID, eventID string) (*model.Booking, error) {
	const op = "repository.postgres.ActiveBooking"

	b, err := scanBooking(t.q.QueryRow(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE user_id = $1 AND event_id = $2 AND status = 'ACTIVE'`,
		userID, eventID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

func (t *tx) ActiveBookings(ctx context.Context, eventID string) ([]model.Booking, error) {
	const op = "repository.postgres.ActiveBookings"

	rows, err := t.q.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE event_id = $1 AND status = 'ACTIVE'
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
	const op = "repository.postgres.InsertBooking"

	_, err := t.q.Exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.EventID, b.UserID, b.UserEmail, b.Tickets, b.TotalPrice, b.Status,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", op, repository.ErrDuplicateBooking)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *tx) SetBookingStatus(ctx context.Context, id string, status model.BookingStatus, at time.Time) error {
	const op = "repository.postgres.SetBookingStatus"

	tag, err := t.q.Exec(ctx,
		`UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, at,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrBookingNotFound)
	}
	return nil
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Location, &e.Capacity,
		&e.AvailableTickets, &e.Price, &e.OrganizerID, &e.IsPublished, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrEventNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.UserEmail, &b.Tickets, &b.TotalPrice,
		&b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrBookingNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	return &b, nil
}
