// Package reminders persists user reminders in sqlite and fires the
// due ones over the event bus, re-arming recurring schedules.
package reminders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bantzhq/bantz/pkg/models"
)

// ErrNotFound is returned for operations on a missing reminder ID.
var ErrNotFound = errors.New("reminder not found")

// Store is the persistence contract of the scheduler. Implementations
// must be safe for concurrent use; the tick loop and the CLI share one.
type Store interface {
	Add(ctx context.Context, reminder *models.Reminder) error
	Get(ctx context.Context, id string) (*models.Reminder, error)
	List(ctx context.Context, includeDone bool) ([]*models.Reminder, error)

	// Due returns the pending reminders with remind_at in the past and
	// no active snooze. Rows whose timestamp cannot be parsed are
	// returned separately so the caller can retire them instead of
	// re-selecting them every tick.
	Due(ctx context.Context, now time.Time) (due []*models.Reminder, corrupt []string, err error)

	Update(ctx context.Context, reminder *models.Reminder) error
	MarkDone(ctx context.Context, id, note string) error
	Delete(ctx context.Context, id string) error
	Snooze(ctx context.Context, id string, until time.Time) error
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS reminders (
	id TEXT PRIMARY KEY,
	message TEXT NOT NULL,
	remind_at TEXT NOT NULL,
	created_at TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	repeat_interval TEXT,
	snoozed_until TEXT
);
CREATE INDEX IF NOT EXISTS idx_reminders_remind_at ON reminders(remind_at);
CREATE INDEX IF NOT EXISTS idx_reminders_status ON reminders(status);
`

// SQLStore is the sqlite-backed Store. Timestamps are stored as UTC
// RFC 3339 text so lexicographic comparison in SQL matches time order.
type SQLStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenStore opens (and migrates) the reminder database at path.
func OpenStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open reminder db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate reminder db: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// NewStoreFromDB wraps an existing handle. The schema must already
// exist; used by tests.
func NewStoreFromDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

// Add inserts a reminder. Zero CreatedAt and Status are filled in.
func (s *SQLStore) Add(ctx context.Context, reminder *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = time.Now()
	}
	if reminder.Status == "" {
		reminder.Status = models.ReminderPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, message, remind_at, created_at, status, repeat_interval, snoozed_until)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)`,
		reminder.ID, reminder.Message, encodeTime(reminder.RemindAt),
		encodeTime(reminder.CreatedAt), string(reminder.Status),
		reminder.RepeatInterval, encodeTimePtr(reminder.SnoozedUntil))
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

// Get returns one reminder by ID.
func (s *SQLStore) Get(ctx context.Context, id string) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, message, remind_at, created_at, status, repeat_interval, snoozed_until
		FROM reminders WHERE id = ?`, id)
	reminder, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return reminder, err
}

// List returns reminders ordered by remind_at, pending-only unless
// includeDone is set.
func (s *SQLStore) List(ctx context.Context, includeDone bool) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT id, message, remind_at, created_at, status, repeat_interval, snoozed_until
		FROM reminders`
	if !includeDone {
		query += ` WHERE status = 'pending'`
	}
	query += ` ORDER BY remind_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

// Due implements the tick query.
func (s *SQLStore) Due(ctx context.Context, now time.Time) ([]*models.Reminder, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := encodeTime(now)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message, remind_at, created_at, status, repeat_interval, snoozed_until
		FROM reminders
		WHERE status = 'pending' AND remind_at <= ?
		  AND (snoozed_until IS NULL OR snoozed_until <= ?)
		ORDER BY remind_at`, cutoff, cutoff)
	if err != nil {
		return nil, nil, fmt.Errorf("select due reminders: %w", err)
	}
	defer rows.Close()

	var (
		due     []*models.Reminder
		corrupt []string
	)
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			var scanErr *timestampError
			if errors.As(err, &scanErr) {
				corrupt = append(corrupt, scanErr.id)
				continue
			}
			return nil, nil, err
		}
		due = append(due, reminder)
	}
	return due, corrupt, rows.Err()
}

// Update rewrites all mutable columns of a reminder.
func (s *SQLStore) Update(ctx context.Context, reminder *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET message = ?, remind_at = ?, status = ?, repeat_interval = NULLIF(?, ''), snoozed_until = ?
		WHERE id = ?`,
		reminder.Message, encodeTime(reminder.RemindAt), string(reminder.Status),
		reminder.RepeatInterval, encodeTimePtr(reminder.SnoozedUntil), reminder.ID)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	return requireRow(result)
}

// MarkDone retires a reminder, optionally appending an operator note
// to its message.
func (s *SQLStore) MarkDone(ctx context.Context, id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE reminders SET status = 'done' WHERE id = ?`
	args := []any{id}
	if note != "" {
		query = `UPDATE reminders SET status = 'done', message = message || ' (' || ? || ')' WHERE id = ?`
		args = []any{note, id}
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark reminder done: %w", err)
	}
	return requireRow(result)
}

// Delete removes a reminder.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return requireRow(result)
}

// Snooze defers a pending reminder until the given time.
func (s *SQLStore) Snooze(ctx context.Context, id string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET snoozed_until = ? WHERE id = ? AND status = 'pending'`,
		encodeTime(until), id)
	if err != nil {
		return fmt.Errorf("snooze reminder: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// timestampError marks a row with an unparseable remind_at so the
// scheduler can retire it instead of looping on it.
type timestampError struct {
	id  string
	err error
}

func (e *timestampError) Error() string {
	return fmt.Sprintf("reminder %s: bad timestamp: %v", e.id, e.err)
}

func (e *timestampError) Unwrap() error { return e.err }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*models.Reminder, error) {
	var (
		reminder models.Reminder
		remindAt string
		created  string
		status   string
		repeat   sql.NullString
		snoozed  sql.NullString
	)
	if err := row.Scan(&reminder.ID, &reminder.Message, &remindAt, &created, &status, &repeat, &snoozed); err != nil {
		return nil, err
	}
	reminder.Status = models.ReminderStatus(status)
	reminder.RepeatInterval = repeat.String

	var err error
	if reminder.RemindAt, err = time.Parse(time.RFC3339, remindAt); err != nil {
		return nil, &timestampError{id: reminder.ID, err: err}
	}
	if reminder.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, &timestampError{id: reminder.ID, err: err}
	}
	if snoozed.Valid {
		t, err := time.Parse(time.RFC3339, snoozed.String)
		if err != nil {
			return nil, &timestampError{id: reminder.ID, err: err}
		}
		reminder.SnoozedUntil = &t
	}
	return &reminder, nil
}
