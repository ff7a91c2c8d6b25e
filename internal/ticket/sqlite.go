package ticket

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bcast-io/bcast/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// Pragmas ride on the DSN so every connection in the database/sql pool gets
// them; _txlock=immediate takes the write lock at BEGIN, so concurrent
// acknowledgements queue on busy_timeout instead of hitting SQLITE_BUSY on
// a mid-transaction read-to-write upgrade.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			ticket_id  TEXT PRIMARY KEY,
			text       TEXT NOT NULL,
			recipients TEXT NOT NULL DEFAULT '[]',
			status     TEXT NOT NULL DEFAULT '{}',
			state      TEXT NOT NULL DEFAULT 'open',
			created_at TEXT NOT NULL,
			closed_at  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_state ON tickets(state);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Insert(t *protocol.Ticket) error {
	recipients, _ := json.Marshal(t.Recipients)
	status, _ := json.Marshal(t.Status)
	var closedAt *string
	if t.ClosedAt != nil {
		v := t.ClosedAt.Format(time.RFC3339)
		closedAt = &v
	}

	_, err := s.db.Exec(`
		INSERT INTO tickets (ticket_id, text, recipients, status, state, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Text, string(recipients), string(status), string(t.State),
		t.CreatedAt.Format(time.RFC3339), closedAt)
	if err != nil {
		return fmt.Errorf("ticket store: insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*protocol.Ticket, error) {
	row := s.db.QueryRow(`SELECT ticket_id, text, recipients, status, state, created_at, closed_at FROM tickets WHERE ticket_id = ?`, id)
	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) List(filter Filter) ([]*protocol.Ticket, error) {
	query := `SELECT ticket_id, text, recipients, status, state, created_at, closed_at FROM tickets WHERE 1=1`
	var args []any

	if filter.State != nil {
		query += ` AND state = ?`
		args = append(args, string(*filter.State))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	var tickets []*protocol.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// Acknowledge runs the read-modify-write for one entry inside a single
// immediate transaction, so two near-simultaneous acknowledgements for the
// same conversation cannot race.
func (s *SQLiteStore) Acknowledge(ticketID string, chatID int64) (protocol.AckResult, *protocol.Ticket, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", nil, fmt.Errorf("ticket store: acknowledge begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT ticket_id, text, recipients, status, state, created_at, closed_at FROM tickets WHERE ticket_id = ?`, ticketID)
	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return protocol.AckNotFound, nil, nil
		}
		return "", nil, fmt.Errorf("ticket store: acknowledge get: %w", err)
	}

	entry, ok := t.Status[chatID]
	if !ok {
		return protocol.AckUnknownChat, t, nil
	}
	if entry == protocol.EntryClosed {
		return protocol.AckAlreadyClosed, t, nil
	}

	t.Status[chatID] = protocol.EntryClosed
	status, _ := json.Marshal(t.Status)

	var closedAt *string
	if t.AllClosed() {
		t.State = protocol.TicketClosed
		now := time.Now().UTC().Truncate(time.Second)
		t.ClosedAt = &now
		v := now.Format(time.RFC3339)
		closedAt = &v
	}

	if closedAt != nil {
		_, err = tx.Exec(`UPDATE tickets SET status = ?, state = ?, closed_at = ? WHERE ticket_id = ?`,
			string(status), string(t.State), *closedAt, ticketID)
	} else {
		_, err = tx.Exec(`UPDATE tickets SET status = ? WHERE ticket_id = ?`, string(status), ticketID)
	}
	if err != nil {
		return "", nil, fmt.Errorf("ticket store: acknowledge update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("ticket store: acknowledge commit: %w", err)
	}
	return protocol.AckClosed, t, nil
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var recipientsJSON, statusJSON, state, createdAtStr string
	var closedAtStr *string

	err := row.Scan(&t.ID, &t.Text, &recipientsJSON, &statusJSON, &state, &createdAtStr, &closedAtStr)
	if err != nil {
		return nil, err
	}

	t.State = protocol.TicketState(state)
	json.Unmarshal([]byte(recipientsJSON), &t.Recipients)
	json.Unmarshal([]byte(statusJSON), &t.Status)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	if closedAtStr != nil {
		ct, _ := time.Parse(time.RFC3339, *closedAtStr)
		t.ClosedAt = &ct
	}

	if t.Recipients == nil {
		t.Recipients = []protocol.Recipient{}
	}
	if t.Status == nil {
		t.Status = map[int64]protocol.EntryStatus{}
	}
	return &t, nil
}
