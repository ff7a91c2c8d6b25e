package chat

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/bcast-io/bcast/pkg/protocol"
)

// SQLiteStore implements Registry using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// Pragmas ride on the DSN so every connection in the database/sql pool gets
// them; without a per-connection busy_timeout, simultaneous registration
// events and assignment callbacks can fail with SQLITE_BUSY.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("chat registry: open: %w", err)
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
		CREATE TABLE IF NOT EXISTS chats (
			chat_id        INTEGER PRIMARY KEY,
			type           TEXT NOT NULL,
			title          TEXT NOT NULL DEFAULT '',
			assigned_group TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_chats_group ON chats(assigned_group);
	`)
	if err != nil {
		return fmt.Errorf("chat registry: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Upsert(conv protocol.Conversation) error {
	// COALESCE/NULLIF keeps an already assigned group when the incoming
	// record carries none.
	_, err := s.db.Exec(`
		INSERT INTO chats (chat_id, type, title, assigned_group)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			type=excluded.type,
			title=excluded.title,
			assigned_group=COALESCE(NULLIF(excluded.assigned_group, ''), chats.assigned_group)
	`, conv.ID, string(conv.Kind), conv.Title, string(conv.AssignedGroup))
	if err != nil {
		return fmt.Errorf("chat registry: upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(id int64) (*protocol.Conversation, error) {
	row := s.db.QueryRow(`SELECT chat_id, type, title, assigned_group FROM chats WHERE chat_id = ?`, id)
	conv, err := scanConversation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("chat registry: get: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) AssignGroup(id int64, group protocol.DeliveryGroup) (*protocol.Conversation, error) {
	result, err := s.db.Exec(`UPDATE chats SET assigned_group = ? WHERE chat_id = ?`, string(group), id)
	if err != nil {
		return nil, fmt.Errorf("chat registry: assign group: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(id)
}

func (s *SQLiteStore) ListByGroup(sel protocol.GroupSelector) ([]protocol.Conversation, error) {
	query := `SELECT chat_id, type, title, assigned_group FROM chats WHERE `
	var args []any
	if sel == protocol.SelectAny {
		query += `assigned_group IN (?, ?)`
		args = append(args, string(protocol.GroupDev), string(protocol.GroupProd))
	} else {
		query += `assigned_group = ?`
		args = append(args, string(sel))
	}
	query += ` ORDER BY chat_id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("chat registry: list: %w", err)
	}
	defer rows.Close()

	var convs []protocol.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("chat registry: list scan: %w", err)
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

func (s *SQLiteStore) List() ([]protocol.Conversation, error) {
	rows, err := s.db.Query(`SELECT chat_id, type, title, assigned_group FROM chats ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("chat registry: list all: %w", err)
	}
	defer rows.Close()

	var convs []protocol.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("chat registry: list all scan: %w", err)
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

type scannable interface {
	Scan(dest ...any) error
}

func scanConversation(row scannable) (*protocol.Conversation, error) {
	var conv protocol.Conversation
	var kind, group string
	if err := row.Scan(&conv.ID, &kind, &conv.Title, &group); err != nil {
		return nil, err
	}
	conv.Kind = protocol.ChatKind(kind)
	conv.AssignedGroup = protocol.DeliveryGroup(group)
	return &conv, nil
}
