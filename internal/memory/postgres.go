package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversation ledgers in PostgreSQL.
//
// One row per user in conversations (holding the history cursor), one row
// per message in conversation_messages. Messages are ordered by a global
// sequence; rows are only ever inserted, never updated or deleted.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			user_id TEXT PRIMARY KEY,
			history_cursor BIGINT NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES conversations(user_id),
			seq BIGSERIAL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding REAL[],
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_messages_user_seq ON conversation_messages (user_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, userID string, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("append", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Create-if-absent: a new user's conversation starts with cursor 0.
	_, err = tx.Exec(ctx,
		`INSERT INTO conversations (user_id, history_cursor) VALUES ($1, 0)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return storeErr("append", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO conversation_messages (id, user_id, role, content, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID,
		userID,
		string(msg.Role),
		msg.Content,
		msg.Embedding,
		msg.CreatedAt,
	)
	if err != nil {
		return storeErr("append", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("append", err)
	}
	return nil
}

func (s *PostgresStore) ReadAll(ctx context.Context, userID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, content, embedding, created_at
		 FROM conversation_messages WHERE user_id=$1 ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, storeErr("read", err)
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		var (
			m    Message
			role string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Embedding, &m.CreatedAt); err != nil {
			return nil, storeErr("read", err)
		}
		m.Role = Role(role)
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read", err)
	}
	return items, nil
}

func (s *PostgresStore) Cursor(ctx context.Context, userID string) (int, error) {
	var cursor int
	err := s.pool.QueryRow(ctx,
		`SELECT history_cursor FROM conversations WHERE user_id=$1`,
		userID,
	).Scan(&cursor)
	if errors.Is(err, pgx.ErrNoRows) {
		return CursorDisabled, nil
	}
	if err != nil {
		return 0, storeErr("cursor", err)
	}
	return cursor, nil
}

func (s *PostgresStore) SetCursor(ctx context.Context, userID string, value int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (user_id, history_cursor) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET history_cursor=EXCLUDED.history_cursor`,
		userID,
		value,
	)
	if err != nil {
		return storeErr("set cursor", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
