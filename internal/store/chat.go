package store

import (
	"database/sql"
	"fmt"

	"github.com/manhaj-ai/miniapp/internal/model"
)

// ChatStore persists the tutor conversation thread per student.
type ChatStore struct {
	db *sql.DB
}

func NewChatStore(db *sql.DB) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) Append(telegramID int64, role, content string) (*model.ChatMessage, error) {
	result, err := s.db.Exec(
		`INSERT INTO chat_messages (telegram_id, role, content) VALUES (?, ?, ?)`,
		telegramID, role, content,
	)
	if err != nil {
		return nil, fmt.Errorf("append chat message: %w", err)
	}
	id, _ := result.LastInsertId()
	return s.getByID(id)
}

func (s *ChatStore) getByID(id int64) (*model.ChatMessage, error) {
	var m model.ChatMessage
	err := s.db.QueryRow(
		`SELECT id, telegram_id, role, content, created_at FROM chat_messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.TelegramID, &m.Role, &m.Content, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat message: %w", err)
	}
	return &m, nil
}

// History returns the most recent messages in chronological order. A limit
// of 0 returns everything.
func (s *ChatStore) History(telegramID int64, limit int) ([]model.ChatMessage, error) {
	query := `SELECT id, telegram_id, role, content, created_at
		 FROM chat_messages WHERE telegram_id = ? ORDER BY id DESC`
	args := []any{telegramID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.TelegramID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *ChatStore) Clear(telegramID int64) error {
	_, err := s.db.Exec(`DELETE FROM chat_messages WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return fmt.Errorf("clear chat history: %w", err)
	}
	return nil
}
