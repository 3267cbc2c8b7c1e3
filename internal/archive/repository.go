// Package archive writes a durable transcript of every committed chat turn.
// The transcript is an audit trail only: conversation history is never
// reloaded from it.
package archive

import (
	"context"
	"database/sql"
	"time"

	"go-ai-chat/internal/history"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Entry is one archived turn.
type Entry struct {
	ID        int64     `json:"id"`
	Group     string    `json:"group"`
	Speaker   string    `json:"speaker"`
	Name      string    `json:"name,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Repository) RecordTurn(ctx context.Context, group string, turn history.Turn) error {
	query := "INSERT INTO chat_turns (group_name, speaker, sender_name, content) VALUES ($1, $2, $3, $4)"
	_, err := r.db.ExecContext(ctx, query, group, string(turn.Speaker), turn.Name, turn.Text)
	return err
}

// RecentTurns returns up to limit of the group's latest turns, oldest first.
func (r *Repository) RecentTurns(ctx context.Context, group string, limit int) ([]Entry, error) {
	query := `
		SELECT id, group_name, speaker, sender_name, content, created_at
		FROM chat_turns
		WHERE group_name = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, group, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Group, &e.Speaker, &e.Name, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
