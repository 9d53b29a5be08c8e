package store

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a conversation does not exist or belongs to
// another owner.
var ErrNotFound = errors.New("not found")

// Message roles as stored; they match the chat roles of the text model.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Migrate creates missing tables. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// Conversation is a titled chat thread. OwnerID is the authenticated subject
// that created it, empty when the server runs without auth.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationDetail struct {
	Conversation
	Messages []Message `json:"messages"`
}

func (s *Store) CreateConversation(ctx context.Context, ownerID, title string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRow(ctx, `
		INSERT INTO conversations (owner_id, title)
		VALUES ($1, $2)
		RETURNING id, owner_id, title, created_at
	`, ownerID, title).Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns the owner's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, ownerID string, limit int) ([]Conversation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, title, created_at
		FROM conversations
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetConversation(ctx context.Context, ownerID, id string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, title, created_at
		FROM conversations
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversationDetail returns the conversation with its messages in
// creation order.
func (s *Store) GetConversationDetail(ctx context.Context, ownerID, id string) (*ConversationDetail, error) {
	c, err := s.GetConversation(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &ConversationDetail{Conversation: *c, Messages: msgs}, nil
}

// DeleteConversation removes the conversation; messages cascade.
func (s *Store) DeleteConversation(ctx context.Context, ownerID, id string) error {
	result, err := s.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, conversationID, role, content string) (*Message, error) {
	var m Message
	err := s.db.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, conversation_id, role, content, created_at
	`, conversationID, role, content).Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns every message of a conversation in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
