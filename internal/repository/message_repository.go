package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"omnichat/internal/entities"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends a message. Messages are never updated afterwards.
func (r *MessageRepository) Create(ctx context.Context, msg *entities.Message) (*entities.Message, error) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO chat_messages (id, conversation_id, sender_type, content, timestamp, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.SenderType, msg.Content, msg.Timestamp,
		entities.NormalizeMetadata(msg.Metadata))
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// GetByConversation returns a conversation's messages, oldest first.
func (r *MessageRepository) GetByConversation(ctx context.Context, conversationID uuid.UUID) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, sender_type, content, timestamp, metadata
		 FROM chat_messages
		 WHERE conversation_id = $1
		 ORDER BY timestamp ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	messages := []entities.Message{}
	for rows.Next() {
		var m entities.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderType, &m.Content, &m.Timestamp, &m.Metadata); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Metadata = entities.NormalizeMetadata(m.Metadata)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
