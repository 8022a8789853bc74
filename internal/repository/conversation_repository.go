package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"omnichat/internal/entities"
)

type ConversationRepository struct {
	db *pgxpool.Pool

	// Window applied when Create has to re-check for a concurrently
	// created conversation. Matches the read-side default.
	thresholdMinutes int
}

func NewConversationRepository(db *pgxpool.Pool, thresholdMinutes int) *ConversationRepository {
	return &ConversationRepository{db: db, thresholdMinutes: thresholdMinutes}
}

const conversationColumns = `id, end_user_id, business_id, channel, started_at, ended_at, is_active, metadata`

func scanConversation(row pgx.Row) (*entities.Conversation, error) {
	var c entities.Conversation
	err := row.Scan(&c.ID, &c.EndUserID, &c.BusinessID, &c.Channel, &c.StartedAt, &c.EndedAt, &c.IsActive, &c.Metadata)
	if err != nil {
		return nil, err
	}
	c.Metadata = entities.NormalizeMetadata(c.Metadata)
	return &c, nil
}

const selectCurrentConversation = `
	SELECT ` + conversationColumns + ` FROM chat_conversations
	WHERE end_user_id = $1 AND business_id = $2 AND is_active
	  AND started_at >= NOW() - ($3 * INTERVAL '1 minute')
	ORDER BY started_at DESC
	LIMIT 1`

// GetActiveByUser returns the most recently started active conversation whose
// started_at falls inside the trailing window, or nil, nil.
func (r *ConversationRepository) GetActiveByUser(ctx context.Context, endUserID, businessID uuid.UUID, thresholdMinutes int) (*entities.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRow(ctx, selectCurrentConversation, endUserID, businessID, thresholdMinutes))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active conversation: %w", err)
	}
	return conv, nil
}

// Create opens a conversation unless a current one already exists. The whole
// check-retire-insert sequence runs in one transaction serialized by an
// advisory lock on the (end_user, business) pair, so concurrent messages for
// the same user cannot open two conversations. An active conversation whose
// started_at has fallen out of the window is retired here; it blocks the
// partial unique index otherwise.
func (r *ConversationRepository) Create(ctx context.Context, conv *entities.Conversation) (*entities.Conversation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create conversation: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	lockKey := conv.EndUserID.String() + "/" + conv.BusinessID.String()
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return nil, fmt.Errorf("create conversation: lock: %w", err)
	}

	// Someone may have opened one while we were deciding to.
	existing, err := scanConversation(tx.QueryRow(ctx, selectCurrentConversation,
		conv.EndUserID, conv.BusinessID, r.thresholdMinutes))
	if err == nil {
		if cerr := tx.Commit(ctx); cerr != nil {
			return nil, fmt.Errorf("create conversation: commit: %w", cerr)
		}
		return existing, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("create conversation: recheck: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE chat_conversations
		 SET is_active = FALSE, ended_at = NOW()
		 WHERE end_user_id = $1 AND business_id = $2 AND is_active`,
		conv.EndUserID, conv.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("create conversation: retire stale: %w", err)
	}

	created, err := scanConversation(tx.QueryRow(ctx,
		`INSERT INTO chat_conversations (id, end_user_id, business_id, channel, started_at, is_active, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+conversationColumns,
		conv.ID, conv.EndUserID, conv.BusinessID, conv.Channel, conv.StartedAt, conv.IsActive,
		entities.NormalizeMetadata(conv.Metadata)))
	if err != nil {
		return nil, fmt.Errorf("create conversation: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create conversation: commit: %w", err)
	}
	return created, nil
}

// CloseConversation marks a conversation inactive and stamps ended_at. The
// orchestrator never calls this; it belongs to the management flow.
func (r *ConversationRepository) CloseConversation(ctx context.Context, conversationID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE chat_conversations SET is_active = FALSE, ended_at = NOW() WHERE id = $1`,
		conversationID)
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	return nil
}
