package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/database"
	"github.com/poolride/carpool/pkg/models"
)

// Repository handles database operations for conversations and messages
type Repository struct {
	db database.DB
}

// NewRepository creates a new chat repository
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

// orderPair normalizes a participant pair so one row covers both directions.
func orderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// EnsureConversation returns the conversation for the ride and pair, creating
// it on first use. ON CONFLICT keeps this idempotent under concurrent calls.
func (r *Repository) EnsureConversation(ctx context.Context, rideID uuid.UUID, userA, userB uuid.UUID) (*models.Conversation, error) {
	a, b := orderPair(userA, userB)

	conv := &models.Conversation{}
	err := r.db.QueryRow(ctx, `
		INSERT INTO conversations (id, ride_id, participant_a, participant_b)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ride_id, participant_a, participant_b)
		DO UPDATE SET ride_id = conversations.ride_id
		RETURNING id, ride_id, participant_a, participant_b, created_at`,
		uuid.New(), rideID, a, b,
	).Scan(&conv.ID, &conv.RideID, &conv.ParticipantA, &conv.ParticipantB, &conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure conversation: %w", err)
	}

	return conv, nil
}

// GetConversationByID retrieves a conversation.
func (r *Repository) GetConversationByID(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := r.db.QueryRow(ctx, `
		SELECT id, ride_id, participant_a, participant_b, created_at
		FROM conversations
		WHERE id = $1`,
		conversationID,
	).Scan(&conv.ID, &conv.RideID, &conv.ParticipantA, &conv.ParticipantB, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("conversation not found", nil)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conv, nil
}

// ListConversations retrieves all conversations the user participates in,
// most recently created first.
func (r *Repository) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Conversation, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM conversations
		WHERE participant_a = $1 OR participant_b = $1`,
		userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, ride_id, participant_a, participant_b, created_at
		FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]*models.Conversation, 0)
	for rows.Next() {
		conv := &models.Conversation{}
		if err := rows.Scan(&conv.ID, &conv.RideID, &conv.ParticipantA, &conv.ParticipantB, &conv.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}

	return conversations, total, nil
}

// InsertMessage stores a message in a conversation.
func (r *Repository) InsertMessage(ctx context.Context, msg *models.Message) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Body,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// ListMessages retrieves a conversation's messages, oldest first.
func (r *Repository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*models.Message, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`,
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, total, nil
}
