package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/logger"
	"github.com/poolride/carpool/pkg/models"
	"github.com/poolride/carpool/pkg/websocket"
	"go.uber.org/zap"
)

// RepositoryInterface defines the persistence operations for chat
type RepositoryInterface interface {
	EnsureConversation(ctx context.Context, rideID uuid.UUID, userA, userB uuid.UUID) (*models.Conversation, error)
	GetConversationByID(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Conversation, int64, error)
	InsertMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*models.Message, int64, error)
}

// Service contains the chat business logic. Messages are persisted first;
// delivery over the websocket hub is best-effort on top.
type Service struct {
	repo RepositoryInterface
	hub  *websocket.Hub
}

// NewService creates a new chat service
func NewService(repo RepositoryInterface, hub *websocket.Hub) *Service {
	return &Service{repo: repo, hub: hub}
}

// EnsureConversation opens (or returns) the conversation for a ride pair.
func (s *Service) EnsureConversation(ctx context.Context, rideID uuid.UUID, userA, userB uuid.UUID) (*models.Conversation, error) {
	if userA == userB {
		return nil, common.NewValidationError("a conversation needs two distinct participants")
	}
	return s.repo.EnsureConversation(ctx, rideID, userA, userB)
}

// SendMessage persists a message and pushes it to the counterpart's socket.
func (s *Service) SendMessage(ctx context.Context, senderID, conversationID uuid.UUID, body string) (*models.Message, error) {
	conv, err := s.repo.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Involves(senderID) {
		return nil, common.NewForbiddenError("you are not a participant in this conversation")
	}

	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.SendToUser(conv.Other(senderID).String(), &websocket.Event{
			Type:      "message.created",
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"message_id":      msg.ID.String(),
				"conversation_id": conversationID.String(),
				"sender_id":       senderID.String(),
				"body":            msg.Body,
			},
		})
	}

	logger.Debug("message sent",
		zap.String("conversation_id", conversationID.String()),
		zap.String("sender_id", senderID.String()))

	return msg, nil
}

// ListConversations returns the caller's conversations.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Conversation, int64, error) {
	return s.repo.ListConversations(ctx, userID, limit, offset)
}

// ListMessages returns a conversation's history. Participants only.
func (s *Service) ListMessages(ctx context.Context, callerID, conversationID uuid.UUID, limit, offset int) ([]*models.Message, int64, error) {
	conv, err := s.repo.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if !conv.Involves(callerID) {
		return nil, 0, common.NewForbiddenError("you are not a participant in this conversation")
	}

	return s.repo.ListMessages(ctx, conversationID, limit, offset)
}
