package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository is a simple in-memory stand-in for the database
type mockRepository struct {
	conversations map[uuid.UUID]*models.Conversation
	messages      []*models.Message

	ensureCalls int
	insertErr   error
}

func newMockRepository() *mockRepository {
	return &mockRepository{conversations: make(map[uuid.UUID]*models.Conversation)}
}

func (m *mockRepository) EnsureConversation(ctx context.Context, rideID uuid.UUID, userA, userB uuid.UUID) (*models.Conversation, error) {
	m.ensureCalls++
	for _, conv := range m.conversations {
		if conv.RideID != nil && *conv.RideID == rideID && conv.Involves(userA) && conv.Involves(userB) {
			return conv, nil
		}
	}
	conv := &models.Conversation{ID: uuid.New(), RideID: &rideID, ParticipantA: userA, ParticipantB: userB}
	m.conversations[conv.ID] = conv
	return conv, nil
}

func (m *mockRepository) GetConversationByID(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error) {
	conv, exists := m.conversations[conversationID]
	if !exists {
		return nil, common.NewNotFoundError("conversation not found", nil)
	}
	return conv, nil
}

func (m *mockRepository) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Conversation, int64, error) {
	var out []*models.Conversation
	for _, conv := range m.conversations {
		if conv.Involves(userID) {
			out = append(out, conv)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockRepository) InsertMessage(ctx context.Context, msg *models.Message) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockRepository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*models.Message, int64, error) {
	var out []*models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, int64(len(out)), nil
}

func seedConversation(repo *mockRepository) (*models.Conversation, uuid.UUID, uuid.UUID) {
	userA := uuid.New()
	userB := uuid.New()
	rideID := uuid.New()
	conv := &models.Conversation{ID: uuid.New(), RideID: &rideID, ParticipantA: userA, ParticipantB: userB}
	repo.conversations[conv.ID] = conv
	return conv, userA, userB
}

func TestService_EnsureConversation_RejectsSameUser(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, nil)
	userID := uuid.New()

	_, err := service.EnsureConversation(context.Background(), uuid.New(), userID, userID)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
	assert.Zero(t, repo.ensureCalls)
}

func TestService_EnsureConversation_ReturnsExisting(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, nil)
	rideID := uuid.New()
	userA := uuid.New()
	userB := uuid.New()

	first, err := service.EnsureConversation(context.Background(), rideID, userA, userB)
	require.NoError(t, err)
	second, err := service.EnsureConversation(context.Background(), rideID, userB, userA)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.conversations, 1)
}

func TestService_SendMessage_PersistsForParticipant(t *testing.T) {
	repo := newMockRepository()
	conv, userA, _ := seedConversation(repo)
	service := NewService(repo, nil)

	msg, err := service.SendMessage(context.Background(), userA, conv.ID, "see you at the meeting point")

	require.NoError(t, err)
	assert.Equal(t, conv.ID, msg.ConversationID)
	assert.Equal(t, userA, msg.SenderID)
	require.Len(t, repo.messages, 1)
	assert.Equal(t, "see you at the meeting point", repo.messages[0].Body)
}

func TestService_SendMessage_NonParticipant(t *testing.T) {
	repo := newMockRepository()
	conv, _, _ := seedConversation(repo)
	service := NewService(repo, nil)

	_, err := service.SendMessage(context.Background(), uuid.New(), conv.ID, "hello")

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 403, appErr.Code)
	assert.Empty(t, repo.messages)
}

func TestService_SendMessage_UnknownConversation(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, nil)

	_, err := service.SendMessage(context.Background(), uuid.New(), uuid.New(), "hello")

	assert.True(t, common.IsNotFound(err))
}

func TestService_ListMessages_ParticipantOnly(t *testing.T) {
	repo := newMockRepository()
	conv, userA, userB := seedConversation(repo)
	service := NewService(repo, nil)
	_, err := service.SendMessage(context.Background(), userA, conv.ID, "running five minutes late")
	require.NoError(t, err)

	_, _, err = service.ListMessages(context.Background(), uuid.New(), conv.ID, 20, 0)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 403, appErr.Code)

	messages, total, err := service.ListMessages(context.Background(), userB, conv.ID, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, messages, 1)
	assert.Equal(t, "running five minutes late", messages[0].Body)
}

func TestService_ListConversations(t *testing.T) {
	repo := newMockRepository()
	_, userA, _ := seedConversation(repo)
	seedConversation(repo)
	service := NewService(repo, nil)

	conversations, total, err := service.ListConversations(context.Background(), userA, 20, 0)

	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, conversations, 1)
}