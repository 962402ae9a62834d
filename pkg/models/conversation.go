package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation links two participants, optionally scoped to a ride. A single
// row serves both directions; queries match either participant slot.
type Conversation struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	RideID       *uuid.UUID `json:"ride_id,omitempty" db:"ride_id"`
	ParticipantA uuid.UUID  `json:"participant_a" db:"participant_a"`
	ParticipantB uuid.UUID  `json:"participant_b" db:"participant_b"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Involves reports whether the user is one of the participants.
func (c *Conversation) Involves(userID uuid.UUID) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Other returns the counterpart participant for the given user.
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message is a chat message inside a conversation.
type Message struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConversationID uuid.UUID `json:"conversation_id" db:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id" db:"sender_id"`
	Body           string    `json:"body" db:"body"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// SendMessageRequest is the payload for posting a message.
type SendMessageRequest struct {
	Body string `json:"body" binding:"required,max=1000"`
}
