package models

import (
	"fmt"
	"time"
)

type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationRoom   ConversationKind = "room"
)

// ConversationRef names a direct conversation by peer user id or a room by
// room id. The zero value means "no conversation selected".
type ConversationRef struct {
	Kind ConversationKind
	ID   string
}

func Direct(peerID string) ConversationRef {
	return ConversationRef{Kind: ConversationDirect, ID: peerID}
}

func RoomRef(roomID string) ConversationRef {
	return ConversationRef{Kind: ConversationRoom, ID: roomID}
}

func (c ConversationRef) IsZero() bool {
	return c.ID == "" || c.Kind == ""
}

func (c ConversationRef) String() string {
	if c.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s:%s", c.Kind, c.ID)
}

// Message is a single message held in a conversation.
type Message struct {
	ID             string
	Conversation   ConversationRef
	SenderID       string
	SenderUsername string
	RecipientID    string
	Content        string
	MessageType    string
	Timestamp      time.Time

	// SelfDestructSeconds is 0 for permanent messages.
	SelfDestructSeconds int
	ReadOnce            bool
	IsRead              bool
	ThreatScore         float64
}

// ExpiresAt returns the self-destruct deadline and whether one applies.
func (m Message) ExpiresAt() (time.Time, bool) {
	if m.SelfDestructSeconds <= 0 {
		return time.Time{}, false
	}
	return m.Timestamp.Add(time.Duration(m.SelfDestructSeconds) * time.Second), true
}

// Draft is an outgoing message before the backend has accepted it.
type Draft struct {
	Content             string
	SelfDestructSeconds int
	ReadOnce            bool
}

// SendReceipt is what the backend returns for an accepted message.
type SendReceipt struct {
	MessageID   string
	ThreatScore float64
}

func (r SendReceipt) Level() ThreatLevel {
	return LevelForScore(r.ThreatScore)
}
