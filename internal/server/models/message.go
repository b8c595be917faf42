package models

import "time"

// Message is a direct message between two users.
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Content     string
	Timestamp   time.Time

	// SelfDestructSeconds is 0 for permanent messages.
	SelfDestructSeconds int
	ReadOnce            bool
	IsRead              bool
	Deleted             bool
	ThreatScore         float64
}

// Expired reports whether the self-destruct deadline has passed at now.
func (m Message) Expired(now time.Time) bool {
	if m.SelfDestructSeconds <= 0 {
		return false
	}
	return !now.Before(m.Timestamp.Add(time.Duration(m.SelfDestructSeconds) * time.Second))
}

// Visible reports whether the message can still be delivered or listed.
func (m Message) Visible(now time.Time) bool {
	return !m.Deleted && !m.Expired(now)
}

// RoomMessage is a message posted to a chat room.
type RoomMessage struct {
	ID             string
	RoomID         string
	SenderID       string
	SenderUsername string
	Content        string
	MessageType    string
	Timestamp      time.Time
	ThreatScore    float64
}
