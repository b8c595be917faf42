package store

import (
	"crypto/rand"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/tacticallink/internal/server/models"
)

const (
	DefaultMaxMembers = 50

	joinKeyLen      = 8
	joinKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type CreateRoomParams struct {
	Name        string
	Description string
	IsPublic    bool
	MaxMembers  int
}

// CreateRoom creates a room with the creator as its only member. Room
// names are unique ignoring case. Private rooms get a fresh join key.
func (s *Store) CreateRoom(creatorID string, p CreateRoomParams) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		if strings.EqualFold(r.Name, p.Name) {
			return models.Room{}, fmt.Errorf("room %q: %w", p.Name, ErrExists)
		}
	}
	if p.MaxMembers <= 0 {
		p.MaxMembers = DefaultMaxMembers
	}

	r := &models.Room{
		ID:          s.newID(),
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   creatorID,
		IsPublic:    p.IsPublic,
		Members:     []string{creatorID},
		MaxMembers:  p.MaxMembers,
		CreatedAt:   s.clk.Now().UTC(),
	}
	if !p.IsPublic {
		key, err := s.uniqueJoinKeyLocked()
		if err != nil {
			return models.Room{}, err
		}
		r.JoinKey = key
	}
	s.rooms = append(s.rooms, r)
	return r.Clone(), nil
}

// Rooms lists public rooms and every room userID belongs to, in creation
// order.
func (s *Store) Rooms(userID string) []models.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Room
	for _, r := range s.rooms {
		if r.IsPublic || r.IsMember(userID) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// JoinRoom adds userID to the room. The bool result is true when the user
// already was a member, in which case nothing changes.
func (s *Store) JoinRoom(userID, roomID string) (models.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roomLocked(roomID)
	if r == nil {
		return models.Room{}, false, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	return s.joinLocked(r, userID)
}

// JoinByKey joins the private room holding key. Keys match ignoring case.
func (s *Store) JoinByKey(userID, key string) (models.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = strings.ToUpper(strings.TrimSpace(key))
	for _, r := range s.rooms {
		if r.JoinKey != "" && r.JoinKey == key {
			return s.joinLocked(r, userID)
		}
	}
	return models.Room{}, false, fmt.Errorf("join key: %w", ErrNotFound)
}

func (s *Store) joinLocked(r *models.Room, userID string) (models.Room, bool, error) {
	if r.IsMember(userID) {
		return r.Clone(), true, nil
	}
	if r.Full() {
		return models.Room{}, false, fmt.Errorf("room %s: %w", r.ID, ErrRoomFull)
	}
	r.Members = append(r.Members, userID)
	return r.Clone(), false, nil
}

// LeaveRoom removes userID from the room. It fails with ErrNotMember when
// nothing was removed, including for unknown rooms.
func (s *Store) LeaveRoom(userID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roomLocked(roomID)
	if r == nil || !r.IsMember(userID) {
		return fmt.Errorf("room %s: %w", roomID, ErrNotMember)
	}
	r.Members = slices.DeleteFunc(r.Members, func(id string) bool { return id == userID })
	return nil
}

// RoomMessages returns the latest limit messages of a room, newest first.
// Only members may read them.
func (s *Store) RoomMessages(userID, roomID string, limit int) (models.Room, []models.RoomMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.memberRoomLocked(userID, roomID)
	if err != nil {
		return models.Room{}, nil, err
	}

	var out []models.RoomMessage
	for i := len(s.roomMessages) - 1; i >= 0; i-- {
		m := s.roomMessages[i]
		if m.RoomID != roomID {
			continue
		}
		msg := *m
		if u, ok := s.users[m.SenderID]; ok {
			msg.SenderUsername = u.Username
		} else {
			msg.SenderUsername = "Unknown"
		}
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return r.Clone(), out, nil
}

// SendRoomMessage posts to a room the sender belongs to and scores it.
func (s *Store) SendRoomMessage(userID, roomID, content, messageType string) (models.RoomMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.memberRoomLocked(userID, roomID); err != nil {
		return models.RoomMessage{}, err
	}
	if messageType == "" {
		messageType = "text"
	}

	now := s.clk.Now().UTC()
	m := &models.RoomMessage{
		ID:          s.newID(),
		RoomID:      roomID,
		SenderID:    userID,
		Content:     content,
		MessageType: messageType,
		Timestamp:   now,
	}
	if u, ok := s.users[userID]; ok {
		m.SenderUsername = u.Username
	}
	m.ThreatScore = s.scoreMessageLocked(userID, len(content), now)
	s.roomMessages = append(s.roomMessages, m)
	return *m, nil
}

// DeleteRoomMessage removes a room message. Only its sender may.
func (s *Store) DeleteRoomMessage(userID, roomID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.roomMessages, func(m *models.RoomMessage) bool {
		return m.ID == messageID && m.RoomID == roomID
	})
	if i < 0 {
		return fmt.Errorf("room message %s: %w", messageID, ErrNotFound)
	}
	if s.roomMessages[i].SenderID != userID {
		return fmt.Errorf("room message %s: %w", messageID, ErrForbidden)
	}
	s.roomMessages = slices.Delete(s.roomMessages, i, i+1)
	return nil
}

func (s *Store) roomLocked(roomID string) *models.Room {
	for _, r := range s.rooms {
		if r.ID == roomID {
			return r
		}
	}
	return nil
}

func (s *Store) memberRoomLocked(userID, roomID string) (*models.Room, error) {
	r := s.roomLocked(roomID)
	if r == nil {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if !r.IsMember(userID) {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrForbidden)
	}
	return r, nil
}

func (s *Store) uniqueJoinKeyLocked() (string, error) {
	for {
		key, err := newJoinKey()
		if err != nil {
			return "", err
		}
		taken := slices.ContainsFunc(s.rooms, func(r *models.Room) bool { return r.JoinKey == key })
		if !taken {
			return key, nil
		}
	}
}

func newJoinKey() (string, error) {
	limit := 256 - 256%len(joinKeyAlphabet)
	key := make([]byte, 0, joinKeyLen)
	buf := make([]byte, joinKeyLen*2)
	for len(key) < joinKeyLen {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate join key: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit || len(key) == joinKeyLen {
				continue
			}
			key = append(key, joinKeyAlphabet[int(b)%len(joinKeyAlphabet)])
		}
	}
	return string(key), nil
}
