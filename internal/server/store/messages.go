package store

import (
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/tacticallink/internal/server/models"
	"github.com/dmitrijs2005/tacticallink/internal/server/threat"
)

// SendDirect stores a message and scores the sender. A score above
// threat.LogThreshold is written to the threat log.
func (s *Store) SendDirect(senderID, recipientID, content string, selfDestructSeconds int, readOnce bool) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[recipientID]; !ok {
		return models.Message{}, fmt.Errorf("recipient %s: %w", recipientID, ErrNotFound)
	}

	now := s.clk.Now().UTC()
	m := &models.Message{
		ID:                  s.newID(),
		SenderID:            senderID,
		RecipientID:         recipientID,
		Content:             content,
		Timestamp:           now,
		SelfDestructSeconds: max(selfDestructSeconds, 0),
		ReadOnce:            readOnce,
	}
	m.ThreatScore = s.scoreMessageLocked(senderID, len(content), now)
	s.messages = append(s.messages, m)
	return *m, nil
}

// Receive returns the caller's undelivered messages, oldest first, and
// marks them read. Read-once messages are deleted once delivered.
func (s *Store) Receive(userID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	var out []models.Message
	for _, m := range s.messages {
		if m.RecipientID != userID || m.IsRead || !m.Visible(now) {
			continue
		}
		out = append(out, *m)
		m.IsRead = true
		if m.ReadOnce {
			m.Deleted = true
		}
	}
	sortMessages(out)
	return out
}

// Conversation returns the latest limit messages exchanged between userID
// and peerID, oldest first.
func (s *Store) Conversation(userID, peerID string, limit int) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clk.Now()
	var out []models.Message
	for _, m := range s.messages {
		if !m.Visible(now) {
			continue
		}
		if (m.SenderID == userID && m.RecipientID == peerID) || (m.SenderID == peerID && m.RecipientID == userID) {
			out = append(out, *m)
		}
	}
	sortMessages(out)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// DeleteMessage removes a message its sender or recipient asks to delete.
func (s *Store) DeleteMessage(userID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ID != messageID || m.Deleted {
			continue
		}
		if m.SenderID != userID && m.RecipientID != userID {
			return fmt.Errorf("message %s: %w", messageID, ErrForbidden)
		}
		m.Deleted = true
		return nil
	}
	return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
}

func (s *Store) scoreMessageLocked(userID string, length int, now time.Time) float64 {
	h := append(s.history[userID], threat.Sample{Length: length, At: now})
	if len(h) > historyLen {
		h = h[len(h)-historyLen:]
	}
	s.history[userID] = h

	score := s.scorer.Score(threat.Extract(h, now))
	if score > threat.LogThreshold {
		s.logThreatLocked(userID, score, threat.MessageReason, now)
	}
	return score
}

func sortMessages(msgs []models.Message) {
	slices.SortStableFunc(msgs, func(a, b models.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}
