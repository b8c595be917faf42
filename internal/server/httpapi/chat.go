package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/tacticallink/internal/server/models"
	"github.com/dmitrijs2005/tacticallink/internal/server/store"
)

const conversationLimit = 100

func (s *Server) registerChatRoutes(r chi.Router) {
	r.Get("/chat/users", s.handleChatUsers)
	r.Post("/chat/send", s.handleSend)
	r.Get("/chat/receive", s.handleReceive)
	r.Get("/chat/conversation/{peerID}", s.handleConversation)
	r.Delete("/delete/message/{messageID}", s.handleDeleteMessage)
}

func (s *Server) handleChatUsers(w http.ResponseWriter, r *http.Request) {
	me := currentUserID(r.Context())

	users := []map[string]any{}
	for _, u := range s.store.Users() {
		if u.ID == me {
			continue
		}
		users = append(users, userJSON(u))
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RecipientID      string  `json:"recipient_id"`
		Message          string  `json:"message"`
		SelfDestructTime float64 `json:"self_destruct_time"`
		ReadOnce         bool    `json:"read_once"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.RecipientID == "" || payload.Message == "" {
		respondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	msg, err := s.store.SendDirect(currentUserID(r.Context()), payload.RecipientID, payload.Message,
		int(payload.SelfDestructTime), payload.ReadOnce)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Recipient not found")
		return
	} else if err != nil {
		s.internalError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message":      "Message sent successfully",
		"message_id":   msg.ID,
		"threat_score": msg.ThreatScore,
	})
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	msgs := s.store.Receive(currentUserID(r.Context()))

	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		rec := messageJSON(m)
		delete(rec, "is_read")
		out = append(out, rec)
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": out, "count": len(out)})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	peerID := chi.URLParam(r, "peerID")
	msgs := s.store.Conversation(currentUserID(r.Context()), peerID, conversationLimit)

	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageJSON(m))
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": out, "count": len(out)})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteMessage(currentUserID(r.Context()), chi.URLParam(r, "messageID"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "Message not found")
	case errors.Is(err, store.ErrForbidden):
		respondError(w, http.StatusForbidden, "Unauthorized to delete this message")
	case err != nil:
		s.internalError(w, r, err)
	default:
		respondMessage(w, http.StatusOK, "Message deleted successfully")
	}
}

func userJSON(u models.User) map[string]any {
	return map[string]any{
		"_id":        u.ID,
		"username":   u.Username,
		"email":      u.Email,
		"is_admin":   u.IsAdmin,
		"created_at": isoTime(u.CreatedAt),
	}
}

func messageJSON(m models.Message) map[string]any {
	return map[string]any{
		"id":                 m.ID,
		"sender_id":          m.SenderID,
		"recipient_id":       m.RecipientID,
		"content":            m.Content,
		"timestamp":          isoTime(m.Timestamp),
		"self_destruct_time": m.SelfDestructSeconds,
		"read_once":          m.ReadOnce,
		"is_read":            m.IsRead,
		"threat_score":       m.ThreatScore,
	}
}
