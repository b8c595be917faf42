package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/tacticallink/internal/server/models"
	"github.com/dmitrijs2005/tacticallink/internal/server/store"
)

const roomMessagesLimit = 100

func (s *Server) registerRoomRoutes(r chi.Router) {
	r.Route("/chat/rooms", func(r chi.Router) {
		r.Get("/", s.handleListRooms)
		r.Post("/", s.handleCreateRoom)
		r.Post("/join-by-key", s.handleJoinByKey)

		r.Route("/{roomID}", func(r chi.Router) {
			r.Post("/join", s.handleJoinRoom)
			r.Post("/leave", s.handleLeaveRoom)
			r.Get("/messages", s.handleRoomMessages)
			r.Post("/messages", s.handleSendRoomMessage)
			r.Delete("/messages/{messageID}", s.handleDeleteRoomMessage)
		})
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	me := currentUserID(r.Context())
	rooms := s.store.Rooms(me)

	out := make([]map[string]any, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomJSON(room, me))
	}
	respondJSON(w, http.StatusOK, map[string]any{"rooms": out, "count": len(out)})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPublic    *bool  `json:"is_public"`
		MaxMembers  int    `json:"max_members"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		respondError(w, http.StatusBadRequest, "Room name is required")
		return
	}
	public := payload.IsPublic == nil || *payload.IsPublic

	room, err := s.store.CreateRoom(currentUserID(r.Context()), store.CreateRoomParams{
		Name:        payload.Name,
		Description: payload.Description,
		IsPublic:    public,
		MaxMembers:  payload.MaxMembers,
	})
	if errors.Is(err, store.ErrExists) {
		respondError(w, http.StatusConflict, "Room name already exists")
		return
	} else if err != nil {
		s.internalError(w, r, err)
		return
	}

	resp := map[string]any{
		"message":   "Chat room created successfully",
		"room_id":   room.ID,
		"room_name": room.Name,
		"is_public": room.IsPublic,
	}
	if !room.IsPublic {
		resp["join_key"] = room.JoinKey
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	room, already, err := s.store.JoinRoom(currentUserID(r.Context()), chi.URLParam(r, "roomID"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Chat room not found")
		return
	}
	s.respondJoin(w, r, room, already, err)
}

func (s *Server) handleJoinByKey(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		JoinKey string `json:"join_key"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.JoinKey) == "" {
		respondError(w, http.StatusBadRequest, "Join key is required")
		return
	}

	room, already, err := s.store.JoinByKey(currentUserID(r.Context()), payload.JoinKey)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Invalid join key")
		return
	}
	s.respondJoin(w, r, room, already, err)
}

func (s *Server) respondJoin(w http.ResponseWriter, r *http.Request, room models.Room, already bool, err error) {
	switch {
	case errors.Is(err, store.ErrRoomFull):
		respondError(w, http.StatusBadRequest, "Room is full")
	case err != nil:
		s.internalError(w, r, err)
	case already:
		respondMessage(w, http.StatusOK, "Already a member of this room")
	default:
		respondJSON(w, http.StatusOK, map[string]any{
			"message":   fmt.Sprintf("Successfully joined %s", room.Name),
			"room_id":   room.ID,
			"room_name": room.Name,
		})
	}
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.store.LeaveRoom(currentUserID(r.Context()), chi.URLParam(r, "roomID")); err != nil {
		respondError(w, http.StatusBadRequest, "Failed to leave chat room")
		return
	}
	respondMessage(w, http.StatusOK, "Left chat room successfully")
}

func (s *Server) handleRoomMessages(w http.ResponseWriter, r *http.Request) {
	room, msgs, err := s.store.RoomMessages(currentUserID(r.Context()), chi.URLParam(r, "roomID"), roomMessagesLimit)
	if s.roomAccessError(w, r, err) {
		return
	}

	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{
			"_id":             m.ID,
			"room_id":         m.RoomID,
			"sender_id":       m.SenderID,
			"sender_username": m.SenderUsername,
			"content":         m.Content,
			"message_type":    m.MessageType,
			"timestamp":       m.Timestamp.UTC().Format(http.TimeFormat),
			"threat_score":    m.ThreatScore,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": out, "count": len(out), "room_name": room.Name})
}

func (s *Server) handleSendRoomMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message     string `json:"message"`
		MessageType string `json:"message_type"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Message == "" {
		respondError(w, http.StatusBadRequest, "Message content is required")
		return
	}

	msg, err := s.store.SendRoomMessage(currentUserID(r.Context()), chi.URLParam(r, "roomID"), payload.Message, payload.MessageType)
	if s.roomAccessError(w, r, err) {
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message":      "Message sent successfully",
		"message_id":   msg.ID,
		"threat_score": msg.ThreatScore,
	})
}

func (s *Server) handleDeleteRoomMessage(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteRoomMessage(currentUserID(r.Context()), chi.URLParam(r, "roomID"), chi.URLParam(r, "messageID"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "Message not found")
	case errors.Is(err, store.ErrForbidden):
		respondError(w, http.StatusForbidden, "You can only delete your own messages")
	case err != nil:
		s.internalError(w, r, err)
	default:
		respondMessage(w, http.StatusOK, "Message deleted successfully")
	}
}

// roomAccessError answers room lookups that failed and reports whether it
// did.
func (s *Server) roomAccessError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "Chat room not found")
	case errors.Is(err, store.ErrForbidden):
		respondError(w, http.StatusForbidden, "You are not a member of this room")
	default:
		s.internalError(w, r, err)
	}
	return true
}

// roomJSON hides the join key from callers outside the room.
func roomJSON(room models.Room, viewerID string) map[string]any {
	out := map[string]any{
		"_id":         room.ID,
		"name":        room.Name,
		"description": room.Description,
		"created_by":  room.CreatedBy,
		"is_public":   room.IsPublic,
		"members":     room.Members,
		"max_members": room.MaxMembers,
		"created_at":  isoTime(room.CreatedAt),
	}
	if room.JoinKey != "" && room.IsMember(viewerID) {
		out["join_key"] = room.JoinKey
	}
	return out
}
