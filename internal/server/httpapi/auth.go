package httpapi

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/tacticallink/internal/server/auth"
	"github.com/dmitrijs2005/tacticallink/internal/server/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": isoTime(s.clk.Now()),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload.Username = strings.TrimSpace(payload.Username)
	if payload.Username == "" || payload.Email == "" || payload.Password == "" {
		respondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	publicKey, err := newPublicKey()
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	user, err := s.store.CreateUser(payload.Username, payload.Email, hash, publicKey, s.isAdmin(payload.Username))
	if errors.Is(err, store.ErrExists) {
		respondError(w, http.StatusConflict, "Username already exists")
		return
	} else if err != nil {
		s.internalError(w, r, err)
		return
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.clk.Now(), s.tokenTTL)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "user registered", "user_id", user.ID, "admin", user.IsAdmin)
	respondJSON(w, http.StatusCreated, map[string]any{
		"message":      "User registered successfully",
		"access_token": token,
		"user_id":      user.ID,
		"public_key":   user.PublicKey,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Username == "" || payload.Password == "" {
		respondError(w, http.StatusBadRequest, "Missing credentials")
		return
	}

	user, err := s.store.UserByUsername(strings.TrimSpace(payload.Username))
	if err != nil || !auth.CheckPassword(user.PasswordHash, payload.Password) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.clk.Now(), s.tokenTTL)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.store.MarkActive(user.ID)

	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"user_id":      user.ID,
		"username":     user.Username,
		"public_key":   user.PublicKey,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.UserByID(currentUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":   user.ID,
		"username":  user.Username,
		"is_admin":  user.IsAdmin,
		"timestamp": isoTime(s.clk.Now()),
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error(r.Context(), "request failed", "error", err)
	respondError(w, http.StatusInternalServerError, "internal server error")
}

func newPublicKey() (string, error) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}
