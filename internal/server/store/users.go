package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/tacticallink/internal/server/models"
)

// CreateUser registers a user. Usernames are unique ignoring case.
func (s *Store) CreateUser(username, email, passwordHash, publicKey string, isAdmin bool) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	if _, ok := s.usernames[key]; ok {
		return models.User{}, fmt.Errorf("user %q: %w", username, ErrExists)
	}
	u := &models.User{
		ID:           s.newID(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		PublicKey:    publicKey,
		IsAdmin:      isAdmin,
		CreatedAt:    s.clk.Now().UTC(),
	}
	s.users[u.ID] = u
	s.usernames[key] = u.ID
	return *u, nil
}

func (s *Store) UserByUsername(username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[strings.ToLower(username)]
	if !ok {
		return models.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return *s.users[id], nil
}

func (s *Store) UserByID(id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return *u, nil
}

// Users returns every user in registration order.
func (s *Store) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b models.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Username, b.Username)
	})
	return out
}

// MarkActive records a login.
func (s *Store) MarkActive(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[userID] = struct{}{}
}

func (s *Store) ActiveUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.active))
	for id := range s.active {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
