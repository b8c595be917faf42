// Package store is the development backend's in-memory state: users,
// direct messages, rooms, room messages and threat bookkeeping.
//
// Every operation that checks and then mutates runs under a single lock,
// so concurrent requests never observe a half-applied change.
package store

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/tacticallink/internal/clock"
	"github.com/dmitrijs2005/tacticallink/internal/server/models"
	"github.com/dmitrijs2005/tacticallink/internal/server/threat"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrExists    = errors.New("already exists")
	ErrForbidden = errors.New("forbidden")
	ErrRoomFull  = errors.New("room is full")
	ErrNotMember = errors.New("not a member")
)

// historyLen caps the per-user samples kept for message scoring.
const historyLen = 100

type Store struct {
	clk    clock.Clock
	scorer threat.Scorer
	newID  func() string

	mu           sync.RWMutex
	users        map[string]*models.User
	usernames    map[string]string
	messages     []*models.Message
	rooms        []*models.Room
	roomMessages []*models.RoomMessage
	threatLogs   []models.ThreatLog
	threatScores map[string]float64
	active       map[string]struct{}
	history      map[string][]threat.Sample
}

type Option func(*Store)

func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clk = c }
}

func WithScorer(sc threat.Scorer) Option {
	return func(s *Store) { s.scorer = sc }
}

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

func New(opts ...Option) *Store {
	s := &Store{
		clk:          clock.Real(),
		scorer:       threat.Rules{},
		newID:        uuid.NewString,
		users:        make(map[string]*models.User),
		usernames:    make(map[string]string),
		threatScores: make(map[string]float64),
		active:       make(map[string]struct{}),
		history:      make(map[string][]threat.Sample),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Purge drops deleted and expired direct messages and returns how many
// were removed.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.Visible(now) {
			kept = append(kept, m)
		}
	}
	removed := len(s.messages) - len(kept)
	clear(s.messages[len(kept):])
	s.messages = kept
	return removed
}
