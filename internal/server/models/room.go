package models

import (
	"slices"
	"time"
)

type Room struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	IsPublic    bool
	Members     []string
	MaxMembers  int
	JoinKey     string
	CreatedAt   time.Time
}

func (r Room) IsMember(userID string) bool {
	return slices.Contains(r.Members, userID)
}

func (r Room) Full() bool {
	return len(r.Members) >= r.MaxMembers
}

// Clone returns a copy that does not share the member slice.
func (r Room) Clone() Room {
	r.Members = slices.Clone(r.Members)
	return r
}
