package models

import "slices"

// User is a directory entry for a reachable user.
type User struct {
	ID       string
	Username string
	Email    string
	IsAdmin  bool
}

// Room is a directory entry for a group conversation.
type Room struct {
	ID          string
	Name        string
	Description string
	IsPublic    bool
	MemberIDs   []string
	MaxMembers  int
	JoinKey     string
	CreatedBy   string

	// Placeholder is set for rooms synthesized after a key-based join that
	// were not yet present in a fetched directory snapshot.
	Placeholder bool
}

func (r Room) IsMember(userID string) bool {
	return slices.Contains(r.MemberIDs, userID)
}

// Full reports whether the room has reached its member limit. A room with
// an unknown limit is never full.
func (r Room) Full() bool {
	return r.MaxMembers > 0 && len(r.MemberIDs) >= r.MaxMembers
}

// CreatedRoom is the outcome of a successful room creation. JoinKey is only
// set for private rooms and is shown exactly once.
type CreatedRoom struct {
	ID       string
	Name     string
	IsPublic bool
	JoinKey  string
}

// JoinedRoom identifies the room a join resolved to.
type JoinedRoom struct {
	ID   string
	Name string
}
