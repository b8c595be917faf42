package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
	"github.com/dmitrijs2005/tacticallink/internal/logging"
)

const DefaultMaxMembers = 50

// DirectoryTracker keeps the user and room directories. Each successful
// refresh replaces the previous snapshot; a failed one leaves it alone.
type DirectoryTracker struct {
	client client.Client
	log    logging.Logger
	self   func() (models.Identity, bool)

	mu    sync.Mutex
	users []models.User
	rooms []models.Room
	// placeholders are rooms known locally (created or joined by key) that
	// no fetched snapshot has confirmed yet, keyed by room id. The value's
	// seq is the rooms sequence current when they were added.
	placeholders map[string]placeholder

	usersIssued, usersApplied uint64
	roomsIssued, roomsApplied uint64
}

type placeholder struct {
	room models.Room
	seq  uint64
}

type DirectoryOption func(*DirectoryTracker)

func WithDirectoryLogger(l logging.Logger) DirectoryOption {
	return func(d *DirectoryTracker) { d.log = l }
}

func WithDirectorySelf(fn func() (models.Identity, bool)) DirectoryOption {
	return func(d *DirectoryTracker) { d.self = fn }
}

func NewDirectoryTracker(c client.Client, opts ...DirectoryOption) *DirectoryTracker {
	d := &DirectoryTracker{
		client:       c,
		log:          logging.Discard(),
		self:         func() (models.Identity, bool) { return models.Identity{}, false },
		placeholders: make(map[string]placeholder),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DirectoryTracker) RefreshUsers(ctx context.Context) error {
	d.mu.Lock()
	d.usersIssued++
	seq := d.usersIssued
	d.mu.Unlock()

	users, err := d.client.Users(ctx)
	if err != nil {
		return fmt.Errorf("refresh users: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if ctx.Err() != nil || seq <= d.usersApplied {
		return nil
	}
	d.usersApplied = seq
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	d.users = users
	return nil
}

func (d *DirectoryTracker) RefreshRooms(ctx context.Context) error {
	d.mu.Lock()
	d.roomsIssued++
	seq := d.roomsIssued
	d.mu.Unlock()

	rooms, err := d.client.Rooms(ctx)
	if err != nil {
		return fmt.Errorf("refresh rooms: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if ctx.Err() != nil || seq <= d.roomsApplied {
		return nil
	}
	d.roomsApplied = seq
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	d.rooms = rooms
	for id, p := range d.placeholders {
		if p.seq < seq {
			delete(d.placeholders, id)
		}
	}
	return nil
}

func (d *DirectoryTracker) Users() []models.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.users)
}

// Rooms returns the fetched rooms followed by unconfirmed placeholders.
func (d *DirectoryTracker) Rooms() []models.Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Room, 0, len(d.rooms)+len(d.placeholders))
	for _, r := range d.rooms {
		r.MemberIDs = slices.Clone(r.MemberIDs)
		out = append(out, r)
	}
	extra := make([]models.Room, 0, len(d.placeholders))
	for _, p := range d.placeholders {
		if d.indexLocked(p.room.ID) < 0 {
			extra = append(extra, p.room)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Name < extra[j].Name })
	return append(out, extra...)
}

func (d *DirectoryTracker) Room(id string) (models.Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roomLocked(id)
}

func (d *DirectoryTracker) roomLocked(id string) (models.Room, bool) {
	if i := d.indexLocked(id); i >= 0 {
		return d.rooms[i], true
	}
	if p, ok := d.placeholders[id]; ok {
		return p.room, true
	}
	return models.Room{}, false
}

func (d *DirectoryTracker) indexLocked(id string) int {
	return slices.IndexFunc(d.rooms, func(r models.Room) bool { return r.ID == id })
}

// UserByName resolves a username to a directory entry.
func (d *DirectoryTracker) UserByName(name string) (models.User, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Username, name) {
			return u, true
		}
	}
	return models.User{}, false
}

// RoomByName resolves a room name to a directory entry.
func (d *DirectoryTracker) RoomByName(name string) (models.Room, bool) {
	for _, r := range d.Rooms() {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return models.Room{}, false
}

// CreateRoom creates a room. maxMembers of 0 means the default of 50.
// Private rooms come back with the join key the creator must share.
func (d *DirectoryTracker) CreateRoom(ctx context.Context, name, description string, private bool, maxMembers int) (models.CreatedRoom, error) {
	name = strings.TrimSpace(name)
	if maxMembers == 0 {
		maxMembers = DefaultMaxMembers
	}
	in := createRoomInput{Name: name, Description: description, MaxMembers: maxMembers}
	if err := validateInput(in); err != nil {
		return models.CreatedRoom{}, err
	}

	created, err := d.client.CreateRoom(ctx, client.CreateRoomRequest{
		Name:        name,
		Description: description,
		IsPublic:    !private,
		MaxMembers:  maxMembers,
	})
	if err != nil {
		return models.CreatedRoom{}, fmt.Errorf("create room: %w", err)
	}

	var members []string
	me, ok := d.self()
	if ok {
		members = []string{me.ID}
	}
	d.mu.Lock()
	d.placeholders[created.ID] = placeholder{
		seq: d.roomsIssued,
		room: models.Room{
			ID:          created.ID,
			Name:        created.Name,
			Description: description,
			IsPublic:    created.IsPublic,
			MemberIDs:   members,
			MaxMembers:  maxMembers,
			JoinKey:     created.JoinKey,
			CreatedBy:   me.ID,
			Placeholder: true,
		},
	}
	d.mu.Unlock()
	return created, nil
}

// JoinRoom joins a public room by id. Joining a room the caller already
// belongs to succeeds without contacting the server.
func (d *DirectoryTracker) JoinRoom(ctx context.Context, roomID string) (models.JoinedRoom, error) {
	if roomID == "" {
		return models.JoinedRoom{}, client.Validationf("room id is required")
	}
	me, _ := d.self()

	if room, ok := d.Room(roomID); ok {
		switch {
		case me.ID != "" && room.IsMember(me.ID):
			return models.JoinedRoom{ID: room.ID, Name: room.Name}, nil
		case !room.IsPublic:
			return models.JoinedRoom{}, client.Validationf("room %q is private, use its join key", room.Name)
		case room.Full():
			return models.JoinedRoom{}, client.Validationf("Room is full")
		}
	}

	res, err := d.client.JoinRoom(ctx, roomID)
	if err != nil {
		return models.JoinedRoom{}, fmt.Errorf("join room: %w", err)
	}
	joined := res.Room
	if joined.ID == "" {
		joined.ID = roomID
	}
	d.addMember(joined, me.ID, "")
	return joined, nil
}

// JoinByKey joins a private room by its shared key. The key is matched
// case-insensitively.
func (d *DirectoryTracker) JoinByKey(ctx context.Context, key string) (models.JoinedRoom, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if err := validateInput(joinKeyInput{Key: key}); err != nil {
		return models.JoinedRoom{}, err
	}

	res, err := d.client.JoinByKey(ctx, key)
	if err != nil {
		return models.JoinedRoom{}, fmt.Errorf("join by key: %w", err)
	}
	me, _ := d.self()

	joined := res.Room
	if joined.ID == "" {
		// Already a member; the server does not say of which room.
		room, ok := d.roomByKey(key)
		if !ok {
			if err := d.RefreshRooms(ctx); err != nil {
				return models.JoinedRoom{}, fmt.Errorf("join by key: %w", err)
			}
			room, ok = d.roomByKey(key)
		}
		if !ok {
			return models.JoinedRoom{}, fmt.Errorf("join by key: %w: room for key not reported", client.ErrMalformedResponse)
		}
		return models.JoinedRoom{ID: room.ID, Name: room.Name}, nil
	}

	d.addMember(joined, me.ID, key)
	return joined, nil
}

func (d *DirectoryTracker) roomByKey(key string) (models.Room, bool) {
	for _, r := range d.Rooms() {
		if r.JoinKey != "" && strings.EqualFold(r.JoinKey, key) {
			return r, true
		}
	}
	return models.Room{}, false
}

// addMember records userID as a member of joined, synthesizing a
// placeholder if the room is not in the directory yet.
func (d *DirectoryTracker) addMember(joined models.JoinedRoom, userID, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if i := d.indexLocked(joined.ID); i >= 0 {
		r := &d.rooms[i]
		if userID != "" && !r.IsMember(userID) {
			r.MemberIDs = append(slices.Clone(r.MemberIDs), userID)
		}
		return
	}
	if p, ok := d.placeholders[joined.ID]; ok {
		if userID != "" && !p.room.IsMember(userID) {
			p.room.MemberIDs = append(slices.Clone(p.room.MemberIDs), userID)
			d.placeholders[joined.ID] = p
		}
		return
	}

	room := models.Room{
		ID:          joined.ID,
		Name:        joined.Name,
		IsPublic:    key == "",
		JoinKey:     key,
		Placeholder: true,
	}
	if userID != "" {
		room.MemberIDs = []string{userID}
	}
	d.placeholders[joined.ID] = placeholder{room: room, seq: d.roomsIssued}
}

// LeaveRoom removes the caller from roomID. A private room disappears
// from the directory since it is no longer visible to the caller.
func (d *DirectoryTracker) LeaveRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return client.Validationf("room id is required")
	}
	if err := d.client.LeaveRoom(ctx, roomID); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}

	me, _ := d.self()
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.placeholders, roomID)
	if i := d.indexLocked(roomID); i >= 0 {
		r := d.rooms[i]
		if !r.IsPublic {
			d.rooms = slices.Delete(d.rooms, i, i+1)
			return nil
		}
		r.MemberIDs = slices.DeleteFunc(slices.Clone(r.MemberIDs), func(id string) bool { return id == me.ID })
		d.rooms[i] = r
	}
	return nil
}

func (d *DirectoryTracker) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = nil
	d.rooms = nil
	d.placeholders = make(map[string]placeholder)
	d.usersApplied = d.usersIssued
	d.roomsApplied = d.roomsIssued
}
