package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
	"github.com/dmitrijs2005/tacticallink/internal/client/services"
)

// Users prints the user directory. A failed refresh falls back to the last
// snapshot.
func (a *App) Users(ctx context.Context) error {
	if err := a.coord.Directory.RefreshUsers(ctx); err != nil {
		a.printf("Showing cached users: %s\n", client.Reason(err))
	}
	users := a.coord.Directory.Users()
	if len(users) == 0 {
		a.println("No other users")
		return nil
	}
	for _, u := range users {
		if u.IsAdmin {
			a.printf("  %s (admin)\n", u.Username)
		} else {
			a.printf("  %s\n", u.Username)
		}
	}
	return nil
}

// Rooms prints the rooms visible to the user.
func (a *App) Rooms(ctx context.Context) error {
	if err := a.coord.Directory.RefreshRooms(ctx); err != nil {
		a.printf("Showing cached rooms: %s\n", client.Reason(err))
	}
	rooms := a.coord.Directory.Rooms()
	if len(rooms) == 0 {
		a.println("No rooms")
		return nil
	}
	me, _ := a.session.Identity()
	for _, r := range rooms {
		a.println(formatRoom(r, me.ID))
	}
	return nil
}

func formatRoom(r models.Room, selfID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s", r.Name)
	if r.IsPublic {
		b.WriteString(" [public]")
	} else {
		b.WriteString(" [private]")
	}
	if r.MaxMembers > 0 {
		fmt.Fprintf(&b, " %d/%d", len(r.MemberIDs), r.MaxMembers)
	}
	if r.IsMember(selfID) {
		b.WriteString(" member")
		if r.JoinKey != "" {
			fmt.Fprintf(&b, " key=%s", r.JoinKey)
		}
	}
	if r.Description != "" {
		fmt.Fprintf(&b, " - %s", r.Description)
	}
	return b.String()
}

// Create prompts for the room settings and creates it. The join key of a
// private room is printed here and nowhere else.
func (a *App) Create(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Room name", a.out)
	if err != nil {
		return err
	}
	description, err := getSimpleText(a.reader, "Description (optional)", a.out)
	if err != nil {
		return err
	}
	private, err := getSimpleText(a.reader, "Private? (y/N)", a.out)
	if err != nil {
		return err
	}
	limit, err := getSimpleText(a.reader, fmt.Sprintf("Max members (default %d)", services.DefaultMaxMembers), a.out)
	if err != nil {
		return err
	}

	maxMembers := 0
	if limit != "" {
		if maxMembers, err = strconv.Atoi(limit); err != nil {
			return client.Validationf("max members must be a number, got %q", limit)
		}
	}

	created, err := a.coord.CreateRoom(ctx, name, description, yes(private), maxMembers)
	if err != nil {
		return err
	}
	a.printf("Created room %s\n", created.Name)
	if created.JoinKey != "" {
		a.printf("Join key: %s (share it now, it will not be shown again)\n", created.JoinKey)
	}
	return nil
}

// Join joins a public room by name or id and selects it.
func (a *App) Join(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return client.Validationf("usage: join <room>")
	}
	id := args[0]
	if r, err := a.findRoom(ctx, args[0]); err == nil {
		id = r.ID
	}
	joined, err := a.coord.JoinRoom(ctx, id)
	if err != nil {
		return err
	}
	a.printf("Joined %s\n", joined.Name)
	return nil
}

// JoinKey joins a private room with its shared key and selects it.
func (a *App) JoinKey(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return client.Validationf("usage: joinkey <key>")
	}
	joined, err := a.coord.JoinByKey(ctx, args[0])
	if err != nil {
		return err
	}
	a.printf("Joined %s\n", joined.Name)
	return nil
}

// Leave leaves the named room, or the selected one when no name is given.
func (a *App) Leave(ctx context.Context, args []string) error {
	var id string
	switch len(args) {
	case 0:
		ref := a.coord.Conversations.Selected()
		if ref.Kind != models.ConversationRoom {
			return client.Validationf("usage: leave <room>")
		}
		id = ref.ID
	case 1:
		r, err := a.findRoom(ctx, args[0])
		if err != nil {
			return err
		}
		id = r.ID
	default:
		return client.Validationf("usage: leave <room>")
	}
	if err := a.coord.LeaveRoom(ctx, id); err != nil {
		return err
	}
	a.println("Left room")
	return nil
}

func yes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}
