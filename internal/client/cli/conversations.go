package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
)

const timeLayout = "15:04:05"

// DM focuses the direct conversation with the named user and prints it.
func (a *App) DM(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return client.Validationf("usage: dm <username>")
	}
	u, err := a.findUser(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.coord.SelectDirect(u.ID); err != nil {
		return err
	}
	if err := a.coord.Conversations.LoadDirect(ctx, u.ID); err != nil {
		return err
	}
	a.printf("Conversation with %s\n", u.Username)
	return a.Show(ctx)
}

// Room focuses a room the user is a member of and prints it.
func (a *App) Room(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return client.Validationf("usage: room <name>")
	}
	r, err := a.findRoom(ctx, args[0])
	if err != nil {
		return err
	}
	me, _ := a.session.Identity()
	if !r.IsMember(me.ID) {
		return fmt.Errorf("%w: not a member of %s, join it first", client.ErrForbidden, r.Name)
	}
	if err := a.coord.SelectRoom(r.ID); err != nil {
		return err
	}
	if err := a.coord.Conversations.LoadRoom(ctx, r.ID); err != nil {
		return err
	}
	a.printf("Room %s\n", r.Name)
	return a.Show(ctx)
}

// Close drops the selected conversation; new messages are announced again.
func (a *App) Close(context.Context) error {
	a.coord.ClearSelection()
	return nil
}

// Show prints the selected conversation. Viewing it marks incoming
// messages read, which consumes read-once messages.
func (a *App) Show(context.Context) error {
	ref := a.coord.Conversations.Selected()
	if ref.IsZero() {
		return client.Validationf("no conversation selected")
	}
	me, _ := a.session.Identity()
	msgs := a.coord.Conversations.View(ref, me.ID)
	if len(msgs) == 0 {
		a.println("No messages")
		return nil
	}
	for _, m := range msgs {
		a.println(a.formatMessage(m))
	}
	return nil
}

func (a *App) formatMessage(m models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", m.Timestamp.Local().Format(timeLayout), a.senderName(m), m.Content)
	if at, ok := m.ExpiresAt(); ok {
		left := at.Sub(a.clock.Now()).Round(time.Second)
		fmt.Fprintf(&b, " (burns in %s)", max(left, 0))
	}
	if m.ReadOnce {
		b.WriteString(" (read once)")
	}
	if lvl := models.LevelForScore(m.ThreatScore); lvl != models.ThreatLow {
		fmt.Fprintf(&b, " [threat %.0f %s]", m.ThreatScore, lvl)
	}
	fmt.Fprintf(&b, " #%s", m.ID)
	return b.String()
}

// Send posts text to the selected conversation.
func (a *App) Send(ctx context.Context, args []string) error {
	return a.send(ctx, models.Draft{Content: strings.Join(args, " ")})
}

// Burn sends a message that self-destructs after the given seconds.
func (a *App) Burn(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return client.Validationf("usage: burn <seconds> <text>")
	}
	secs, err := strconv.Atoi(args[0])
	if err != nil {
		return client.Validationf("seconds must be a number, got %q", args[0])
	}
	return a.send(ctx, models.Draft{Content: strings.Join(args[1:], " "), SelfDestructSeconds: secs})
}

// Once sends a message that disappears after the recipient reads it.
func (a *App) Once(ctx context.Context, args []string) error {
	return a.send(ctx, models.Draft{Content: strings.Join(args, " "), ReadOnce: true})
}

func (a *App) send(ctx context.Context, d models.Draft) error {
	receipt, err := a.coord.Send(ctx, d)
	if err != nil {
		return err
	}
	a.printf("Sent #%s (threat %.0f %s)\n", receipt.MessageID, receipt.ThreatScore, receipt.Level())
	return nil
}

// Delete removes one of the user's messages.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return client.Validationf("usage: delete <message id>")
	}
	if err := a.coord.Conversations.Delete(ctx, strings.TrimPrefix(args[0], "#")); err != nil {
		return err
	}
	a.println("Deleted")
	return nil
}

// findUser looks name up in the directory, refreshing it once on a miss.
func (a *App) findUser(ctx context.Context, name string) (models.User, error) {
	if u, ok := a.coord.Directory.UserByName(name); ok {
		return u, nil
	}
	if err := a.coord.Directory.RefreshUsers(ctx); err != nil {
		return models.User{}, err
	}
	if u, ok := a.coord.Directory.UserByName(name); ok {
		return u, nil
	}
	return models.User{}, fmt.Errorf("%w: no user named %s", client.ErrNotFound, name)
}

// findRoom resolves a room by name or id, refreshing the directory once on
// a miss.
func (a *App) findRoom(ctx context.Context, ref string) (models.Room, error) {
	lookup := func() (models.Room, bool) {
		if r, ok := a.coord.Directory.RoomByName(ref); ok {
			return r, true
		}
		return a.coord.Directory.Room(ref)
	}
	if r, ok := lookup(); ok {
		return r, nil
	}
	if err := a.coord.Directory.RefreshRooms(ctx); err != nil {
		return models.Room{}, err
	}
	if r, ok := lookup(); ok {
		return r, nil
	}
	return models.Room{}, fmt.Errorf("%w: no room named %s", client.ErrNotFound, ref)
}

func (a *App) senderName(m models.Message) string {
	if m.SenderUsername != "" {
		return m.SenderUsername
	}
	return a.userName(m.SenderID)
}
