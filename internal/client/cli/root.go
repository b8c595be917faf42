package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
)

func (a *App) getStatus() string {
	s := ""
	if id, ok := a.session.Identity(); ok {
		s = id.Username + " "
		if ref := a.coord.Conversations.Selected(); !ref.IsZero() {
			s += "@" + a.conversationName(ref.Kind == models.ConversationRoom, ref.ID) + " "
		}
	}
	if m := a.mode(); m != "" {
		s = s + string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func (a *App) conversationName(room bool, id string) string {
	if !room {
		return a.userName(id)
	}
	if r, ok := a.coord.Directory.Room(id); ok {
		return r.Name
	}
	return id
}

// Root restores any saved session, starts the background watchers and runs
// the REPL until the user exits or ctx is done.
func (a *App) Root(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.println("Welcome to TacticalLink CLI (type 'help' for commands)")

	if err := a.session.Start(ctx); err != nil {
		a.println("Saved session not restored:", client.Reason(err))
	}
	if id, ok := a.session.Identity(); ok {
		a.printf("Logged in as %s\n", id.Username)
	}

	a.checkOnline(ctx)
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	go a.watchEvents(ctx)

	runREPL(ctx, a, a.getStatus, a.reader)
	return nil
}
