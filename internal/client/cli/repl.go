package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error

	Users(ctx context.Context) error
	Rooms(ctx context.Context) error
	DM(ctx context.Context, args []string) error
	Room(ctx context.Context, args []string) error
	Close(ctx context.Context) error
	Show(ctx context.Context) error
	Send(ctx context.Context, args []string) error
	Burn(ctx context.Context, args []string) error
	Once(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error

	Create(ctx context.Context) error
	Join(ctx context.Context, args []string) error
	JoinKey(ctx context.Context, args []string) error
	Leave(ctx context.Context, args []string) error

	Status(ctx context.Context) error
	Analyze(ctx context.Context) error
	Admin(ctx context.Context, args []string) error
	Stats(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: register, login, whoami, stats, exit"
	helpLoggedIn  = `Available commands:
  users, rooms                 list the directories
  dm <user>, room <name>       open a conversation
  show, close                  print or leave the open conversation
  send <text>                  send a message
  burn <seconds> <text>        send a self-destructing message
  once <text>                  send a read-once message
  delete <id>                  delete one of your messages
  create, join <room>, joinkey <key>, leave [room]
  status, analyze              threat level
  admin [close]                admin dashboard
  whoami, stats, logout, exit`
)

// runREPL starts a simple read-eval-print loop for the TacticalLink CLI.
//
// It reads a line from in, parses the first token as the command, and
// dispatches to methods on 'a' with the remaining tokens as arguments.
// Command errors are printed and the loop continues. The loop exits on EOF
// or when the user types "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, in *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("tl %s> ", statusFn()))
		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			run, ok := dispatch(a, cmd, args)
			if !ok {
				printlnFn("Unknown command:", cmd)
				continue
			}
			if err := run(ctx); err != nil {
				printlnFn("Error:", client.Reason(err))
			}
		}
	}
}

func dispatch(a execIface, cmd string, args []string) (func(context.Context) error, bool) {
	withArgs := func(fn func(context.Context, []string) error) func(context.Context) error {
		return func(ctx context.Context) error { return fn(ctx, args) }
	}

	switch cmd {
	case "register":
		return a.Register, true
	case "login":
		return a.Login, true
	case "logout":
		return a.Logout, true
	case "whoami":
		return a.WhoAmI, true
	case "users":
		return a.Users, true
	case "rooms":
		return a.Rooms, true
	case "dm":
		return withArgs(a.DM), true
	case "room":
		return withArgs(a.Room), true
	case "close":
		return a.Close, true
	case "show":
		return a.Show, true
	case "send", "s":
		return withArgs(a.Send), true
	case "burn":
		return withArgs(a.Burn), true
	case "once":
		return withArgs(a.Once), true
	case "delete":
		return withArgs(a.Delete), true
	case "create":
		return a.Create, true
	case "join":
		return withArgs(a.Join), true
	case "joinkey":
		return withArgs(a.JoinKey), true
	case "leave":
		return withArgs(a.Leave), true
	case "status":
		return a.Status, true
	case "analyze":
		return a.Analyze, true
	case "admin":
		return withArgs(a.Admin), true
	case "stats":
		return a.Stats, true
	}
	return nil, false
}
