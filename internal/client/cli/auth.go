package cli

import (
	"context"

	"github.com/dmitrijs2005/tacticallink/internal/client/services"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a username, email and a confirmed password and
// creates the account. A successful registration is also a login.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer clear(password)

	confirmation, err := getPassword(a.out, "Confirm password")
	if err != nil {
		return err
	}
	defer clear(confirmation)

	if err := services.ConfirmPassword(string(password), string(confirmation)); err != nil {
		return err
	}

	id, err := a.session.Register(ctx, userName, email, string(password))
	if err != nil {
		return err
	}
	a.printf("Welcome, %s!\n", id.Username)
	return nil
}

// Login prompts for credentials and starts the session. Polling begins as
// soon as the session is authenticated.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer clear(password)

	id, err := a.session.Login(ctx, userName, string(password))
	if err != nil {
		return err
	}
	if id.IsAdmin {
		a.printf("Logged in as %s (admin)\n", id.Username)
	} else {
		a.printf("Logged in as %s\n", id.Username)
	}
	return nil
}

// Logout ends the session and forgets the stored credential.
func (a *App) Logout(ctx context.Context) error {
	if err := a.coord.Logout(ctx); err != nil {
		return err
	}
	a.println("Logged out")
	return nil
}

func (a *App) WhoAmI(context.Context) error {
	id, ok := a.session.Identity()
	if !ok {
		a.printf("Not logged in (%s)\n", a.session.Phase())
		return nil
	}
	role := "user"
	if id.IsAdmin {
		role = "admin"
	}
	a.printf("%s (%s, id %s)\n", id.Username, role, id.ID)
	return nil
}
