package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/remote"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for account details and creates a new account on the
// backend. Registration needs a connection; the orchestrator rejects it
// offline.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	fullName, err := getSimpleText(a.reader, "Enter full name", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.orch.Register(ctx, email, fullName, password); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Account created. Use 'login' to start a session.")
	return nil
}

// Login prompts for credentials and opens a session.
//
// The orchestrator tries the backend first and falls back to locally cached
// credentials when it is unreachable. If the account belongs to several
// organizations the backend asks for a choice; the user picks one and the
// login is retried with that organization.
//
// The password is wiped before returning.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	profile, err := a.orch.Login(ctx, email, password, 0)

	var orgErr *remote.OrgSelectionError
	if errors.As(err, &orgErr) {
		fmt.Fprintln(a.out, "Account belongs to several organizations:")
		for _, org := range orgErr.Organizations {
			fmt.Fprintf(a.out, "  %d\t%s\n", org.ID, org.Name)
		}
		choice, err := getSimpleText(a.reader, "Enter organization id", a.out)
		if err != nil {
			return err
		}
		orgID, err := strconv.ParseInt(choice, 10, 64)
		if err != nil {
			return fmt.Errorf("not an organization id: %q", choice)
		}
		profile, err = a.orch.Login(ctx, email, password, orgID)
		if err != nil {
			return err
		}
		a.greet(profile.Email)
		return nil
	}
	if err != nil {
		return err
	}

	a.greet(profile.Email)
	return nil
}

func (a *App) greet(email string) {
	if a.orch.Online() {
		fmt.Fprintf(a.out, "Logged in as %s.\n", email)
	} else {
		fmt.Fprintf(a.out, "Logged in as %s (offline; changes will sync later).\n", email)
	}
}

// Logout ends the session, clears cached credentials and drops cached reads.
func (a *App) Logout(ctx context.Context) error {
	if err := a.orch.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}
