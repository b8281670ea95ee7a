package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	LoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Farms(ctx context.Context) error
	AddFarm(ctx context.Context) error
	RemoveFarm(ctx context.Context) error
	Flocks(ctx context.Context, args []string) error
	AddFlock(ctx context.Context) error
	RemoveFlock(ctx context.Context) error
	Records(ctx context.Context, args []string) error
	AddRecord(ctx context.Context, args []string) error
	Remove(ctx context.Context, args []string) error
	Summary(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Retry(ctx context.Context) error
	Status(ctx context.Context) error
}

const helpLoggedIn = `Available commands:
  farms | addfarm | rmfarm          manage farms
  flocks [farmID] | addflock | rmflock
                                    manage flocks
  records <kind> [flockID]          list records (feed, production, mortality,
                                    health, water, weight, expense)
  add <kind>                        add a record
  rm <kind> <id>                    delete a record by local id
  summary production|feed           aggregate report for one flock
  sync | retry | status             queue controls and health
  logout | exit`

const helpLoggedOut = `Available commands: register, login, status, exit`

// runREPL starts a read-eval-print loop for the farmkeeper CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF, ctx cancellation checks
// between commands, or when the user types "exit" or "quit".
//
// Errors returned by command handlers are printed, not fatal; the loop keeps
// going so an offline hiccup never kicks the user out.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}

		printlnFn(fmt.Sprintf("fk %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.LoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}

		case "register":
			err = a.Register(ctx)
		case "login":
			err = a.Login(ctx)
		case "logout":
			err = a.Logout(ctx)

		case "farms":
			err = a.Farms(ctx)
		case "addfarm":
			err = a.AddFarm(ctx)
		case "rmfarm":
			err = a.RemoveFarm(ctx)

		case "flocks":
			err = a.Flocks(ctx, args)
		case "addflock":
			err = a.AddFlock(ctx)
		case "rmflock":
			err = a.RemoveFlock(ctx)

		case "records":
			err = a.Records(ctx, args)
		case "add":
			err = a.AddRecord(ctx, args)
		case "rm":
			err = a.Remove(ctx, args)

		case "summary":
			err = a.Summary(ctx, args)

		case "sync":
			err = a.Sync(ctx)
		case "retry":
			err = a.Retry(ctx)
		case "status":
			err = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}
