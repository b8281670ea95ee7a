package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/config"
	"github.com/farmkeeper/farmkeeper/internal/events"
	"github.com/farmkeeper/farmkeeper/internal/logging"
	"github.com/farmkeeper/farmkeeper/internal/syncer"
)

// App is the interactive client. It owns no domain logic: every command is a
// thin prompt-and-dispatch wrapper around the orchestrator.
type App struct {
	cfg    *config.Config
	orch   *syncer.Orchestrator
	bus    *events.Bus
	log    logging.Logger
	reader *bufio.Reader
	out    io.Writer
}

// NewApp wires an App over an already-constructed orchestrator.
func NewApp(cfg *config.Config, orch *syncer.Orchestrator, bus *events.Bus, log logging.Logger) *App {
	if log == nil {
		log = logging.Nop{}
	}
	return &App{
		cfg:    cfg,
		orch:   orch,
		bus:    bus,
		log:    log,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

// LoggedIn reports whether a session is active.
func (a *App) LoggedIn() bool {
	return a.orch.LoggedIn()
}

// requireSession guards commands that touch domain data. Login works offline
// against cached credentials, so the guard never strands a disconnected user.
func (a *App) requireSession() error {
	if !a.orch.LoggedIn() {
		return fmt.Errorf("%w, use 'login' first", common.ErrNotLoggedIn)
	}
	return nil
}

// promptStatus builds the "(ana@farm online)" fragment shown in the prompt.
func (a *App) promptStatus() string {
	s := ""
	if p := a.orch.Profile(); p != nil {
		s = p.Email + " "
	}
	if a.orch.Online() {
		s += "online"
	} else {
		s += "offline"
	}
	return fmt.Sprintf("(%s)", s)
}

// watchSyncEvents prints a one-liner whenever a background reconciliation
// pass lands pending changes, so the user learns their offline edits made it
// to the server without polling status.
func (a *App) watchSyncEvents(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(16)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Name != events.DataSynced {
				continue
			}
			report, ok := e.Data.(syncer.SyncReport)
			if !ok || report.Synced == 0 {
				continue
			}
			printlnFn(fmt.Sprintf("[sync] %d pending change(s) reached the server", report.Synced))
		}
	}
}

// Run starts the REPL and blocks until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "farmkeeper CLI (type 'help' for commands)")

	go a.watchSyncEvents(ctx)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.promptStatus, scanner)
}
