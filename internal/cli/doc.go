// Package cli provides the interactive farmkeeper command-line client.
//
// It wires the sync orchestrator into a REPL that works online and offline:
// every command goes through the orchestrator, which routes to the backend
// when reachable and to the local store otherwise.
//
// Key commands:
//   - register / login / logout (login falls back to cached credentials)
//   - addfarm, addflock, add <kind> — capture farm data
//   - farms, flocks, records <kind> — browse it
//   - summary production|feed — aggregate reports
//   - sync, retry, status — queue and health controls
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
