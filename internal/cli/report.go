package cli

import (
	"context"
	"fmt"
	"time"
)

// Summary runs an aggregate report for one flock: "summary production" or
// "summary feed". The flock and an optional date window are prompted for.
func (a *App) Summary(ctx context.Context, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: summary production|feed")
	}

	flockID, err := GetInt64(a.reader, "Flock id", a.out)
	if err != nil {
		return err
	}
	from, _, err := GetOptionalDate(a.reader, "From", a.out)
	if err != nil {
		return err
	}
	to, hasTo, err := GetOptionalDate(a.reader, "To (exclusive)", a.out)
	if err != nil {
		return err
	}
	if hasTo {
		// The store treats To as exclusive; include the named day.
		to = to.Add(24 * time.Hour)
	}

	switch args[0] {
	case "production":
		s, err := a.orch.ProductionSummary(ctx, flockID, from, to)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Flock %d: %d eggs collected, %d damaged, over %d recorded day(s).\n",
			s.FlockLocalID, s.EggsCollected, s.EggsDamaged, s.DaysRecorded)

	case "feed":
		s, err := a.orch.FeedSummary(ctx, flockID, from, to)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Flock %d: %.1f kg of feed, total cost %.2f, over %d recorded day(s).\n",
			s.FlockLocalID, s.QuantityKg, s.TotalCost, s.DaysRecorded)

	default:
		return fmt.Errorf("unknown summary %q, want production or feed", args[0])
	}
	return nil
}

// Sync forces a reconciliation pass right now and prints the outcome.
func (a *App) Sync(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	report, err := a.orch.SyncNow(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Sync finished in %s: %d synced, %d skipped, %d retried, %d parked.\n",
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		report.Synced, report.Skipped, report.Retried, report.Parked)
	if report.Aborted {
		fmt.Fprintln(a.out, "Pass stopped early; the rest of the queue waits for the next attempt.")
	}
	return nil
}

// Retry re-arms queue entries parked after exhausting their attempts.
func (a *App) Retry(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	failed, err := a.orch.FailedEntries(ctx)
	if err != nil {
		return err
	}
	if len(failed) == 0 {
		fmt.Fprintln(a.out, "No failed entries.")
		return nil
	}
	for _, e := range failed {
		fmt.Fprintf(a.out, "  %s %s (local id %d): %s\n", e.Operation, e.Kind, e.LocalID, e.ErrorMessage)
	}

	n, err := a.orch.RetryFailed(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d entr(ies) queued again.\n", n)
	return nil
}

// Status prints a health snapshot: connectivity, session, queue backlog,
// breaker states and the support machinery counters.
func (a *App) Status(ctx context.Context) error {
	st, err := a.orch.Status(ctx)
	if err != nil {
		return err
	}

	mode := "offline"
	if st.Online {
		mode = "online"
	}
	fmt.Fprintf(a.out, "Connectivity: %s (checked %s)\n", mode, st.Connectivity.CheckedAt.Format(time.RFC3339))
	if st.Connectivity.LastError != "" {
		fmt.Fprintf(a.out, "  last probe error: %s\n", st.Connectivity.LastError)
	}
	fmt.Fprintf(a.out, "Session: logged in = %v\n", st.LoggedIn)
	if st.Ephemeral {
		fmt.Fprintln(a.out, "WARNING: storage is in-memory; local changes will not survive a restart.")
	}

	fmt.Fprintln(a.out, "Queue:")
	for status, n := range st.Queue {
		fmt.Fprintf(a.out, "  %-10s %d\n", status, n)
	}

	fmt.Fprintln(a.out, "Breakers:")
	for _, b := range st.Breakers {
		fmt.Fprintf(a.out, "  %-12s %-9s failures=%d rejected=%d\n", b.Name, b.State, b.Failures, b.Rejected)
	}

	fmt.Fprintf(a.out, "Writes: depth=%d peak=%d processed=%d failed=%d\n",
		st.Writes.Depth, st.Writes.PeakDepth, st.Writes.Processed, st.Writes.Failed)
	fmt.Fprintf(a.out, "Cache: %d entries, %d hits, %d misses\n",
		st.Cache.Entries, st.Cache.Hits, st.Cache.Misses)

	if st.LastSync != nil {
		fmt.Fprintf(a.out, "Last sync: %s (%d synced, %d parked)\n",
			st.LastSync.FinishedAt.Format(time.RFC3339), st.LastSync.Synced, st.LastSync.Parked)
	}
	return nil
}
