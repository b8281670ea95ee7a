package cli

import (
	"context"
	"fmt"

	"github.com/farmkeeper/farmkeeper/internal/models"
	"github.com/farmkeeper/farmkeeper/internal/store"
)

// Farms lists every farm.
func (a *App) Farms(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	recs, err := a.orch.List(ctx, models.KindFarm, store.ListOptions{})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "No farms yet. Use 'addfarm'.")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintln(a.out, formatRecord(r))
	}
	return nil
}

// AddFarm prompts for farm details and creates the farm.
func (a *App) AddFarm(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	name, err := getSimpleText(a.reader, "Farm name", a.out)
	if err != nil {
		return err
	}
	location, err := getSimpleText(a.reader, "Location", a.out)
	if err != nil {
		return err
	}
	notes, err := getSimpleText(a.reader, "Notes (optional)", a.out)
	if err != nil {
		return err
	}

	farm := &models.Farm{Name: name, Location: location, Notes: notes}
	if err := a.orch.Create(ctx, farm); err != nil {
		return err
	}
	a.confirmWrite("Farm", farm)
	return nil
}

// RemoveFarm deletes a farm and everything under it: its flocks and their
// records go with it.
func (a *App) RemoveFarm(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	id, err := GetInt64(a.reader, "Farm id to delete (removes its flocks and records too)", a.out)
	if err != nil {
		return err
	}
	if err := a.orch.Delete(ctx, models.KindFarm, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Farm %d deleted.\n", id)
	return nil
}

// Flocks lists flocks, optionally restricted to one farm: "flocks 3".
func (a *App) Flocks(ctx context.Context, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	var opts store.ListOptions
	if len(args) > 0 {
		farmID, err := parseID(args[0])
		if err != nil {
			return err
		}
		opts.ParentLocalID = &farmID
	}

	recs, err := a.orch.List(ctx, models.KindFlock, opts)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "No flocks found. Use 'addflock'.")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintln(a.out, formatRecord(r))
	}
	return nil
}

// AddFlock prompts for flock details and creates the flock under a farm.
func (a *App) AddFlock(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	farmID, err := GetInt64(a.reader, "Farm id", a.out)
	if err != nil {
		return err
	}
	name, err := getSimpleText(a.reader, "Flock name", a.out)
	if err != nil {
		return err
	}
	breed, err := getSimpleText(a.reader, "Breed", a.out)
	if err != nil {
		return err
	}
	acquired, err := GetDate(a.reader, "Acquired on", a.out)
	if err != nil {
		return err
	}
	count, err := GetInt64(a.reader, "Initial bird count", a.out)
	if err != nil {
		return err
	}

	flock := &models.Flock{
		FarmLocalID:  farmID,
		Name:         name,
		Breed:        breed,
		AcquiredOn:   acquired,
		InitialCount: count,
	}
	if err := a.orch.Create(ctx, flock); err != nil {
		return err
	}
	a.confirmWrite("Flock", flock)
	return nil
}

// RemoveFlock deletes a flock and its records.
func (a *App) RemoveFlock(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	id, err := GetInt64(a.reader, "Flock id to delete (removes its records too)", a.out)
	if err != nil {
		return err
	}
	if err := a.orch.Delete(ctx, models.KindFlock, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Flock %d deleted.\n", id)
	return nil
}

// confirmWrite tells the user their write landed, and whether it is still
// waiting for the backend.
func (a *App) confirmWrite(what string, rec models.Record) {
	m := rec.Meta()
	if m.Synced() && !m.NeedsSync {
		fmt.Fprintf(a.out, "%s saved (id %d, synced).\n", what, m.LocalID)
	} else {
		fmt.Fprintf(a.out, "%s saved locally (id %d); it will sync when online.\n", what, m.LocalID)
	}
}
