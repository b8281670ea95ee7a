package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/farmkeeper/farmkeeper/internal/models"
	"github.com/farmkeeper/farmkeeper/internal/store"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an id: %q", s)
	}
	return id, nil
}

// recordKind resolves the user-typed kind tag for record commands. Farms and
// flocks have their own commands; everything else is a daily record.
func recordKind(s string) (models.Kind, error) {
	k, err := models.ParseKind(s)
	if err != nil {
		return "", err
	}
	if k == models.KindFarm || k == models.KindFlock {
		return "", fmt.Errorf("use the dedicated %s commands instead of 'records %s'", k, s)
	}
	return k, nil
}

// Records lists records of one kind: "records feed" or "records feed 3" to
// restrict to one flock.
func (a *App) Records(ctx context.Context, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: records <kind> [flockID]")
	}
	k, err := recordKind(args[0])
	if err != nil {
		return err
	}

	var opts store.ListOptions
	if len(args) > 1 {
		flockID, err := parseID(args[1])
		if err != nil {
			return err
		}
		opts.ParentLocalID = &flockID
	}

	recs, err := a.orch.List(ctx, k, opts)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintf(a.out, "No %s records found.\n", k)
		return nil
	}
	for _, r := range recs {
		fmt.Fprintln(a.out, formatRecord(r))
	}
	return nil
}

// AddRecord prompts for one record of the given kind and creates it:
// "add feed", "add production", ...
func (a *App) AddRecord(ctx context.Context, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: add <kind>")
	}
	k, err := recordKind(args[0])
	if err != nil {
		return err
	}

	rec, err := a.promptRecord(k)
	if err != nil {
		return err
	}
	if err := a.orch.Create(ctx, rec); err != nil {
		return err
	}
	a.confirmWrite("Record", rec)
	return nil
}

// Remove deletes any entity by kind and local id: "rm feed 12". It also
// accepts farm and flock so power users can skip the interactive prompts.
func (a *App) Remove(ctx context.Context, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: rm <kind> <id>")
	}
	k, err := models.ParseKind(args[0])
	if err != nil {
		return err
	}
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	if err := a.orch.Delete(ctx, k, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %d deleted.\n", k, id)
	return nil
}

// promptRecord walks the user through the fields of one record kind.
func (a *App) promptRecord(k models.Kind) (models.Record, error) {
	flockID, err := GetInt64(a.reader, "Flock id", a.out)
	if err != nil {
		return nil, err
	}
	date, err := GetDate(a.reader, "Date", a.out)
	if err != nil {
		return nil, err
	}

	switch k {
	case models.KindFeed:
		feedType, err := getSimpleText(a.reader, "Feed type", a.out)
		if err != nil {
			return nil, err
		}
		qty, err := GetFloat(a.reader, "Quantity (kg)", a.out)
		if err != nil {
			return nil, err
		}
		cost, err := GetFloat(a.reader, "Unit cost (per kg, empty = 0)", a.out)
		if err != nil {
			return nil, err
		}
		return &models.FeedRecord{FlockLocalID: flockID, Date: date, FeedType: feedType, QuantityKg: qty, UnitCost: cost}, nil

	case models.KindProduction:
		collected, err := GetInt64(a.reader, "Eggs collected", a.out)
		if err != nil {
			return nil, err
		}
		damaged, err := GetInt64(a.reader, "Eggs damaged", a.out)
		if err != nil {
			return nil, err
		}
		return &models.ProductionRecord{FlockLocalID: flockID, Date: date, EggsCollected: collected, EggsDamaged: damaged}, nil

	case models.KindMortality:
		count, err := GetInt64(a.reader, "Birds lost", a.out)
		if err != nil {
			return nil, err
		}
		cause, err := getSimpleText(a.reader, "Cause", a.out)
		if err != nil {
			return nil, err
		}
		return &models.MortalityRecord{FlockLocalID: flockID, Date: date, Count: count, Cause: cause}, nil

	case models.KindHealth:
		description, err := getSimpleText(a.reader, "Description", a.out)
		if err != nil {
			return nil, err
		}
		treatment, err := getSimpleText(a.reader, "Treatment", a.out)
		if err != nil {
			return nil, err
		}
		cost, err := GetFloat(a.reader, "Cost (empty = 0)", a.out)
		if err != nil {
			return nil, err
		}
		return &models.HealthRecord{FlockLocalID: flockID, Date: date, Description: description, Treatment: treatment, Cost: cost}, nil

	case models.KindWater:
		liters, err := GetFloat(a.reader, "Water consumed (liters)", a.out)
		if err != nil {
			return nil, err
		}
		return &models.WaterRecord{FlockLocalID: flockID, Date: date, Liters: liters}, nil

	case models.KindWeight:
		sample, err := GetInt64(a.reader, "Sample size", a.out)
		if err != nil {
			return nil, err
		}
		avg, err := GetFloat(a.reader, "Average weight (grams)", a.out)
		if err != nil {
			return nil, err
		}
		return &models.WeightRecord{FlockLocalID: flockID, Date: date, SampleSize: sample, AvgWeightGrams: avg}, nil

	case models.KindExpense:
		category, err := getSimpleText(a.reader, "Category", a.out)
		if err != nil {
			return nil, err
		}
		amount, err := GetFloat(a.reader, "Amount", a.out)
		if err != nil {
			return nil, err
		}
		return &models.Expense{FlockLocalID: flockID, Date: date, Category: category, Amount: amount}, nil

	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, k)
	}
}
