package cli

import (
	"fmt"
	"strings"

	"github.com/farmkeeper/farmkeeper/internal/models"
)

// formatRecord renders one record as a single list line. Rows the backend
// has not seen yet are marked with a trailing asterisk.
func formatRecord(r models.Record) string {
	var b strings.Builder

	m := r.Meta()
	fmt.Fprintf(&b, "%4d  ", m.LocalID)

	switch rec := r.(type) {
	case *models.Farm:
		fmt.Fprintf(&b, "%s (%s)", rec.Name, rec.Location)
	case *models.Flock:
		fmt.Fprintf(&b, "%s, %s, %d birds, acquired %s",
			rec.Name, rec.Breed, rec.InitialCount, rec.AcquiredOn.Format(dateLayout))
	case *models.FeedRecord:
		fmt.Fprintf(&b, "%s  flock %d  %s %.1f kg @ %.2f",
			rec.Date.Format(dateLayout), rec.FlockLocalID, rec.FeedType, rec.QuantityKg, rec.UnitCost)
	case *models.ProductionRecord:
		fmt.Fprintf(&b, "%s  flock %d  %d eggs (%d damaged)",
			rec.Date.Format(dateLayout), rec.FlockLocalID, rec.EggsCollected, rec.EggsDamaged)
	case *models.MortalityRecord:
		fmt.Fprintf(&b, "%s  flock %d  %d lost: %s",
			rec.Date.Format(dateLayout), rec.FlockLocalID, rec.Count, rec.Cause)
	case *models.HealthRecord:
		fmt.Fprintf(&b, "%s  flock %d  %s / %s (%.2f)",
			rec.Date.Format(dateLayout), rec.FlockLocalID, rec.Description, rec.Treatment, rec.Cost)
	case *models.WaterRecord:
		fmt.Fprintf(&b, "%s  flock %d  %.1f L",
			rec.Date.Format(dateLayout), rec.FlockLocalID, rec.Liters)
	case *models.WeightRecord:
		fmt.Fprintf(&b, "%s  flock %d  avg %.0f g over %d birds",
			rec.Date.Format(dateLayout), rec.FlockLocalID, rec.AvgWeightGrams, rec.SampleSize)
	case *models.Expense:
		fmt.Fprintf(&b, "%s  flock %d  %s %.2f",
			rec.Date.Format(dateLayout), rec.FlockLocalID, rec.Category, rec.Amount)
	default:
		fmt.Fprintf(&b, "%s", r.Kind())
	}

	if notes := recordNotes(r); notes != "" {
		fmt.Fprintf(&b, "  (%s)", notes)
	}
	if m.NeedsSync || !m.Synced() {
		b.WriteString("  *")
	}
	return b.String()
}

func recordNotes(r models.Record) string {
	switch rec := r.(type) {
	case *models.Farm:
		return rec.Notes
	case *models.Flock:
		return rec.Notes
	case *models.FeedRecord:
		return rec.Notes
	case *models.ProductionRecord:
		return rec.Notes
	case *models.MortalityRecord:
		return rec.Notes
	case *models.HealthRecord:
		return rec.Notes
	case *models.WaterRecord:
		return rec.Notes
	case *models.WeightRecord:
		return rec.Notes
	case *models.Expense:
		return rec.Notes
	default:
		return ""
	}
}
