package feed

import (
	"fmt"
	"io"
	"strings"
)

const reportSampleSize = 10

func (r *ComparisonReport) HasDifferences() bool {
	return r.TotalDiffs > 0
}

// Print writes a human readable summary of the report.
func (r *ComparisonReport) Print(w io.Writer, schema *Schema) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "STOCK & PRICE COMPARISON REPORT")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "\nFeed Type: %s (%s)\n", strings.ToUpper(schema.Name), schema.Title)

	fmt.Fprintln(w, "\nItem Counts:")
	fmt.Fprintf(w, "  Original: %d\n", r.OriginalCount)
	fmt.Fprintf(w, "  Cloned:   %d\n", r.ClonedCount)

	fmt.Fprintln(w, "\nKey Comparison:")
	fmt.Fprintf(w, "  Missing keys (in original but not cloned): %d\n", len(r.MissingKeys))
	if len(r.MissingKeys) > 0 {
		fmt.Fprintf(w, "    First %d: %v\n", reportSampleSize, head(r.MissingKeys))
	}
	fmt.Fprintf(w, "  Extra keys (in cloned but not original): %d\n", len(r.ExtraKeys))
	if len(r.ExtraKeys) > 0 {
		fmt.Fprintf(w, "    First %d: %v\n", reportSampleSize, head(r.ExtraKeys))
	}

	fmt.Fprintln(w, "\nDifferences:")
	fmt.Fprintf(w, "  Stock differences: %d\n", len(r.StockDiffs))
	fmt.Fprintf(w, "  Price differences: %d\n", len(r.PriceDiffs))
	fmt.Fprintf(w, "  Total differences: %d\n", r.TotalDiffs)

	if !r.HasDifferences() {
		fmt.Fprintln(w, "\nNo differences found - stock and price fields preserved correctly!")
		return
	}

	fmt.Fprintf(w, "\nFirst %d Differences:\n", reportSampleSize)
	printed := 0
	for _, group := range []struct {
		field string
		diffs []FieldDiff
	}{{"STOCK", r.StockDiffs}, {"PRICE", r.PriceDiffs}} {
		for _, d := range group.diffs {
			if printed == reportSampleSize {
				return
			}
			fmt.Fprintf(w, "  [%s] Key: %s\n", group.field, d.Key)
			fmt.Fprintf(w, "    Original: %s\n", display(d.Original))
			fmt.Fprintf(w, "    Cloned:   %s\n", display(d.Cloned))
			printed++
		}
	}
}

func head(keys []string) []string {
	if len(keys) > reportSampleSize {
		return keys[:reportSampleSize]
	}
	return keys
}

func display(v *string) string {
	if v == nil {
		return "<absent>"
	}
	return *v
}
