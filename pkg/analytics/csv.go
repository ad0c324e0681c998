package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/strideworks/stride/pkg/store"
)

// csvColumn renders one exercise kind as its export column title.
func csvColumn(kind store.ExerciseKind) string {
	s := string(kind)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ExportCSV renders all daily records as deterministic CSV: a fixed header,
// one row per day in ascending date order, counts as plain integers, rows
// joined by a single newline.
func (a *Aggregator) ExportCSV(ctx context.Context) (string, error) {
	recs, err := a.store.ListDailyRecords(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read records for export: %w", err)
	}

	kinds := store.ExerciseKinds()

	header := make([]string, 0, 3+len(kinds))
	header = append(header, "Date", "Sessions", "Exercises")
	for _, kind := range kinds {
		header = append(header, csvColumn(kind))
	}

	lines := make([]string, 0, len(recs)+1)
	lines = append(lines, strings.Join(header, ","))

	for _, rec := range recs {
		row := make([]string, 0, len(header))
		row = append(row, rec.Date,
			strconv.Itoa(rec.SessionCount),
			strconv.Itoa(rec.ExerciseCount))
		for _, kind := range kinds {
			row = append(row, strconv.Itoa(rec.Breakdown[kind]))
		}
		lines = append(lines, strings.Join(row, ","))
	}

	return strings.Join(lines, "\n"), nil
}
