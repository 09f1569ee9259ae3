package catalog

import (
	"math/rand"
	"time"
)

// DateBias controls how departure dates are spread over the months following
// the start date. BiasRatio of the dates land in months [BiasStart, BiasEnd]
// (1-based, inclusive) and the rest in the remaining months, so searches skew
// toward the booking horizon that matters most.
type DateBias struct {
	Months    int
	Total     int
	BiasStart int
	BiasEnd   int
	BiasRatio float64
}

// DefaultDateBias mirrors the production search-horizon settings.
func DefaultDateBias() DateBias {
	return DateBias{Months: 12, Total: 125, BiasStart: 3, BiasEnd: 12, BiasRatio: 0.6}
}

// BiasedMonthlyDates returns Total departure dates in YYYY-MM-DD format drawn
// from the Months months starting at start. Dates within each month are drawn
// uniformly from rng, so the same seed reproduces the same catalog.
func BiasedMonthlyDates(start time.Time, bias DateBias, rng *rand.Rand) []string {
	if bias.Months <= 0 || bias.Total <= 0 {
		return nil
	}

	monthStarts := make([]time.Time, bias.Months)
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := range monthStarts {
		monthStarts[i] = first.AddDate(0, i, 0)
	}

	var biased, rest []int
	for i := 0; i < bias.Months; i++ {
		if i >= bias.BiasStart-1 && i < bias.BiasEnd {
			biased = append(biased, i)
		} else {
			rest = append(rest, i)
		}
	}
	if len(biased) == 0 {
		biased, rest = rest, nil
	}

	nBiased := int(float64(bias.Total)*bias.BiasRatio + 0.5)
	if len(rest) == 0 {
		nBiased = bias.Total
	}
	counts := make([]int, bias.Months)
	spread(counts, biased, nBiased)
	spread(counts, rest, bias.Total-nBiased)

	dates := make([]string, 0, bias.Total)
	for idx, count := range counts {
		monthStart := monthStarts[idx]
		daysInMonth := monthStart.AddDate(0, 1, -1).Day()
		for i := 0; i < count; i++ {
			day := rng.Intn(daysInMonth)
			dates = append(dates, monthStart.AddDate(0, 0, day).Format("2006-01-02"))
		}
	}
	return dates
}

// spread distributes total across the month slots in indices as evenly as
// possible, earlier slots absorbing the remainder.
func spread(counts []int, indices []int, total int) {
	if len(indices) == 0 || total <= 0 {
		return
	}
	per := total / len(indices)
	extra := total % len(indices)
	for i, idx := range indices {
		counts[idx] = per
		if i < extra {
			counts[idx]++
		}
	}
}
