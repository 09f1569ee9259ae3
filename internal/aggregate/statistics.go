package aggregate

import "farematrix/internal/models"

// Statistics summarizes an aggregated dataset.
type Statistics struct {
	Providers        map[string]int `json:"providers"`
	UniqueRoutes     int            `json:"unique_routes"`
	PassengerTypes   map[string]int `json:"passenger_types"`
	RegionalCoverage int            `json:"regional_coverage"`
	Prices           PriceStats     `json:"price_statistics"`
}

// PriceStats covers only quotes with a positive price, so failure records do
// not drag the average down.
type PriceStats struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// CalculateStatistics computes summary counters over the quotes.
func CalculateStatistics(quotes []models.FareQuote) Statistics {
	stats := Statistics{
		Providers:      make(map[string]int),
		PassengerTypes: make(map[string]int),
	}
	routes := make(map[string]struct{})
	regionPairs := make(map[string]struct{})

	var sum float64
	for _, q := range quotes {
		stats.Providers[q.Source]++
		stats.PassengerTypes[q.PassengerType]++
		routes[q.Route()] = struct{}{}
		regionPairs[q.OriginRegion+"->"+q.DestinationRegion] = struct{}{}

		if q.Price > 0 {
			if stats.Prices.Count == 0 || q.Price < stats.Prices.Min {
				stats.Prices.Min = q.Price
			}
			if q.Price > stats.Prices.Max {
				stats.Prices.Max = q.Price
			}
			sum += q.Price
			stats.Prices.Count++
		}
	}
	if stats.Prices.Count > 0 {
		stats.Prices.Average = sum / float64(stats.Prices.Count)
	}
	stats.UniqueRoutes = len(routes)
	stats.RegionalCoverage = len(regionPairs)
	return stats
}
