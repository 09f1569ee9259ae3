package aggregate

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"farematrix/internal/models"
)

// csvHeader fixes the column order of CSV exports.
var csvHeader = []string{
	"departure_city", "destination_city", "origin_city_region", "destination_city_region",
	"flight_date", "departure_time", "arrival_time", "airline_code", "num_stops",
	"price", "currency", "num_adults", "num_children", "num_infants",
	"passenger_type", "source", "scraping_datetime", "status",
}

// WriteCSV exports quotes to a CSV file for spreadsheet review.
func WriteCSV(quotes []models.FareQuote, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, q := range quotes {
		row := []string{
			q.DepartureCity, q.DestinationCity, q.OriginRegion, q.DestinationRegion,
			q.FlightDate, q.DepartureTime, q.ArrivalTime, q.AirlineCode,
			strconv.Itoa(q.NumStops),
			strconv.FormatFloat(q.Price, 'f', 2, 64), q.Currency,
			strconv.Itoa(q.NumAdults), strconv.Itoa(q.NumChildren), strconv.Itoa(q.NumInfants),
			q.PassengerType, q.Source, q.ScrapedAt, q.Status,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
