package models

import (
	"strconv"
	"strings"
)

// Quote statuses. Every executed task produces at least one FareQuote; failed
// and skipped attempts are recorded as quotes too so no work is silently lost.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// FareQuote is one priced itinerary (or a failure record standing in for one).
// The JSON field names are the canonical on-disk and on-wire format shared by
// workers, checkpoints, the aggregator, and the Kafka topic.
type FareQuote struct {
	DepartureAirport   string  `json:"departure_airport,omitempty"`
	DestinationAirport string  `json:"destination_airport,omitempty"`
	DepartureCity      string  `json:"departure_city"`
	DestinationCity    string  `json:"destination_city"`
	OriginRegion       string  `json:"origin_city_region,omitempty"`
	DestinationRegion  string  `json:"destination_city_region,omitempty"`
	FlightDate         string  `json:"flight_date"`
	DepartureTime      string  `json:"departure_time,omitempty"`
	ArrivalTime        string  `json:"arrival_time,omitempty"`
	TotalFlightTime    string  `json:"total_flight_time,omitempty"`
	AirlineCode        string  `json:"airline_code,omitempty"`
	NumStops           int     `json:"num_stops,omitempty"`
	NumBags            int     `json:"num_bags,omitempty"`
	Price              float64 `json:"price"`
	Currency           string  `json:"currency,omitempty"`
	NumAdults          int     `json:"num_adults"`
	NumChildren        int     `json:"num_children"`
	NumInfants         int     `json:"num_infants"`
	PassengerType      string  `json:"passenger_type,omitempty"`
	BookingURL         string  `json:"booking_url,omitempty"`
	ScreenshotURL      string  `json:"screenshot_url,omitempty"`
	Source             string  `json:"source"`
	ScrapedAt          string  `json:"scraping_datetime,omitempty"`

	Status       string `json:"status,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Attempt      int    `json:"attempt_number,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	TaskID       string `json:"search_task_id,omitempty"`
}

// DedupeKey identifies the same logical quote across files and runs. Volatile
// fields (ScrapedAt, TaskID, SessionID, Attempt) never participate, so
// re-scraping an unchanged fare dedupes to a single record.
func (q FareQuote) DedupeKey() string {
	parts := []string{
		q.DepartureCity,
		q.DestinationCity,
		q.FlightDate,
		q.DepartureTime,
		q.AirlineCode,
		strconv.FormatFloat(q.Price, 'f', -1, 64),
		q.Source,
		strconv.Itoa(q.NumAdults),
		strconv.Itoa(q.NumChildren),
		strconv.Itoa(q.NumInfants),
	}
	return strings.Join(parts, "|")
}

// Failed reports whether the quote is a failure or skip record rather than a
// priced itinerary.
func (q FareQuote) Failed() bool {
	return q.Status == StatusFailed || q.Status == StatusSkipped
}

// Route returns the origin-destination pair, e.g. "SEA-LON".
func (q FareQuote) Route() string {
	return q.DepartureCity + "-" + q.DestinationCity
}
