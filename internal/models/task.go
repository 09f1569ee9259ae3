package models

import (
	"strconv"
	"strings"
)

// PassengerConfig describes who travels on a searched itinerary.
type PassengerConfig struct {
	Name     string `json:"name"`
	Adults   int    `json:"adults"`
	Children int    `json:"children"`
	Infants  int    `json:"infants"`
}

// Task is one cell of the fare matrix: a single origin/destination/date/passenger
// search against a pricing provider.
type Task struct {
	// TaskID is a per-run random label used in logs. It is never part of the
	// signature, so regenerated catalogs still match previous runs.
	TaskID string `json:"task_id"`

	OriginCity          string `json:"origin_city"`
	DestinationCity     string `json:"destination_city"`
	OriginCityName      string `json:"origin_city_name"`
	DestinationCityName string `json:"destination_city_name"`
	OriginRegion        string `json:"origin_city_region"`
	DestinationRegion   string `json:"destination_city_region"`

	// DepartureDate uses YYYY-MM-DD.
	DepartureDate string `json:"departure_date"`
	DepartureTime string `json:"departure_time"`

	PassengerConfig PassengerConfig `json:"passenger_config"`
}

// Signature returns the stable identity of the task. Two Task values describing
// the same search produce the same signature regardless of process, run, or
// TaskID. Only identity fields participate.
func (t Task) Signature() string {
	parts := []string{
		t.OriginCity,
		t.DestinationCity,
		t.DepartureDate,
		t.PassengerConfig.Name,
		strconv.Itoa(t.PassengerConfig.Adults),
		strconv.Itoa(t.PassengerConfig.Children),
		strconv.Itoa(t.PassengerConfig.Infants),
	}
	return strings.Join(parts, "|")
}

// SignatureParts is the number of "|"-separated fields in a current signature.
// Checkpoints holding signatures with a different field count were written by
// an older catalog schema and cannot be trusted.
const SignatureParts = 7

// Route returns the origin-destination pair, e.g. "SEA-LON".
func (t Task) Route() string {
	return t.OriginCity + "-" + t.DestinationCity
}
