package fares

import (
	"encoding/json"
	"strconv"

	"farematrix/internal/models"
)

// extractRule maps one FareQuote field to an ordered list of key paths into a
// raw provider payload. The first path that resolves wins; later paths are
// never consulted. Adding a provider alias means appending a path, not
// touching extraction logic.
type extractRule struct {
	field string
	paths [][]string
}

// quoteRules is consulted in order for every itinerary object. The set of
// paths is the union of the payload shapes seen across supported providers.
var quoteRules = []extractRule{
	{"price", [][]string{{"price"}, {"pricing", "total"}, {"fare", "amount"}, {"total_price"}}},
	{"currency", [][]string{{"currency"}, {"pricing", "currency"}, {"fare", "currency"}}},
	{"airline_code", [][]string{{"airline_code"}, {"airline"}, {"carrier", "code"}, {"marketing_carrier"}}},
	{"departure_airport", [][]string{{"departure_airport"}, {"origin", "airport"}, {"from", "code"}}},
	{"destination_airport", [][]string{{"destination_airport"}, {"destination", "airport"}, {"to", "code"}}},
	{"departure_time", [][]string{{"departure_time"}, {"local_departure"}, {"segments", "departure"}}},
	{"arrival_time", [][]string{{"arrival_time"}, {"local_arrival"}, {"segments", "arrival"}}},
	{"total_flight_time", [][]string{{"total_flight_time"}, {"duration", "total"}, {"fly_duration"}}},
	{"num_stops", [][]string{{"num_stops"}, {"stops"}, {"technical_stops"}}},
	{"num_bags", [][]string{{"num_bags"}, {"bags_count"}, {"baggage", "included"}}},
	{"booking_url", [][]string{{"booking_url"}, {"deep_link"}, {"booking", "url"}}},
}

// itineraryContainers lists, in priority order, the payload keys under which
// providers nest their itinerary arrays. A bare top-level array is also
// accepted.
var itineraryContainers = []string{"results", "quotes", "itineraries", "flights", "data"}

// ParseQuotes decodes a provider response body into FareQuote records. Only
// price is mandatory per itinerary; objects without a resolvable price are
// dropped. A body in which no itinerary container can be found is a parse
// error.
func ParseQuotes(body []byte, provider string) ([]models.FareQuote, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &SearchError{Kind: KindParse, Provider: provider, Message: "malformed JSON body", Err: err}
	}

	items, ok := itineraryList(payload)
	if !ok {
		return nil, &SearchError{Kind: KindParse, Provider: provider, Message: "no itinerary container in payload"}
	}

	quotes := make([]models.FareQuote, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		quote, ok := extractQuote(obj, provider)
		if !ok {
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

// itineraryList unwraps the itinerary array from the decoded payload.
func itineraryList(payload any) ([]any, bool) {
	if items, ok := payload.([]any); ok {
		return items, true
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range itineraryContainers {
		if items, ok := obj[key].([]any); ok {
			return items, true
		}
		// Some providers nest one level deeper, e.g. {"data": {"itineraries": [...]}}.
		if inner, ok := obj[key].(map[string]any); ok {
			for _, innerKey := range itineraryContainers {
				if items, ok := inner[innerKey].([]any); ok {
					return items, true
				}
			}
		}
	}
	return nil, false
}

func extractQuote(obj map[string]any, provider string) (models.FareQuote, bool) {
	quote := models.FareQuote{Source: provider, Status: models.StatusOK}
	havePrice := false
	for _, rule := range quoteRules {
		value, ok := resolve(obj, rule.paths)
		if !ok {
			continue
		}
		switch rule.field {
		case "price":
			if price, ok := floatValue(value); ok {
				quote.Price = price
				havePrice = true
			}
		case "currency":
			quote.Currency = stringValue(value)
		case "airline_code":
			quote.AirlineCode = stringValue(value)
		case "departure_airport":
			quote.DepartureAirport = stringValue(value)
		case "destination_airport":
			quote.DestinationAirport = stringValue(value)
		case "departure_time":
			quote.DepartureTime = stringValue(value)
		case "arrival_time":
			quote.ArrivalTime = stringValue(value)
		case "total_flight_time":
			quote.TotalFlightTime = stringValue(value)
		case "num_stops":
			if stops, ok := floatValue(value); ok {
				quote.NumStops = int(stops)
			}
		case "num_bags":
			if bags, ok := floatValue(value); ok {
				quote.NumBags = int(bags)
			}
		case "booking_url":
			quote.BookingURL = stringValue(value)
		}
	}
	return quote, havePrice
}

// resolve tries each path in order and returns the first value found.
func resolve(obj map[string]any, paths [][]string) (any, bool) {
	for _, path := range paths {
		if value, ok := lookup(obj, path); ok {
			return value, true
		}
	}
	return nil, false
}

func lookup(obj map[string]any, path []string) (any, bool) {
	var current any = obj
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any:
		if s, ok := v["value"].(string); ok {
			return s
		}
	}
	return ""
}

func floatValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
