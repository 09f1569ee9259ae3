package fares

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"farematrix/internal/models"
)

// maxResponseBody caps how much of a provider response is read into memory.
const maxResponseBody = 8 << 20

// HTTPProvider searches a JSON-over-HTTP pricing provider.
type HTTPProvider struct {
	name    string
	baseURL string
	client  *http.Client
	robots  *RobotsRules
}

// NewHTTPProvider returns a provider client for the given base URL. A nil
// http.Client gets the default transport configuration.
func NewHTTPProvider(name, baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = BuildHTTPClient(HTTPClientConfig{})
	}
	return &HTTPProvider{name: name, baseURL: baseURL, client: client}
}

// SetRobots installs robots.txt rules fetched for the provider's host. A nil
// value (the default) disables the gate.
func (p *HTTPProvider) SetRobots(rules *RobotsRules) { p.robots = rules }

func (p *HTTPProvider) Provider() string { return p.name }

// Search issues one search request and normalizes the response. Failures are
// returned as *SearchError so the executor can distinguish transient from
// permanent ones.
func (p *HTTPProvider) Search(ctx context.Context, task models.Task) ([]models.FareQuote, error) {
	searchURL, err := p.searchURL(task)
	if err != nil {
		return nil, &SearchError{Kind: KindPermanent, Provider: p.name, Message: "bad search URL", Err: err}
	}
	if !p.robots.Allowed(PathFromURL(searchURL)) {
		return nil, &SearchError{Kind: KindPermanent, Provider: p.name, Message: "path disallowed by robots.txt"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, &SearchError{Kind: KindPermanent, Provider: p.name, Message: "build request", Err: err}
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &SearchError{Kind: Classify(err), Provider: p.name, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &SearchError{Kind: KindRateLimited, Provider: p.name, Message: "provider throttled the request"}
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return nil, &SearchError{Kind: KindPermanent, Provider: p.name, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &SearchError{Kind: KindStatus, Provider: p.name, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &SearchError{Kind: Classify(err), Provider: p.name, Message: "read body", Err: err}
	}

	quotes, err := ParseQuotes(body, p.name)
	if err != nil {
		return nil, err
	}
	for i := range quotes {
		fillFromTask(&quotes[i], task)
	}
	return quotes, nil
}

// searchURL builds the provider query from task identity fields.
func (p *HTTPProvider) searchURL(task models.Task) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("origin", task.OriginCity)
	q.Set("destination", task.DestinationCity)
	q.Set("date", task.DepartureDate)
	q.Set("adults", strconv.Itoa(task.PassengerConfig.Adults))
	q.Set("children", strconv.Itoa(task.PassengerConfig.Children))
	q.Set("infants", strconv.Itoa(task.PassengerConfig.Infants))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// fillFromTask copies task identity onto a quote without overwriting what the
// provider already supplied.
func fillFromTask(q *models.FareQuote, task models.Task) {
	q.DepartureCity = task.OriginCity
	q.DestinationCity = task.DestinationCity
	q.OriginRegion = task.OriginRegion
	q.DestinationRegion = task.DestinationRegion
	q.FlightDate = task.DepartureDate
	if q.DepartureTime == "" {
		q.DepartureTime = task.DepartureTime
	}
	q.NumAdults = task.PassengerConfig.Adults
	q.NumChildren = task.PassengerConfig.Children
	q.NumInfants = task.PassengerConfig.Infants
	q.PassengerType = task.PassengerConfig.Name
	q.TaskID = task.TaskID
}
