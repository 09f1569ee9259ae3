// Package catalog generates the full combinatorial matrix of fare search
// tasks: every ordered city pair crossed with every passenger configuration
// and a biased spread of departure dates.
package catalog

import (
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"farematrix/internal/models"
)

// DefaultPassengerConfigs returns the passenger mixes searched for each route
// and date.
func DefaultPassengerConfigs() []models.PassengerConfig {
	return []models.PassengerConfig{
		{Name: "Single", Adults: 1, Children: 0, Infants: 0},
	}
}

// Config controls catalog generation. Zero values fall back to defaults.
type Config struct {
	Cities     []City
	Passengers []models.PassengerConfig
	Bias       DateBias
	Start      time.Time

	// SamplePercent keeps a deterministic percentage of tasks (0 or 100 keeps
	// all). Shuffle randomizes task order so batches mix regions. Both use
	// Seed, so the same seed reproduces the same catalog.
	SamplePercent float64
	Shuffle       bool
	Seed          int64
}

var errEmptyCatalog = errors.New("catalog: no tasks generated")

// Generate builds the task list. Every task carries a fresh TaskID, but task
// signatures depend only on identity fields, so regenerating the catalog with
// the same seed yields the same signatures in the same order.
func (c Config) Generate() ([]models.Task, error) {
	cities := c.Cities
	if len(cities) == 0 {
		cities = DefaultCities()
	}
	passengers := c.Passengers
	if len(passengers) == 0 {
		passengers = DefaultPassengerConfigs()
	}
	bias := c.Bias
	if bias.Total == 0 {
		bias = DefaultDateBias()
	}
	start := c.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}

	rng := rand.New(rand.NewSource(c.Seed))

	var tasks []models.Task
	for _, origin := range cities {
		for _, dest := range cities {
			if origin.Code == dest.Code {
				continue
			}
			for _, pc := range passengers {
				for _, date := range BiasedMonthlyDates(start, bias, rng) {
					tasks = append(tasks, models.Task{
						TaskID:              uuid.NewString(),
						OriginCity:          origin.Code,
						DestinationCity:     dest.Code,
						OriginCityName:      origin.Name,
						DestinationCityName: dest.Name,
						OriginRegion:        origin.Region,
						DestinationRegion:   dest.Region,
						DepartureDate:       date,
						DepartureTime:       "10:00",
						PassengerConfig:     pc,
					})
				}
			}
		}
	}

	if c.SamplePercent > 0 && c.SamplePercent < 100 {
		keep := int(float64(len(tasks)) * c.SamplePercent / 100)
		if keep < 1 {
			keep = 1
		}
		rng.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
		tasks = tasks[:keep]
	} else if c.Shuffle {
		rng.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
	}

	if len(tasks) == 0 {
		return nil, errEmptyCatalog
	}
	return tasks, nil
}

// Distribution summarizes a task sample for the dry-run preview.
type Distribution struct {
	RegionPairs    map[string]int
	PassengerTypes map[string]int
	UniqueRoutes   int
}

// Summarize counts region pairs, passenger types, and unique routes over the
// given tasks.
func Summarize(tasks []models.Task) Distribution {
	d := Distribution{
		RegionPairs:    make(map[string]int),
		PassengerTypes: make(map[string]int),
	}
	routes := make(map[string]struct{})
	for _, t := range tasks {
		d.RegionPairs[t.OriginRegion+" -> "+t.DestinationRegion]++
		d.PassengerTypes[t.PassengerConfig.Name]++
		routes[t.Route()] = struct{}{}
	}
	d.UniqueRoutes = len(routes)
	return d
}

// SortedKeys returns map keys sorted by descending count, ties broken by name.
func SortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
