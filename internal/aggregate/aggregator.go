// Package aggregate merges fare quotes scattered across result and checkpoint
// files into one canonical deduplicated dataset. Aggregation is idempotent:
// running it twice over unchanged inputs yields the same records.
package aggregate

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"farematrix/internal/checkpoint"
	"farematrix/internal/models"
)

// CanonicalFile is the aggregated output written under the results directory.
const CanonicalFile = "centralized_fare_data.json"

// sourceTiers lists file patterns in trust order. When the same quote appears
// in several tiers, the earliest tier wins because its record is seen first
// and later duplicates are dropped.
var sourceTiers = []struct {
	Name    string
	Pattern string
}{
	{"batch_final", "batch_*_final_*.json"},
	{"fare_matrix", "fare_matrix_results_*.json"},
	{"manual_backup", "manual_backup_*.json"},
	{"batch_progress", "batch_*_progress_*.json"},
	{"intermediate", "intermediate_results_*.json"},
	{"worker_checkpoint", "worker_*_checkpoint_*.json"},
}

// Aggregator scans a results directory (and optionally the checkpoint
// directory) and maintains the canonical file.
type Aggregator struct {
	ResultsDir    string
	CheckpointDir string

	now func() time.Time
}

// New returns an Aggregator over the given directories. checkpointDir may be
// empty to skip worker checkpoint files.
func New(resultsDir, checkpointDir string) *Aggregator {
	return &Aggregator{ResultsDir: resultsDir, CheckpointDir: checkpointDir, now: time.Now}
}

// CanonicalData is the structure of the canonical file.
type CanonicalData struct {
	AggregatedAt string                   `json:"aggregation_timestamp"`
	TotalQuotes  int                      `json:"total_quotes"`
	DataSources  map[string]SourceSummary `json:"data_sources"`
	Statistics   Statistics               `json:"statistics"`
	Quotes       []models.FareQuote       `json:"fare_quotes"`
}

// SourceSummary records how many files a tier contributed.
type SourceSummary struct {
	Count  int    `json:"count"`
	Latest string `json:"latest,omitempty"`
}

// ScanSources returns the matching files per tier, each list sorted by name so
// aggregation order is stable.
func (a *Aggregator) ScanSources() map[string][]string {
	found := make(map[string][]string)
	for _, tier := range sourceTiers {
		dir := a.ResultsDir
		if tier.Name == "worker_checkpoint" {
			if a.CheckpointDir == "" {
				continue
			}
			dir = a.CheckpointDir
		}
		paths, err := filepath.Glob(filepath.Join(dir, tier.Pattern))
		if err != nil || len(paths) == 0 {
			continue
		}
		found[tier.Name] = paths
	}
	return found
}

// Merge collects, standardizes, and dedupes quotes from all sources. Unless
// forceRefresh is set, the existing canonical file seeds the merge so earlier
// aggregations are never lost.
func (a *Aggregator) Merge(forceRefresh bool) []models.FareQuote {
	var collected []models.FareQuote

	canonicalPath := filepath.Join(a.ResultsDir, CanonicalFile)
	if !forceRefresh {
		if existing := loadQuotes(canonicalPath); len(existing) > 0 {
			log.Printf("loaded existing canonical data quotes=%d", len(existing))
			collected = append(collected, existing...)
		}
	}

	sources := a.ScanSources()
	for _, tier := range sourceTiers {
		for _, path := range sources[tier.Name] {
			quotes := loadQuotes(path)
			log.Printf("aggregating tier=%s file=%s quotes=%d", tier.Name, filepath.Base(path), len(quotes))
			collected = append(collected, quotes...)
		}
	}

	merged := make([]models.FareQuote, 0, len(collected))
	seen := make(map[string]struct{}, len(collected))
	dropped := 0
	for _, quote := range collected {
		std, ok := Standardize(quote)
		if !ok {
			dropped++
			continue
		}
		key := std.DedupeKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, std)
	}
	log.Printf("aggregation merged total=%d unique=%d dropped=%d", len(collected), len(merged), dropped)
	return merged
}

// Run merges all sources and writes the canonical file, backing up the
// previous one first. Returns the canonical file path.
func (a *Aggregator) Run(forceRefresh bool) (string, error) {
	quotes := a.Merge(forceRefresh)

	canonicalPath := filepath.Join(a.ResultsDir, CanonicalFile)
	if _, err := os.Stat(canonicalPath); err == nil {
		backup := filepath.Join(a.ResultsDir,
			fmt.Sprintf("centralized_fare_data_backup_%s.json", a.now().UTC().Format("20060102_150405")))
		if err := os.Rename(canonicalPath, backup); err != nil {
			log.Printf("could not back up canonical file err=%v", err)
		}
	}

	summary := make(map[string]SourceSummary)
	for name, paths := range a.ScanSources() {
		summary[name] = SourceSummary{Count: len(paths), Latest: filepath.Base(paths[len(paths)-1])}
	}

	data := CanonicalData{
		AggregatedAt: a.now().UTC().Format(time.RFC3339),
		TotalQuotes:  len(quotes),
		DataSources:  summary,
		Statistics:   CalculateStatistics(quotes),
		Quotes:       quotes,
	}
	if err := checkpoint.WriteJSONAtomic(canonicalPath, data); err != nil {
		return "", fmt.Errorf("save canonical file: %w", err)
	}
	return canonicalPath, nil
}

// LoadCanonical reads an existing canonical file.
func LoadCanonical(resultsDir string) (CanonicalData, error) {
	raw, err := os.ReadFile(filepath.Join(resultsDir, CanonicalFile))
	if err != nil {
		return CanonicalData{}, err
	}
	var data CanonicalData
	if err := json.Unmarshal(raw, &data); err != nil {
		return CanonicalData{}, err
	}
	return data, nil
}

// loadQuotes reads one source file, tolerating the container shapes the
// various writers use: a bare array, {"results": [...]}, {"fare_quotes":
// [...]}, or any object field holding an array of quote-shaped objects.
// Unreadable files contribute nothing.
func loadQuotes(path string) []models.FareQuote {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("skipping unreadable source file=%s err=%v", filepath.Base(path), err)
		return nil
	}

	items := quoteList(payload)
	quotes := make([]models.FareQuote, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		quote, err := decodeQuote(obj)
		if err != nil {
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes
}

var containerKeys = []string{"results", "fare_quotes", "flight_quotes", "quotes"}

func quoteList(payload any) []any {
	if items, ok := payload.([]any); ok {
		return items
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range containerKeys {
		if items, ok := obj[key].([]any); ok {
			return items
		}
	}
	// Fall back to any array field whose elements look like quotes.
	for _, value := range obj {
		items, ok := value.([]any)
		if !ok || len(items) == 0 {
			continue
		}
		if first, ok := items[0].(map[string]any); ok {
			if _, hasDep := first["departure_city"]; hasDep {
				if _, hasDest := first["destination_city"]; hasDest {
					return items
				}
			}
		}
	}
	return nil
}

// decodeQuote converts a loose JSON object into a FareQuote via a marshal
// round trip, tolerating unknown fields.
func decodeQuote(obj map[string]any) (models.FareQuote, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return models.FareQuote{}, err
	}
	var quote models.FareQuote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return models.FareQuote{}, err
	}
	return quote, nil
}

// Standardize fills defaults and rejects quotes missing the identity fields
// (departure city, destination city, source) the dedupe key depends on.
func Standardize(quote models.FareQuote) (models.FareQuote, bool) {
	if quote.DepartureCity == "" || quote.DestinationCity == "" || quote.Source == "" {
		return models.FareQuote{}, false
	}
	if quote.Currency == "" {
		quote.Currency = "USD"
	}
	if quote.OriginRegion == "" {
		quote.OriginRegion = "UNKNOWN"
	}
	if quote.DestinationRegion == "" {
		quote.DestinationRegion = "UNKNOWN"
	}
	if quote.NumAdults == 0 {
		quote.NumAdults = 1
	}
	if quote.PassengerType == "" {
		quote.PassengerType = fmt.Sprintf("%dA_%dC_%dI", quote.NumAdults, quote.NumChildren, quote.NumInfants)
	}
	if quote.Status == "" {
		quote.Status = models.StatusOK
	}
	return quote, true
}
