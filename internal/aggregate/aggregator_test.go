package aggregate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"farematrix/internal/models"
)

func quote(dep, dest, date, airline string, price float64, source string) models.FareQuote {
	return models.FareQuote{
		DepartureCity:   dep,
		DestinationCity: dest,
		FlightDate:      date,
		DepartureTime:   "10:00",
		AirlineCode:     airline,
		Price:           price,
		Currency:        "USD",
		NumAdults:       1,
		Source:          source,
		Status:          models.StatusOK,
	}
}

func writeSource(t *testing.T, dir, name string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestMergeDedupesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	q1 := quote("SEA", "LON", "2026-06-01", "BA", 500, "kiwi")
	q2 := quote("SEA", "LON", "2026-06-01", "BA", 520, "kiwi") // different price, kept
	dup := q1
	dup.ScrapedAt = "2026-05-02T10:00:00Z" // volatile field differs, still a dup

	writeSource(t, dir, "batch_1_final_100.json", map[string]any{"results": []models.FareQuote{q1, q2}})
	writeSource(t, dir, "batch_2_final_200.json", []models.FareQuote{dup})

	merged := New(dir, "").Merge(false)
	if len(merged) != 2 {
		t.Fatalf("expected 2 unique quotes, got %d", len(merged))
	}
}

func TestMergeDropsQuotesMissingIdentity(t *testing.T) {
	dir := t.TempDir()
	good := quote("SEA", "LON", "2026-06-01", "BA", 500, "kiwi")
	noDest := good
	noDest.DestinationCity = ""
	noSource := good
	noSource.Source = ""
	noSource.Price = 510

	writeSource(t, dir, "batch_1_final_100.json", []models.FareQuote{good, noDest, noSource})

	merged := New(dir, "").Merge(false)
	if len(merged) != 1 {
		t.Fatalf("expected 1 quote after dropping incomplete ones, got %d", len(merged))
	}
}

func TestMergeStandardizesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "batch_1_final_100.json", []map[string]any{{
		"departure_city":   "SEA",
		"destination_city": "LON",
		"flight_date":      "2026-06-01",
		"price":            500.0,
		"source":           "kiwi",
	}})

	merged := New(dir, "").Merge(false)
	if len(merged) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(merged))
	}
	got := merged[0]
	if got.Currency != "USD" || got.OriginRegion != "UNKNOWN" || got.NumAdults != 1 {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if got.PassengerType != "1A_0C_0I" {
		t.Fatalf("passenger type not derived: %q", got.PassengerType)
	}
}

func TestMergeTierPriority(t *testing.T) {
	dir := t.TempDir()
	final := quote("SEA", "LON", "2026-06-01", "BA", 500, "kiwi")
	final.BookingURL = "https://final"
	progress := final
	progress.BookingURL = "https://progress"

	// batch_progress is scanned after batch_final, so the final record wins.
	writeSource(t, dir, "batch_1_progress_50.json", []models.FareQuote{progress})
	writeSource(t, dir, "batch_1_final_100.json", []models.FareQuote{final})

	merged := New(dir, "").Merge(false)
	if len(merged) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(merged))
	}
	if merged[0].BookingURL != "https://final" {
		t.Fatalf("lower tier overrode final record: %q", merged[0].BookingURL)
	}
}

func TestRunIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "batch_1_final_100.json", []models.FareQuote{
		quote("SEA", "LON", "2026-06-01", "BA", 500, "kiwi"),
		quote("LON", "SEA", "2026-06-02", "DL", 600, "booking.com"),
	})

	agg := New(dir, "")
	if _, err := agg.Run(false); err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	first, err := LoadCanonical(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := agg.Run(false); err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	second, err := LoadCanonical(dir)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first.Quotes, second.Quotes) {
		t.Fatal("re-aggregation changed the record set")
	}
	if first.TotalQuotes != 2 || second.TotalQuotes != 2 {
		t.Fatalf("quote counts wrong: %d then %d", first.TotalQuotes, second.TotalQuotes)
	}

	// The previous canonical file was backed up, not lost.
	backups, _ := filepath.Glob(filepath.Join(dir, "centralized_fare_data_backup_*.json"))
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(backups))
	}
}

func TestRunForceRefreshIgnoresCanonical(t *testing.T) {
	dir := t.TempDir()
	stale := quote("AAA", "BBB", "2026-01-01", "XX", 1, "old")
	writeSource(t, dir, CanonicalFile, map[string]any{"fare_quotes": []models.FareQuote{stale}})
	writeSource(t, dir, "batch_1_final_100.json", []models.FareQuote{
		quote("SEA", "LON", "2026-06-01", "BA", 500, "kiwi"),
	})

	if _, err := New(dir, "").Run(true); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	data, err := LoadCanonical(dir)
	if err != nil {
		t.Fatal(err)
	}
	if data.TotalQuotes != 1 || data.Quotes[0].DepartureCity != "SEA" {
		t.Fatalf("force refresh kept stale data: %+v", data.Quotes)
	}
}

func TestMergeSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "batch_1_final_1.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeSource(t, dir, "batch_2_final_2.json", []models.FareQuote{
		quote("SEA", "LON", "2026-06-01", "BA", 500, "kiwi"),
	})

	merged := New(dir, "").Merge(false)
	if len(merged) != 1 {
		t.Fatalf("expected corrupt file skipped, got %d quotes", len(merged))
	}
}

func TestCalculateStatistics(t *testing.T) {
	quotes := []models.FareQuote{
		quote("SEA", "LON", "2026-06-01", "BA", 500, "kiwi"),
		quote("SEA", "LON", "2026-06-02", "BA", 700, "kiwi"),
		quote("LON", "SEA", "2026-06-03", "DL", 300, "booking.com"),
	}
	failed := quote("SIN", "HKG", "2026-06-04", "", 0, "kiwi")
	failed.Status = models.StatusFailed
	quotes = append(quotes, failed)

	stats := CalculateStatistics(quotes)
	if stats.Providers["kiwi"] != 3 || stats.Providers["booking.com"] != 1 {
		t.Fatalf("provider counts wrong: %v", stats.Providers)
	}
	if stats.UniqueRoutes != 3 {
		t.Fatalf("expected 3 unique routes, got %d", stats.UniqueRoutes)
	}
	if stats.Prices.Count != 3 || stats.Prices.Min != 300 || stats.Prices.Max != 700 {
		t.Fatalf("price stats wrong: %+v", stats.Prices)
	}
	if stats.Prices.Average != 500 {
		t.Fatalf("expected average 500, got %v", stats.Prices.Average)
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	err := WriteCSV([]models.FareQuote{
		quote("SEA", "LON", "2026-06-01", "BA", 512.4, "kiwi"),
	}, path)
	if err != nil {
		t.Fatalf("WriteCSV returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if len(content) == 0 {
		t.Fatal("empty csv")
	}
	for _, want := range []string{"departure_city", "SEA", "LON", "512.40", "kiwi"} {
		if !strings.Contains(content, want) {
			t.Fatalf("csv missing %q:\n%s", want, content)
		}
	}
}
