package catalog

import (
	"math/rand"
	"testing"
	"time"

	"farematrix/internal/models"
)

func testConfig() Config {
	return Config{
		Cities: []City{
			{Code: "SEA", Name: "SEATTLE", Region: RegionNorthAmerica},
			{Code: "LON", Name: "LONDON", Region: RegionEMEA},
			{Code: "SIN", Name: "SINGAPORE", Region: RegionAsia},
		},
		Bias:  DateBias{Months: 2, Total: 4, BiasStart: 1, BiasEnd: 1, BiasRatio: 0.5},
		Start: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Seed:  42,
	}
}

func TestGenerateExcludesSameCityPairs(t *testing.T) {
	tasks, err := testConfig().Generate()
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	// 3 cities -> 6 ordered pairs, 1 passenger config, 4 dates each.
	if len(tasks) != 6*4 {
		t.Fatalf("expected %d tasks, got %d", 6*4, len(tasks))
	}
	for _, task := range tasks {
		if task.OriginCity == task.DestinationCity {
			t.Fatalf("same-city pair generated: %s", task.Route())
		}
		if task.TaskID == "" {
			t.Fatal("task without TaskID")
		}
	}
}

func TestGenerateSignaturesDeterministic(t *testing.T) {
	first, err := testConfig().Generate()
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	second, err := testConfig().Generate()
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("task counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Signature() != second[i].Signature() {
			t.Fatalf("signature mismatch at %d: %q vs %q", i, first[i].Signature(), second[i].Signature())
		}
		if first[i].TaskID == second[i].TaskID {
			t.Fatalf("TaskID reused across runs at %d", i)
		}
	}
}

func TestGenerateSample(t *testing.T) {
	cfg := testConfig()
	cfg.SamplePercent = 25
	tasks, err := cfg.Generate()
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(tasks) != 6 {
		t.Fatalf("expected 6 sampled tasks, got %d", len(tasks))
	}
}

func TestSignatureIgnoresTaskID(t *testing.T) {
	task := models.Task{
		TaskID:          "a",
		OriginCity:      "SEA",
		DestinationCity: "LON",
		DepartureDate:   "2026-06-01",
		PassengerConfig: models.PassengerConfig{Name: "Single", Adults: 1},
	}
	other := task
	other.TaskID = "b"
	if task.Signature() != other.Signature() {
		t.Fatal("signature changed with TaskID")
	}
	if task.Signature() != "SEA|LON|2026-06-01|Single|1|0|0" {
		t.Fatalf("unexpected signature: %q", task.Signature())
	}
}

func TestBiasedMonthlyDates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	bias := DateBias{Months: 12, Total: 125, BiasStart: 3, BiasEnd: 12, BiasRatio: 0.6}

	dates := BiasedMonthlyDates(start, bias, rng)
	if len(dates) != 125 {
		t.Fatalf("expected 125 dates, got %d", len(dates))
	}

	inBias := 0
	for _, d := range dates {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			t.Fatalf("bad date format %q: %v", d, err)
		}
		monthIdx := (parsed.Year()-2026)*12 + int(parsed.Month()) - 1
		if monthIdx < 0 || monthIdx >= 12 {
			t.Fatalf("date %q outside the 12-month window", d)
		}
		if monthIdx >= 2 {
			inBias++
		}
	}
	if inBias != 75 {
		t.Fatalf("expected 75 dates in biased months, got %d", inBias)
	}
}

func TestSummarize(t *testing.T) {
	tasks, err := testConfig().Generate()
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	dist := Summarize(tasks)
	if dist.UniqueRoutes != 6 {
		t.Fatalf("expected 6 unique routes, got %d", dist.UniqueRoutes)
	}
	if dist.PassengerTypes["Single"] != len(tasks) {
		t.Fatalf("expected all tasks Single, got %d", dist.PassengerTypes["Single"])
	}
	total := 0
	for _, n := range dist.RegionPairs {
		total += n
	}
	if total != len(tasks) {
		t.Fatalf("region pair counts sum %d, want %d", total, len(tasks))
	}
}
