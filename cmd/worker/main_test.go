package main

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"farematrix/internal/executor"
	"farematrix/internal/fares"
	"farematrix/internal/models"
	"farematrix/internal/ratelimit"
	"farematrix/mocks"
)

func testSettings() models.ExecSettings {
	return models.ExecSettings{
		MaxRetries:  1,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Multiplier:  2,
		TaskTimeout: time.Second,
		// One request per nanosecond keeps pacing waits out of the tests.
		DefaultLimit: 60_000_000_000,
	}
}

func newBatchLimiter(settings models.ExecSettings) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		Limits:         ratelimit.Limits{Default: settings.DefaultLimit},
		BaseDelay:      settings.BaseDelay,
		MaxDelay:       settings.MaxDelay,
		Multiplier:     settings.Multiplier,
		MinDelay:       time.Nanosecond,
		JitterFraction: -1,
	})
}

func batchTask(date string) models.Task {
	return models.Task{
		TaskID:          "t-" + date,
		OriginCity:      "SEA",
		DestinationCity: "LON",
		DepartureDate:   date,
		DepartureTime:   "10:00",
		PassengerConfig: models.PassengerConfig{Name: "Single", Adults: 1},
	}
}

func newBatchWorker(t *testing.T, client fares.Client, limiter *ratelimit.Limiter, tasks []models.Task) *worker {
	t.Helper()
	settings := testSettings()
	spec := models.BatchSpec{
		BatchID:   1,
		SessionID: "s1",
		Tasks:     tasks,
		Settings:  settings,
	}
	return &worker{
		spec:          spec,
		exec:          executor.New(client, limiter, settings, spec.SessionID),
		checkpointDir: t.TempDir(),
		resultsDir:    t.TempDir(),
		rng:           rand.New(rand.NewSource(1)),
	}
}

func TestRunLeavesCircuitSkippedTasksPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Provider().Return("kiwi").AnyTimes()
	// No Search expectation: an open circuit must keep the provider untouched.

	settings := testSettings()
	limiter := newBatchLimiter(settings)
	for i := 0; i < ratelimit.DefaultFailureThreshold; i++ {
		limiter.RecordFailure("kiwi")
	}

	w := newBatchWorker(t, client, limiter, []models.Task{batchTask("2026-06-01")})
	result := w.run(context.Background())

	if len(result.CompletedSignatures) != 0 {
		t.Fatalf("skipped task marked completed: %v", result.CompletedSignatures)
	}
	if len(result.Results) != 1 || result.Results[0].Status != models.StatusSkipped {
		t.Fatalf("expected a single skip record, got %+v", result.Results)
	}
	if result.Status != models.BatchCompleted {
		t.Fatalf("expected batch status %q, got %q", models.BatchCompleted, result.Status)
	}
}

func TestRunMarksExecutedTasksCompleted(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	ok := batchTask("2026-06-01")
	broken := batchTask("2026-07-01")

	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Provider().Return("kiwi").AnyTimes()
	gomock.InOrder(
		client.EXPECT().Search(gomock.Any(), gomock.Any()).Return([]models.FareQuote{{
			DepartureCity:   "SEA",
			DestinationCity: "LON",
			FlightDate:      ok.DepartureDate,
			Price:           500,
			Source:          "kiwi",
		}}, nil),
		client.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, &fares.SearchError{
			Kind:     fares.KindPermanent,
			Provider: "kiwi",
			Message:  "route not served",
		}),
	)

	settings := testSettings()
	w := newBatchWorker(t, client, newBatchLimiter(settings), []models.Task{ok, broken})
	result := w.run(context.Background())

	if len(result.CompletedSignatures) != 2 {
		t.Fatalf("expected both executed tasks completed, got %v", result.CompletedSignatures)
	}
	want := map[string]bool{ok.Signature(): true, broken.Signature(): true}
	for _, sig := range result.CompletedSignatures {
		if !want[sig] {
			t.Fatalf("unexpected completed signature %q", sig)
		}
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Results))
	}
}
