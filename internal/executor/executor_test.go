package executor

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"farematrix/internal/fares"
	"farematrix/internal/models"
	"farematrix/internal/ratelimit"
	"farematrix/mocks"
)

func testTask() models.Task {
	return models.Task{
		TaskID:          "task-1",
		OriginCity:      "SEA",
		DestinationCity: "LON",
		DepartureDate:   "2026-06-01",
		DepartureTime:   "10:00",
		PassengerConfig: models.PassengerConfig{Name: "Single", Adults: 1},
	}
}

// testLimiter returns a limiter whose pacing waits are nanoseconds so tests
// never block.
func testLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		BaseDelay:      time.Nanosecond,
		MaxDelay:       2 * time.Nanosecond,
		MinDelay:       time.Nanosecond,
		JitterFraction: -1,
		Limits:         ratelimit.Limits{Default: 60_000_000_000},
	})
}

// newTestExecutor captures retry sleeps instead of performing them.
func newTestExecutor(t *testing.T, client fares.Client, limiter *ratelimit.Limiter, settings models.ExecSettings) (*Executor, *[]time.Duration) {
	t.Helper()
	e := New(client, limiter, settings, "session-test")
	var slept []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return e, &slept
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Provider().Return("kiwi").AnyTimes()
	client.EXPECT().Search(gomock.Any(), gomock.Any()).Return([]models.FareQuote{
		{DepartureCity: "SEA", DestinationCity: "LON", Price: 450, Source: "kiwi"},
	}, nil)

	e, slept := newTestExecutor(t, client, testLimiter(), models.ExecSettings{})
	quotes := e.Execute(context.Background(), testTask())

	if len(quotes) != 1 || quotes[0].Price != 450 {
		t.Fatalf("unexpected quotes: %+v", quotes)
	}
	if quotes[0].Attempt != 1 || quotes[0].SessionID != "session-test" {
		t.Fatalf("quote not annotated: %+v", quotes[0])
	}
	if quotes[0].ScrapedAt == "" {
		t.Fatal("ScrapedAt not stamped")
	}
	if len(*slept) != 0 {
		t.Fatalf("unexpected retry sleeps: %v", *slept)
	}
	if e.Stats.Successful != 1 || e.Stats.TotalQuotes != 1 {
		t.Fatalf("stats wrong: %+v", e.Stats)
	}
}

func TestExecuteRetriesWithDoublingBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	transient := &fares.SearchError{Kind: fares.KindStatus, Provider: "kiwi", Message: "status 502"}

	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Provider().Return("kiwi").AnyTimes()
	gomock.InOrder(
		client.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, transient),
		client.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, transient),
		client.EXPECT().Search(gomock.Any(), gomock.Any()).Return([]models.FareQuote{{Price: 100, Source: "kiwi"}}, nil),
	)

	e, slept := newTestExecutor(t, client, testLimiter(), models.ExecSettings{
		BaseDelay: 3 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2,
	})
	quotes := e.Execute(context.Background(), testTask())

	if len(quotes) != 1 || quotes[0].Price != 100 {
		t.Fatalf("unexpected quotes: %+v", quotes)
	}
	if quotes[0].Attempt != 3 {
		t.Fatalf("expected success on attempt 3, got %d", quotes[0].Attempt)
	}
	// 3s then 6s, each widened by at most 30% jitter.
	expected := []time.Duration{3 * time.Second, 6 * time.Second}
	if len(*slept) != len(expected) {
		t.Fatalf("expected %d retry sleeps, got %v", len(expected), *slept)
	}
	for i, base := range expected {
		got := (*slept)[i]
		if got < base || got > base+base*3/10 {
			t.Fatalf("retry %d slept %v, want within [%v, %v]", i, got, base, base+base*3/10)
		}
	}
}

func TestExecuteBackoffCappedAtMaxDelay(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	transient := &fares.SearchError{Kind: fares.KindNetwork, Provider: "p", Message: "conn reset"}
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Provider().Return("p").AnyTimes()
	client.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, transient).Times(6)

	e, slept := newTestExecutor(t, client, testLimiter(), models.ExecSettings{
		MaxRetries: 5, BaseDelay: 3 * time.Second, MaxDelay: 10 * time.Second, Multiplier: 2,
	})
	quotes := e.Execute(context.Background(), testTask())

	if quotes[0].Status != models.StatusFailed {
		t.Fatalf("expected failure record, got %+v", quotes[0])
	}
	for i, d := range *slept {
		if d > 13*time.Second {
			t.Fatalf("sleep %d exceeded cap plus jitter: %v", i, d)
		}
	}
	// 3s, 6s, then capped at 10s.
	if (*slept)[2] < 10*time.Second {
		t.Fatalf("third retry not capped up to max delay: %v", (*slept)[2])
	}
}

func TestExecuteExhaustedRetriesYieldsFailureRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	transient := &fares.SearchError{Kind: fares.KindTimeout, Provider: "p", Message: "deadline"}
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Provider().Return("p").AnyTimes()
	client.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, transient).Times(4)

	e, _ := newTestExecutor(t, client, testLimiter(), models.ExecSettings{MaxRetries: 3})
	quotes := e.Execute(context.Background(), testTask())

	if len(quotes) != 1 {
		t.Fatalf("expected exactly one failure record, got %d", len(quotes))
	}
	rec := quotes[0]
	if rec.Status != models.StatusFailed || rec.ErrorKind != "timeout" {
		t.Fatalf("unexpected failure record: %+v", rec)
	}
	if rec.Attempt != 4 {
		t.Fatalf("expected 4 attempts recorded, got %d", rec.Attempt)
	}
	if rec.DepartureCity != "SEA" || rec.FlightDate != "2026-06-01" || rec.PassengerType != "Single" {
		t.Fatalf("task identity missing from failure record: %+v", rec)
	}
	if e.Stats.Failed != 1 {
		t.Fatalf("stats wrong: %+v", e.Stats)
	}
}

func TestExecutePermanentFailureNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	permanent := &fares.SearchError{Kind: fares.KindPermanent, Provider: "p", Message: "unknown city code"}
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Provider().Return("p").AnyTimes()
	client.EXPECT().Search(gomock.Any(), gomock.Any()).Return(nil, permanent).Times(1)

	e, slept := newTestExecutor(t, client, testLimiter(), models.ExecSettings{})
	quotes := e.Execute(context.Background(), testTask())

	if quotes[0].Status != models.StatusFailed || quotes[0].ErrorKind != "permanent" {
		t.Fatalf("unexpected record: %+v", quotes[0])
	}
	if len(*slept) != 0 {
		t.Fatalf("permanent failure should not back off: %v", *slept)
	}
}

func TestExecuteCircuitOpenSkips(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Provider().Return("p").AnyTimes()
	// Search must never be called with an open circuit.

	limiter := testLimiter()
	for i := 0; i < ratelimit.DefaultFailureThreshold; i++ {
		limiter.RecordFailure("p")
	}

	e, _ := newTestExecutor(t, client, limiter, models.ExecSettings{})
	quotes := e.Execute(context.Background(), testTask())

	if len(quotes) != 1 {
		t.Fatalf("expected one skip record, got %d", len(quotes))
	}
	if quotes[0].Status != models.StatusSkipped || quotes[0].ErrorKind != "circuit_open" {
		t.Fatalf("unexpected record: %+v", quotes[0])
	}
	if e.Stats.Skipped != 1 {
		t.Fatalf("stats wrong: %+v", e.Stats)
	}
}

func TestExecuteEmptyResultsRetriedWithoutFailureCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Provider().Return("p").AnyTimes()
	gomock.InOrder(
		client.EXPECT().Search(gomock.Any(), gomock.Any()).Return([]models.FareQuote{}, nil),
		client.EXPECT().Search(gomock.Any(), gomock.Any()).Return([]models.FareQuote{{Price: 77, Source: "p"}}, nil),
	)

	limiter := testLimiter()
	e, _ := newTestExecutor(t, client, limiter, models.ExecSettings{})
	quotes := e.Execute(context.Background(), testTask())

	if quotes[0].Price != 77 {
		t.Fatalf("unexpected quotes: %+v", quotes)
	}
	if limiter.Failures("p") != 0 {
		t.Fatalf("empty result counted as provider failure: %d", limiter.Failures("p"))
	}
}
