package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"farematrix/internal/models"
)

func makeTask(origin, dest, date string) models.Task {
	return models.Task{
		OriginCity:      origin,
		DestinationCity: dest,
		DepartureDate:   date,
		PassengerConfig: models.PassengerConfig{Name: "Single", Adults: 1},
	}
}

func makeResult(sigs []string, quotes []models.FareQuote) models.BatchResult {
	return models.BatchResult{
		Status:              models.BatchCompleted,
		CompletedSignatures: sigs,
		Results:             quotes,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "session-1", 0, 0)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	taskA := makeTask("SEA", "LON", "2026-06-01")
	taskB := makeTask("LON", "SEA", "2026-06-02")
	quote := models.FareQuote{
		DepartureCity: "SEA", DestinationCity: "LON",
		FlightDate: "2026-06-01", Price: 500, Source: "kiwi", Status: models.StatusOK,
	}
	if err := store.RecordBatch(makeResult(
		[]string{taskA.Signature(), taskB.Signature()},
		[]models.FareQuote{quote},
	)); err != nil {
		t.Fatalf("RecordBatch returned error: %v", err)
	}
	if err := store.Save(true); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	reloaded, err := NewStore(dir, "session-2", 0, 0)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	meta, ok := reloaded.Load()
	if !ok {
		t.Fatal("Load found no checkpoint")
	}
	if meta.CompletedTasks != 2 {
		t.Fatalf("expected 2 completed tasks, got %d", meta.CompletedTasks)
	}
	if !reloaded.IsCompleted(taskA) || !reloaded.IsCompleted(taskB) {
		t.Fatal("completed tasks lost in round trip")
	}
	results := reloaded.Results()
	if len(results) != 1 || results[0].Price != 500 {
		t.Fatalf("results lost in round trip: %+v", results)
	}
}

func TestLoadMissingCheckpoint(t *testing.T) {
	store, err := NewStore(t.TempDir(), "s", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Load(); ok {
		t.Fatal("Load reported a checkpoint in an empty dir")
	}
}

func TestLoadDiscardsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "completed_tasks.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := NewStore(dir, "s", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Load(); ok {
		t.Fatal("Load accepted a corrupt snapshot")
	}
	if store.CompletedCount() != 0 {
		t.Fatal("corrupt snapshot leaked signatures into the store")
	}
}

func TestLoadDiscardsWrongSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	snapshot := models.CompletedSnapshot{
		SchemaVersion: models.CompletedSchemaVersion - 1,
		Signatures:    []string{"SEA|LON|2026-06-01|Single|1|0|0"},
	}
	data, _ := json.Marshal(snapshot)
	if err := os.WriteFile(filepath.Join(dir, "completed_tasks.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := NewStore(dir, "s", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Load(); ok {
		t.Fatal("Load accepted an incompatible schema version")
	}
}

func TestLoadDiscardsOldSignatureFormat(t *testing.T) {
	dir := t.TempDir()
	// Signature from before passenger counts were part of task identity.
	snapshot := models.CompletedSnapshot{
		SchemaVersion: models.CompletedSchemaVersion,
		Signatures:    []string{"SEA|LON|2026-06-01"},
	}
	data, _ := json.Marshal(snapshot)
	if err := os.WriteFile(filepath.Join(dir, "completed_tasks.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := NewStore(dir, "s", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Load(); ok {
		t.Fatal("Load accepted signatures in an older format")
	}
	if store.CompletedCount() != 0 {
		t.Fatal("old-format signatures leaked into the store")
	}
}

func TestFilterPending(t *testing.T) {
	store, err := NewStore(t.TempDir(), "s", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	taskA := makeTask("SEA", "LON", "2026-06-01")
	taskB := makeTask("LON", "SEA", "2026-06-02")
	taskC := makeTask("SEA", "SIN", "2026-06-03")

	if err := store.RecordBatch(makeResult([]string{taskB.Signature()}, nil)); err != nil {
		t.Fatal(err)
	}

	pending := store.FilterPending([]models.Task{taskA, taskB, taskC})
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending tasks, got %d", len(pending))
	}
	if pending[0].Signature() != taskA.Signature() || pending[1].Signature() != taskC.Signature() {
		t.Fatalf("pending order wrong: %+v", pending)
	}
}

func TestSaveEveryPolicy(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "s", 2, 0)
	if err != nil {
		t.Fatal(err)
	}

	taskA := makeTask("SEA", "LON", "2026-06-01")
	if err := store.RecordBatch(makeResult([]string{taskA.Signature()}, nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "completed_tasks.json")); !os.IsNotExist(err) {
		t.Fatal("saved before threshold")
	}

	taskB := makeTask("LON", "SEA", "2026-06-02")
	if err := store.RecordBatch(makeResult([]string{taskB.Signature()}, nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "completed_tasks.json")); err != nil {
		t.Fatalf("expected save at threshold: %v", err)
	}
}

func TestSaveIntervalPolicy(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "s", 0, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	base := time.Unix(1_700_000_000, 0)
	current := base
	store.now = func() time.Time { return current }
	store.lastSave = base

	taskA := makeTask("SEA", "LON", "2026-06-01")
	if err := store.RecordBatch(makeResult([]string{taskA.Signature()}, nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "completed_tasks.json")); !os.IsNotExist(err) {
		t.Fatal("saved before interval elapsed")
	}

	current = base.Add(11 * time.Minute)
	taskB := makeTask("LON", "SEA", "2026-06-02")
	if err := store.RecordBatch(makeResult([]string{taskB.Signature()}, nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "completed_tasks.json")); err != nil {
		t.Fatalf("expected save after interval: %v", err)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "s", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	taskA := makeTask("SEA", "LON", "2026-06-01")
	if err := store.RecordBatch(makeResult([]string{taskA.Signature()}, nil)); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(true); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteWorkerCheckpoint(dir, models.WorkerCheckpoint{WorkerID: 1, Timestamp: time.Now()}, 0); err != nil {
		t.Fatal(err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if store.CompletedCount() != 0 {
		t.Fatal("signatures survived Clear")
	}
	leftover, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	if len(leftover) != 0 {
		t.Fatalf("files survived Clear: %v", leftover)
	}
}

func TestSpoolBatchRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "s", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	spec := models.BatchSpec{
		BatchID:   3,
		SessionID: "s",
		Tasks:     []models.Task{makeTask("SEA", "LON", "2026-06-01")},
		Settings:  models.ExecSettings{MaxRetries: 3, BaseDelay: 3 * time.Second},
	}
	path, err := store.SpoolBatch(spec)
	if err != nil {
		t.Fatalf("SpoolBatch returned error: %v", err)
	}
	got, err := ReadBatchSpec(path)
	if err != nil {
		t.Fatalf("ReadBatchSpec returned error: %v", err)
	}
	if got.BatchID != 3 || len(got.Tasks) != 1 || got.Settings.BaseDelay != 3*time.Second {
		t.Fatalf("spec round trip mismatch: %+v", got)
	}
}

func TestScanWorkerCheckpoints(t *testing.T) {
	dir := t.TempDir()
	cp := models.WorkerCheckpoint{
		WorkerID:  1,
		SessionID: "s",
		Timestamp: time.Now(),
		Results: []models.FareQuote{
			{DepartureCity: "SEA", DestinationCity: "LON", Price: 100, Source: "kiwi"},
			{DepartureCity: "SEA", DestinationCity: "LON", Price: 120, Source: "booking.com"},
		},
		CompletedSignatures: []string{"SEA|LON|2026-06-01|Single|1|0|0"},
	}
	if _, err := WriteWorkerCheckpoint(dir, cp, 0); err != nil {
		t.Fatal(err)
	}
	cp.WorkerID = 2
	cp.Results = cp.Results[:1]
	if _, err := WriteWorkerCheckpoint(dir, cp, 1); err != nil {
		t.Fatal(err)
	}

	summary, err := ScanWorkerCheckpoints(dir)
	if err != nil {
		t.Fatalf("ScanWorkerCheckpoints returned error: %v", err)
	}
	if summary.WorkerFiles != 2 {
		t.Fatalf("expected 2 worker files, got %d", summary.WorkerFiles)
	}
	if summary.TotalResults != 3 {
		t.Fatalf("expected 3 results, got %d", summary.TotalResults)
	}
	if summary.CompletedTasks != 1 {
		t.Fatalf("expected 1 unique completed task, got %d", summary.CompletedTasks)
	}
	if summary.Providers["kiwi"] != 2 || summary.Providers["booking.com"] != 1 {
		t.Fatalf("provider counts wrong: %v", summary.Providers)
	}
}
