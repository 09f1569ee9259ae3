package scheduler

import "farematrix/internal/models"

// Partition splits tasks into batches of at most maxPerBatch, preserving task
// order. Every task lands in exactly one batch.
func Partition(tasks []models.Task, maxPerBatch int) [][]models.Task {
	if maxPerBatch <= 0 {
		maxPerBatch = 1
	}
	var batches [][]models.Task
	for start := 0; start < len(tasks); start += maxPerBatch {
		end := start + maxPerBatch
		if end > len(tasks) {
			end = len(tasks)
		}
		batches = append(batches, tasks[start:end])
	}
	return batches
}

// BuildSpecs wraps partitioned tasks into batch specs with sequential ids.
func BuildSpecs(tasks []models.Task, maxPerBatch int, sessionID string, settings models.ExecSettings) []models.BatchSpec {
	batches := Partition(tasks, maxPerBatch)
	specs := make([]models.BatchSpec, len(batches))
	for i, batch := range batches {
		specs[i] = models.BatchSpec{
			BatchID:   i + 1,
			SessionID: sessionID,
			Tasks:     batch,
			Settings:  settings,
		}
	}
	return specs
}
