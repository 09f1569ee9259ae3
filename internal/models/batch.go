package models

import "time"

// Batch statuses reported by worker processes.
const (
	BatchCompleted = "completed"
	BatchAborted   = "aborted"
)

// ExecSettings carries executor, limiter, and checkpoint knobs from the
// coordinator into worker processes. Durations marshal as nanoseconds; both
// sides of the contract are this module, so the encoding stays internal.
type ExecSettings struct {
	MaxRetries         int            `json:"max_retries"`
	BaseDelay          time.Duration  `json:"base_delay"`
	MaxDelay           time.Duration  `json:"max_delay"`
	Multiplier         float64        `json:"multiplier"`
	TaskTimeout        time.Duration  `json:"task_timeout"`
	MinTaskDelay       time.Duration  `json:"min_task_delay"`
	MaxTaskDelay       time.Duration  `json:"max_task_delay"`
	CheckpointEvery    int            `json:"checkpoint_every"`
	CheckpointInterval time.Duration  `json:"checkpoint_interval"`
	ProviderLimits     map[string]int `json:"provider_limits,omitempty"`
	DefaultLimit       int            `json:"default_limit,omitempty"`
}

// BatchSpec is the message the coordinator spools to disk for one worker
// process. The worker reads it back with the -batch flag.
type BatchSpec struct {
	BatchID   int          `json:"batch_id"`
	SessionID string       `json:"session_id"`
	Tasks     []Task       `json:"tasks"`
	Settings  ExecSettings `json:"settings"`
}

// BatchResult is the worker's final reply, written to the path the
// coordinator passed via -out.
type BatchResult struct {
	BatchID             int         `json:"batch_id"`
	SessionID           string      `json:"session_id"`
	Status              string      `json:"status"`
	TasksTotal          int         `json:"tasks_total"`
	TasksProcessed      int         `json:"tasks_processed"`
	Results             []FareQuote `json:"results"`
	CompletedSignatures []string    `json:"completed_tasks"`
	Stats               RunStats    `json:"stats"`
	FinishedAt          time.Time   `json:"finished_at"`
}

// WorkerCheckpoint is the periodic progress file a worker writes so partial
// work survives a crash or kill mid-batch.
type WorkerCheckpoint struct {
	WorkerID            int         `json:"worker_id"`
	BatchID             int         `json:"batch_id"`
	SessionID           string      `json:"session_id"`
	Timestamp           time.Time   `json:"timestamp"`
	Final               bool        `json:"final"`
	Results             []FareQuote `json:"results"`
	CompletedSignatures []string    `json:"completed_tasks"`
}
