package models

// RunStats accumulates execution counters for one worker batch or one whole
// coordinator run. Not safe for concurrent use; each goroutine owns its own
// copy and merges.
type RunStats struct {
	TotalTasks      int            `json:"total_tasks"`
	Successful      int            `json:"successful"`
	Failed          int            `json:"failed"`
	Skipped         int            `json:"skipped"`
	TotalQuotes     int            `json:"total_quotes"`
	ProviderSuccess map[string]int `json:"provider_success,omitempty"`
	ProviderFailure map[string]int `json:"provider_failure,omitempty"`
}

// RecordSuccess counts one successful task with n quotes for provider.
func (s *RunStats) RecordSuccess(provider string, n int) {
	s.TotalTasks++
	s.Successful++
	s.TotalQuotes += n
	if s.ProviderSuccess == nil {
		s.ProviderSuccess = make(map[string]int)
	}
	s.ProviderSuccess[provider]++
}

// RecordFailure counts one task that exhausted retries or failed permanently.
func (s *RunStats) RecordFailure(provider string) {
	s.TotalTasks++
	s.Failed++
	if s.ProviderFailure == nil {
		s.ProviderFailure = make(map[string]int)
	}
	s.ProviderFailure[provider]++
}

// RecordSkip counts one task skipped without execution (open circuit,
// cancellation, or a claim held by another process).
func (s *RunStats) RecordSkip() {
	s.TotalTasks++
	s.Skipped++
}

// Merge folds other into s.
func (s *RunStats) Merge(other RunStats) {
	s.TotalTasks += other.TotalTasks
	s.Successful += other.Successful
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.TotalQuotes += other.TotalQuotes
	for k, v := range other.ProviderSuccess {
		if s.ProviderSuccess == nil {
			s.ProviderSuccess = make(map[string]int)
		}
		s.ProviderSuccess[k] += v
	}
	for k, v := range other.ProviderFailure {
		if s.ProviderFailure == nil {
			s.ProviderFailure = make(map[string]int)
		}
		s.ProviderFailure[k] += v
	}
}
