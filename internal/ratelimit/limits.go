package ratelimit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Limits holds per-provider request budgets in requests per minute. Providers
// not listed fall back to Default.
type Limits struct {
	Default   int            `yaml:"default"`
	Providers map[string]int `yaml:"providers"`
}

// DefaultLimits mirrors the production provider budgets.
func DefaultLimits() Limits {
	return Limits{
		Default: DefaultRequestsPerMinute,
		Providers: map[string]int{
			"booking.com": 15,
			"kiwi":        20,
		},
	}
}

// LoadLimits reads a YAML limits file. Missing or non-positive defaults fall
// back to DefaultRequestsPerMinute.
func LoadLimits(path string) (Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Limits{}, fmt.Errorf("read limits file: %w", err)
	}
	var limits Limits
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return Limits{}, fmt.Errorf("parse limits file: %w", err)
	}
	return limits, nil
}

// RequestsPerMinute returns the provider's budget, falling back to Default and
// then to the package default.
func (l Limits) RequestsPerMinute(provider string) int {
	if rpm, ok := l.Providers[provider]; ok && rpm > 0 {
		return rpm
	}
	if l.Default > 0 {
		return l.Default
	}
	return DefaultRequestsPerMinute
}
