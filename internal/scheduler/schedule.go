// Package scheduler is the beat role: it fires schedule entries on
// cron specs and enqueues the named task for each firing. Entries never
// run work in-process; the worker role executes them.
package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/taqastore/storefront/internal/tasks"
)

// Entry is one scheduled firing rule.
type Entry struct {
	Name    string                 `yaml:"name" json:"name"`
	Spec    string                 `yaml:"spec" json:"spec"`
	Task    string                 `yaml:"task" json:"task"`
	Queue   string                 `yaml:"queue,omitempty" json:"queue,omitempty"`
	Payload map[string]interface{} `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// PayloadJSON renders the entry payload as a task payload.
func (e Entry) PayloadJSON() (json.RawMessage, error) {
	if len(e.Payload) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("entry %s: marshal payload: %w", e.Name, err)
	}
	return raw, nil
}

// Schedule is the full set of entries one beat process fires.
type Schedule struct {
	Entries []Entry `yaml:"entries" json:"entries"`
}

// LoadSchedule reads and validates a schedule file.
func LoadSchedule(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}

	var schedule Schedule
	if err := yaml.Unmarshal(data, &schedule); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// LoadScheduleOrDefault loads the schedule file, falling back to the
// built-in default when the file is missing or invalid.
func LoadScheduleOrDefault(path string) *Schedule {
	schedule, err := LoadSchedule(path)
	if err != nil {
		return DefaultSchedule()
	}
	return schedule
}

// DefaultSchedule covers the maintenance tasks every deployment needs.
func DefaultSchedule() *Schedule {
	return &Schedule{
		Entries: []Entry{
			{
				Name: "heartbeat",
				Spec: "@every 1m",
				Task: tasks.Heartbeat,
			},
			{
				Name: "prune-results",
				Spec: "@hourly",
				Task: tasks.PruneResults,
			},
		},
	}
}

// Validate checks entry names, tasks and cron specs.
func (s *Schedule) Validate() error {
	if len(s.Entries) == 0 {
		return fmt.Errorf("schedule has no entries")
	}
	seen := make(map[string]bool, len(s.Entries))
	for i, entry := range s.Entries {
		if strings.TrimSpace(entry.Name) == "" {
			return fmt.Errorf("schedule entry %d: name is required", i)
		}
		if seen[entry.Name] {
			return fmt.Errorf("schedule entry %s: duplicate name", entry.Name)
		}
		seen[entry.Name] = true
		if strings.TrimSpace(entry.Task) == "" {
			return fmt.Errorf("schedule entry %s: task is required", entry.Name)
		}
		if _, err := cron.ParseStandard(entry.Spec); err != nil {
			return fmt.Errorf("schedule entry %s: invalid spec %q: %w", entry.Name, entry.Spec, err)
		}
		if _, err := entry.PayloadJSON(); err != nil {
			return err
		}
	}
	return nil
}
