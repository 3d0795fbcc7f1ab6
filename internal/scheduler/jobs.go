package scheduler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/palletline-systems/palletline-stack/internal/event"
)

// Job is one cron entry. Jobs with an event type fan envelopes out per
// tenant and warehouse; jobs without one run in-process maintenance.
type Job struct {
	Name      string
	Schedule  string // five-field cron expression, evaluated in UTC
	EventType string

	// TenantID restricts the fan-out to one tenant. Empty means every
	// active tenant.
	TenantID string

	// Payload is merged into the fabricated envelope payloads. The
	// skeleton keys (warehouse_id, triggered_by, job_name) always win.
	Payload map[string]any
}

// DefaultJobs returns the built-in job table.
func DefaultJobs() []Job {
	return []Job{
		{Name: "lot-expiry-check", Schedule: "0 0 * * *", EventType: event.TypeScheduledExpiryCheck},
		{Name: "abc-xyz-analysis", Schedule: "0 2 1 * *", EventType: event.TypeScheduledAbcXyzAnalysis},
		{Name: "safety-stock-recalc", Schedule: "0 3 * * 0", EventType: event.TypeScheduledSafetyStock},
		{Name: "demand-forecast", Schedule: "0 4 * * 0", EventType: event.TypeScheduledDemandForecast},
		{Name: jobOutboxCleanup, Schedule: "0 5 * * *"},
	}
}

type jobsFile struct {
	Jobs []struct {
		Name     string         `yaml:"name"`
		Schedule string         `yaml:"schedule"`
		TenantID string         `yaml:"tenant_id"`
		Payload  map[string]any `yaml:"payload"`
	} `yaml:"jobs"`
}

// LoadJobs returns the job table with per-job overrides from the YAML file
// at path: schedule, tenant scope, and extra payload keys. Job names and
// their event types are fixed. An empty path returns the defaults.
func LoadJobs(path string) ([]Job, error) {
	jobs := DefaultJobs()
	if path == "" {
		return jobs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	var file jobsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse jobs file: %w", err)
	}

	byName := make(map[string]int, len(jobs))
	for i, job := range jobs {
		byName[job.Name] = i
	}
	for _, override := range file.Jobs {
		i, ok := byName[override.Name]
		if !ok {
			return nil, fmt.Errorf("unknown job %q in %s", override.Name, path)
		}
		if override.Schedule == "" {
			return nil, fmt.Errorf("job %q has an empty schedule in %s", override.Name, path)
		}
		jobs[i].Schedule = override.Schedule
		jobs[i].TenantID = override.TenantID
		jobs[i].Payload = override.Payload
	}
	return jobs, nil
}
