package domain

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is what a run did (or would do) to one entity.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeCoalesced Outcome = "coalesced"
	OutcomeMissing   Outcome = "missing"
)

// StepResult records the outcome for one named entity.
type StepResult struct {
	Step    string  `db:"step"`
	Entity  string  `db:"entity"`
	Outcome Outcome `db:"outcome"`
}

// ProvisionReport summarises a provisioning run.
type ProvisionReport struct {
	Database    string
	Username    string
	Collections []string
	DryRun      bool
	Steps       []StepResult
	StartedAt   time.Time
	Duration    time.Duration
}

func (r *ProvisionReport) Record(step, entity string, outcome Outcome) {
	r.Steps = append(r.Steps, StepResult{Step: step, Entity: entity, Outcome: outcome})
}

// Count returns how many results of step had outcome. An empty step matches all.
func (r *ProvisionReport) Count(step string, outcome Outcome) int {
	n := 0
	for _, s := range r.Steps {
		if (step == "" || s.Step == step) && s.Outcome == outcome {
			n++
		}
	}
	return n
}

// Drifted reports whether any declared entity is missing from the store.
func (r *ProvisionReport) Drifted() bool {
	return r.Count("", OutcomeMissing) > 0
}

// TTLConfigured reports whether at least one TTL index is in place.
func (r *ProvisionReport) TTLConfigured() bool {
	for _, s := range r.Steps {
		if s.Step == StepIndex && strings.Contains(s.Entity, "expireAfterSeconds=") &&
			(s.Outcome == OutcomeCreated || s.Outcome == OutcomeUnchanged) {
			return true
		}
	}
	return false
}

// Lines renders the human-readable summary.
func (r *ProvisionReport) Lines() []string {
	lines := []string{
		fmt.Sprintf("database: %s", r.Database),
		fmt.Sprintf("user: %s", r.Username),
		fmt.Sprintf("collections: %s", strings.Join(r.Collections, ", ")),
	}

	if r.DryRun {
		lines = append(lines, fmt.Sprintf("check: %d missing, %d in place",
			r.Count("", OutcomeMissing), r.Count("", OutcomeUnchanged)))
		for _, s := range r.Steps {
			if s.Outcome == OutcomeMissing {
				lines = append(lines, fmt.Sprintf("missing %s: %s", s.Step, s.Entity))
			}
		}
		return lines
	}

	lines = append(lines, fmt.Sprintf("indexes: %d created, %d unchanged, %d coalesced",
		r.Count(StepIndex, OutcomeCreated),
		r.Count(StepIndex, OutcomeUnchanged),
		r.Count(StepIndex, OutcomeCoalesced),
	))
	if r.TTLConfigured() {
		lines = append(lines, "indexes and TTL configured")
	} else {
		lines = append(lines, "indexes configured")
	}
	return lines
}
