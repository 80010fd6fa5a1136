package domain

import "time"

const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// ProvisionRun is a ledger entry for one provisioning or check run.
type ProvisionRun struct {
	ID         int64        `db:"id"`
	Database   string       `db:"database_name"`
	Username   string       `db:"username"`
	DryRun     bool         `db:"dry_run"`
	Status     string       `db:"status"`
	Error      *string      `db:"error"`
	StartedAt  time.Time    `db:"started_at"`
	DurationMS int64        `db:"duration_ms"`
	Steps      []StepResult `db:"-"`
}
