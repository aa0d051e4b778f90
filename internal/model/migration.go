package model

import "github.com/google/uuid"

// MigrationOutcome describes the result of one per-user migration step.
type MigrationOutcome string

const (
	// MigrationOutcomeMigrated means an encrypted twin was written and
	// verified decryptable.
	MigrationOutcomeMigrated MigrationOutcome = "migrated"
	// MigrationOutcomePurged means the legacy plaintext was cleared.
	MigrationOutcomePurged MigrationOutcome = "purged"
	// MigrationOutcomeSkipped means there was nothing to do for the user.
	MigrationOutcomeSkipped MigrationOutcome = "skipped"
	// MigrationOutcomeFailed means the step failed; both representations
	// are kept until a retry succeeds.
	MigrationOutcomeFailed MigrationOutcome = "failed"
)

// MigrationResult is one item of a batch report.
type MigrationResult struct {
	UserID  uuid.UUID
	Kind    SecretKind
	Outcome MigrationOutcome
	Err     error
}

// BatchReport aggregates per-user outcomes of a migration batch. Per-user
// failures do not abort the batch.
type BatchReport struct {
	Results []MigrationResult
}

// Failed returns the failed results.
func (r BatchReport) Failed() []MigrationResult {
	var out []MigrationResult
	for _, res := range r.Results {
		if res.Outcome == MigrationOutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// MigrationStatus is the operator-facing migration progress per kind.
type MigrationStatus struct {
	TOTP  MigrationCounts
	Phone MigrationCounts
}
