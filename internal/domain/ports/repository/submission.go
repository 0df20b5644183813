package repository

import "context"

// SubmissionRepository remembers the prompt ids this gateway issued so that
// progress/fetch calls for forged or expired ids can be rejected.
type SubmissionRepository interface {
	Record(ctx context.Context, promptID string) error
	// Exists reports false (and no error) for unknown or expired ids.
	Exists(ctx context.Context, promptID string) (bool, error)
}
