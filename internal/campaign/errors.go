package campaign

import "errors"

// Error kinds from the error handling design. These are sentinel values,
// not types: per-task and per-batch failures are carried as TaskResult/
// log values rather than propagated as Go errors, so only the prepare-
// and resume-time errors that abort the whole call are sentinels here.
var (
	// ErrNotPrepared is returned by Resume when no prepared batches exist
	// (and, after falling back to DB reconstruction, still none do).
	ErrNotPrepared = errors.New("campaign: not prepared")

	// ErrValidationFailed covers missing subject/from_name/custom_header/
	// recipients at prepare time; the campaign is moved to FAILED.
	ErrValidationFailed = errors.New("campaign: validation failed")

	// ErrInvalidTransition is returned when a caller requests a state
	// transition the machine in the lifecycle controller does not permit.
	ErrInvalidTransition = errors.New("campaign: invalid state transition")

	// ErrNotFound is returned when the referenced campaign does not exist.
	ErrNotFound = errors.New("campaign: not found")
)
