package asynccall

import "github.com/lattice-os/asynccall/internal/constants"

// Re-exported tuning constants for callers that want defaults without
// importing the internal package directly.
const (
	DefaultSubmissionCapacity = constants.DefaultSubmissionCapacity
	DefaultCompletionCapacity = constants.DefaultCompletionCapacity
	MaxRingCapacity           = constants.MaxRingCapacity
	MinRingCapacity           = constants.MinRingCapacity
	DefaultTeardownGrace      = constants.DefaultTeardownGrace
)
