package comm

import "github.com/pkg/errors"

// Sentinel errors for the caller-contract violations the synchronization core
// detects locally. They are returned wrapped with the offending key and
// details; match them with errors.Is.
var (
	// ErrShapeMismatch reports a submitted vector whose length disagrees
	// with the length established by the buffer's first-ever submission.
	ErrShapeMismatch = errors.New("vector length disagrees with the length established for the buffer")

	// ErrDuplicateSubmission reports a rank submitting twice before the
	// buffer reset for the next round.
	ErrDuplicateSubmission = errors.New("rank already submitted in the current round")

	// ErrGroupSizeMismatch reports a declared group size that disagrees with
	// the size recorded when the key was first used.
	ErrGroupSizeMismatch = errors.New("group size disagrees with the size recorded at first use")

	// ErrStalledRound reports a round in which not every participant arrived
	// before the configured timeout. Without a timeout a missing participant
	// hangs all the others forever instead.
	ErrStalledRound = errors.New("round stalled: not all participants arrived before the timeout")
)
