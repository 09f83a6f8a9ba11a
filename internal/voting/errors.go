package voting

import "errors"

// Rejections returned by the session machine. All of these are recoverable;
// the caller translates them into user-facing messaging.
var (
	// ErrWrongPhase is returned when an operation is invoked outside the
	// phase it belongs to (e.g. Vote while not VOTING).
	ErrWrongPhase = errors.New("operation not valid in current phase")

	// ErrNoCandidates is returned when voting is started with an empty
	// candidate list.
	ErrNoCandidates = errors.New("no candidates configured")

	// ErrUnknownCandidate is returned for a vote on an id that is not in
	// the candidate list of the running session.
	ErrUnknownCandidate = errors.New("unknown candidate")

	// ErrNotStarter is returned when a force start is requested by someone
	// other than the recorded vote starter.
	ErrNotStarter = errors.New("only the vote starter may force start")

	// ErrNoWinner is returned when a game start is requested but the tally
	// holds no votes.
	ErrNoWinner = errors.New("no winner resolved")
)
