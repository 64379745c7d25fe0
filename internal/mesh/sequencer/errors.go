package sequencer

import "errors"

// Domain errors for the configuration sequencer.
var (
	// ErrSessionBusy is returned by Start while a session is active.
	ErrSessionBusy = errors.New("sequencer: session busy")

	// ErrStepFailed reports a step that failed with a non-retryable status.
	ErrStepFailed = errors.New("sequencer: step failed")

	// ErrStepExhausted reports a step that kept failing until the retry
	// budget ran out.
	ErrStepExhausted = errors.New("sequencer: retries exhausted")

	// ErrStepTimeout is the cause recorded when a step times out.
	ErrStepTimeout = errors.New("sequencer: step timed out")

	// ErrRequestFailed wraps a failure to issue a request to the stack.
	ErrRequestFailed = errors.New("sequencer: request not issued")

	// ErrInvalidTarget is returned by Start for a non-unicast address or a
	// non-group target group.
	ErrInvalidTarget = errors.New("sequencer: invalid target")
)
