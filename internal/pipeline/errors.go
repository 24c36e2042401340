package pipeline

import "errors"

// Error taxonomy for the submission pipeline. Each sentinel marks a
// distinct failure mode with its own recovery policy; callers match
// with errors.Is.
var (
	// ErrValidationFailed marks an artifact rejected by validation.
	// Not retryable without transcoding.
	ErrValidationFailed = errors.New("media validation failed")

	// ErrTranscodeFailed marks an external encoder failure that yields
	// no usable output. The artifact is aborted.
	ErrTranscodeFailed = errors.New("transcode failed")

	// ErrDirectSubmitFailed marks a failure anywhere on the low-level
	// submission path. Triggers the fallback submitter.
	ErrDirectSubmitFailed = errors.New("direct submit failed")

	// ErrSubmissionNotFound marks a post handle that could not be
	// recovered after a submit call. Fatal for the artifact.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrMediaTimeout marks a post whose media never became ready
	// within the poll ceiling. Terminal but non-fatal: the handle is
	// still returned to the caller as likely-still-processing.
	ErrMediaTimeout = errors.New("media never became ready")

	// ErrGhostLoopExceeded marks too many ghost-post restarts in a
	// single invocation.
	ErrGhostLoopExceeded = errors.New("ghost post restart limit exceeded")
)
