package domain

import "errors"

// Request errors, surfaced synchronously by the control API.
var (
	// ErrNotFound indicates the requested bot does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a bot is already active for the session.
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation error")
)

// Pipeline errors. The first three are fatal to a bot; the rest degrade it.
var (
	ErrSetupFailure      = errors.New("browser setup failed")
	ErrAdmissionTimeout  = errors.New("not admitted to meeting in time")
	ErrAdmissionRejected = errors.New("admission to meeting rejected")

	ErrTranscriptionConnection = errors.New("transcription connection error")
	ErrCompletionFailure       = errors.New("completion request failed")
	ErrPersistenceFailure      = errors.New("persistence request failed")
	ErrMalformedSummary        = errors.New("malformed summary output")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether any error in err's chain is ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsAdmissionFailure reports whether the bot was kept out of the meeting.
func IsAdmissionFailure(err error) bool {
	return errors.Is(err, ErrAdmissionTimeout) || errors.Is(err, ErrAdmissionRejected)
}
