package quota

import (
	"errors"
	"fmt"
)

// Attempt outcomes. Strategies wrap one of these so the fallback chain can classify failures.
var (
	ErrNotSupported  = errors.New("quota endpoint not supported")
	ErrAuthFailed    = errors.New("quota key rejected")
	ErrTransient     = errors.New("quota lookup transient failure")
	ErrInvalidConfig = errors.New("invalid quota config")
)

// Outcome names the result class of one strategy attempt.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeNotSupported Outcome = "not_supported"
	OutcomeAuthFailed   Outcome = "auth_failed"
	OutcomeTransient    Outcome = "transient"
)

// Classify maps an attempt error onto its outcome. Unknown errors count as transient.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNotSupported):
		return OutcomeNotSupported
	case errors.Is(err, ErrAuthFailed):
		return OutcomeAuthFailed
	default:
		return OutcomeTransient
	}
}

// statusError converts a non-200 upstream status into a classified error.
func statusError(step string, statusCode int) error {
	switch statusCode {
	case 404, 405:
		return fmt.Errorf("%w: %s status %d", ErrNotSupported, step, statusCode)
	case 401, 403:
		return fmt.Errorf("%w: %s status %d", ErrAuthFailed, step, statusCode)
	default:
		return fmt.Errorf("%w: %s status %d", ErrTransient, step, statusCode)
	}
}

func transientError(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransient, step, err)
}

var errUnexpectedPayload = errors.New("unexpected payload")
