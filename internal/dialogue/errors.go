package dialogue

import "errors"

var (
	// ErrTransient marks a transport or remote failure. It is retried.
	ErrTransient = errors.New("dialogue: transient failure")

	// ErrEmptyResponse is returned when the model replies with no text. It is
	// retried like a transient failure.
	ErrEmptyResponse = errors.New("dialogue: empty response")

	// ErrExhausted is returned once every attempt failed. The last attempt's
	// error is wrapped alongside it.
	ErrExhausted = errors.New("dialogue: retries exhausted")

	// ErrMalformedAnalysis is returned when the analysis reply does not parse
	// as a scorecard. It points at a prompt mismatch and is not retried.
	ErrMalformedAnalysis = errors.New("dialogue: malformed analysis")
)

func retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrEmptyResponse)
}
