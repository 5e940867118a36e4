package movie

// ValidationError marks a request that can never produce a movie: no
// layers, too many layers, or no imagery in the requested range. It is
// fatal and non-retryable; the movie directory is marked INVALID.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid movie request: " + e.Reason
}
