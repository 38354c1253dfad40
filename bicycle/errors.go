package bicycle

import "errors"

var (
	// ErrInvalidParam is returned when model construction is attempted
	// from a missing, unreadable or malformed parameter source.
	ErrInvalidParam = errors.New("bicycle: invalid parameter source")

	// ErrPitchNoConvergence is returned when the pitch constraint
	// iteration exhausts its budget or stalls on a vanishing derivative.
	// Callers must not reuse the unconverged guess.
	ErrPitchNoConvergence = errors.New("bicycle: pitch constraint iteration did not converge")
)
