package domain

import "errors"

// ConfigError represents an invalid or missing configuration value.
// It is fatal to the call that produced it and never retried.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrAssumptionViolated is returned when Almgren-Chriss parameters put the
	// model outside its valid region (adjusted permanent impact <= 0).
	// The calculation does not proceed; callers adjust parameters or fall back.
	ErrAssumptionViolated = errors.New("model assumption violated")

	// ErrNotTrained is returned when a learned estimator is asked to predict
	// before train() or an artifact load has occurred.
	ErrNotTrained = errors.New("model not trained")

	// ErrFeatureMismatch is returned when supplied features do not cover the
	// ordered feature list a trained model was fitted with.
	ErrFeatureMismatch = errors.New("feature mismatch")

	// ErrUnknownFeeCombination is returned for a (fee type, structure) pair
	// the schedule does not define. Never silently defaulted.
	ErrUnknownFeeCombination = errors.New("unknown fee type/structure combination")

	// ErrInvalidSide is returned for a side value outside {BUY, SELL}.
	ErrInvalidSide = errors.New("invalid side")

	// ErrNonPositive is returned for a size or price that must be > 0.
	ErrNonPositive = errors.New("value must be positive")
)
