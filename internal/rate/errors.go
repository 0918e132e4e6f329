package rate

import "errors"

var (
	// ErrInvalidWindow is returned when a window span is not positive.
	ErrInvalidWindow = errors.New("rate window must be > 0")
	// ErrInvalidCapacity is returned when a client or event cap is not positive.
	ErrInvalidCapacity = errors.New("rate capacity must be > 0")
	// ErrInvalidRule is returned for negative limits or windows.
	ErrInvalidRule = errors.New("rate rule must not be negative")
	// ErrEmptyRoute is returned when a rule is registered under a blank route key.
	ErrEmptyRoute = errors.New("rate rule route key is empty")
)
