package window

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize is returned for window sizes below one.
	ErrInvalidSize = errors.New("window: size must be positive")
	// ErrLengthMismatch is returned when samples and coefficients differ in length.
	ErrLengthMismatch = errors.New("window: samples and coefficients differ in length")
)

func validateSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	return nil
}
