package registry

import (
	"errors"
	"fmt"
)

// ErrInvalidSourceID is returned for identifiers that don't normalize to a
// channel name.
var ErrInvalidSourceID = errors.New("invalid source id")

// InvalidIDError carries the rejected identifier.
type InvalidIDError struct {
	ID string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidSourceID, e.ID)
}

func (e *InvalidIDError) Unwrap() error {
	return ErrInvalidSourceID
}
