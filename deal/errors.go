package deal

import "errors"

// ErrStoreRequired is returned when no store is provided.
var ErrStoreRequired = errors.New("store required")
