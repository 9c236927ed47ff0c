package notify

import "errors"

// ErrTransport is returned when the remote endpoint rejects a delivery.
var ErrTransport = errors.New("notification transport error")
