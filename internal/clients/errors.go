package clients

import "errors"

// ErrTransport wraps every failure to reach or understand an upstream service.
var ErrTransport = errors.New("transport failure")
