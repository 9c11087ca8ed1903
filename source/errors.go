package source

import "errors"

// ErrSourceUnavailable is returned by Open when the backing input cannot be read.
var ErrSourceUnavailable = errors.New("source unavailable")
