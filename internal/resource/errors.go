package resource

import "errors"

// ErrDiscarded is returned when a response arrived after Reset or after a
// newer request of the same kind, and was not applied.
var ErrDiscarded = errors.New("resource: response discarded")
