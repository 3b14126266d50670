package topic

import "errors"

// ErrInvalidPattern is returned by ValidatePattern for malformed topic filters.
var ErrInvalidPattern = errors.New("topic: invalid pattern")
