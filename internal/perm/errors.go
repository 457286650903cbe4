package perm

import "errors"

// ErrForbidden is returned by the Require* helpers when an operator lacks
// the capability a request needs.
var ErrForbidden = errors.New("perm: forbidden")
