package domain

import "errors"

var ErrStoreEntityNotFound = errors.New("store resource not found")

// ErrInvariantViolation marks a cycle result that broke a hard invariant
// (risk score outside [0,100], negative congestion). The offending result is
// discarded and a conservative action substituted.
var ErrInvariantViolation = errors.New("decision invariant violation")

// ErrScoreOutOfRange marks a classifier response outside [0,1].
var ErrScoreOutOfRange = errors.New("classifier score out of range")
