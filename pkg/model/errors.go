package model

import "fmt"

// ValidationError reports a delta that would violate a data model invariant.
// It is never retried automatically; the producer must correct the delta.
type ValidationError struct {
	Op     Op
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s delta: %s", e.Op, e.Reason)
}

// ConflictError reports a delta whose parentRevision did not match the
// current revision at apply time. Recoverable by resnapshot and retry.
type ConflictError struct {
	Expected int64 // the revision the delta was issued against
	Actual   int64 // the authority's revision at apply time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict: delta parented at %d, current revision is %d", e.Expected, e.Actual)
}
