package graphsync

import "fmt"

// ConnectionError reports a transport failure that survived the bounded
// retry budget. Transient failures below the budget are retried with
// backoff and never surface.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
