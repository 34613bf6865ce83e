package ratelimit

import "fmt"

// QueueDisposedError is returned by Acquire (and any waiter pending at the
// time of Dispose) once a SlotQueue has been disposed.
type QueueDisposedError struct {
	ProviderID string
}

func (e *QueueDisposedError) Error() string {
	return fmt.Sprintf("ratelimit: queue for provider %q is disposed", e.ProviderID)
}

// TimeoutError is returned when a waiter sat in the FIFO longer than the
// queue's configured QueueTimeout.
type TimeoutError struct {
	ProviderID string
	Elapsed    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ratelimit: acquire for provider %q timed out after %s", e.ProviderID, e.Elapsed)
}
