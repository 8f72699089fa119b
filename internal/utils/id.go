package utils

import "github.com/google/uuid"

// NewID returns a process-unique identifier for internal bookkeeping
// (connection ids, debug correlation ids). It is never shown to the
// upstream service or parsed back out of any protocol frame.
func NewID() string {
	return uuid.NewString()
}
