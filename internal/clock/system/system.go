// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements counter.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC. Stores truncate it to their own
// precision, so callers must not rely on the monotonic reading.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

