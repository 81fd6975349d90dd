// Package chat implements the channel and participant routing core.
//
// All participant-facing sends and state mutation are expected to run on a
// single delivery goroutine, so the entities in this package do not lock.
// Only the persistence path leaves that goroutine, through the Scheduler's
// background side.
package chat
