// Package queue implements the sequential download queue: one ordered
// collection of items, at most one transfer in flight, automatic
// continuation to the next pending item after each terminal transition.
// The manager owns every item's mutable state; callers read snapshots and
// request mutations through its operations.
package queue
