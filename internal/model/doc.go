// Package model defines domain data structures shared across the service:
// queue items, selection state, and status enums. Item fields are owned by
// the queue manager; callers always receive copies.
package model
