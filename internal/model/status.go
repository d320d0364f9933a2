package model

// ItemStatus represents the lifecycle state of a queue item
type ItemStatus string

const (
	// StatusPending means the item is queued but not started
	StatusPending ItemStatus = "Pending"

	// StatusDownloading means the transfer is in progress
	StatusDownloading ItemStatus = "Downloading"

	// StatusCompleted means the item finished successfully
	StatusCompleted ItemStatus = "Completed"

	// StatusFailed means the item failed with an error
	StatusFailed ItemStatus = "Failed"

	// StatusSkipped means the item was removed before it ever started
	StatusSkipped ItemStatus = "Skipped"
)

// String returns the string representation of ItemStatus
func (s ItemStatus) String() string {
	return string(s)
}

// IsActive returns true if the item currently holds the transfer slot
func (s ItemStatus) IsActive() bool {
	return s == StatusDownloading
}

// IsTerminal returns true if the item can no longer change state
func (s ItemStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}
