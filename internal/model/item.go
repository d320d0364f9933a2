package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/tubequeue/tubequeue/internal/format"
)

// QueueItem is one resource (a single video or one playlist member)
// awaiting or undergoing transfer. The catalog is attached at creation and
// immutable afterwards; status, progress and error fields are mutated only
// by the queue manager.
type QueueItem struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	ThumbnailURL    string         `json:"thumbnailUrl,omitempty"`
	SourceURL       string         `json:"sourceUrl"`
	DurationSeconds float64        `json:"durationSeconds,omitempty"`
	Catalog         format.Catalog `json:"formats"`
	SelectedQuality string         `json:"selectedQuality"`
	SelectedKind    format.Kind    `json:"selectedKind"`
	Status          ItemStatus     `json:"status"`
	ProgressPercent float64        `json:"progress"`
	LastError       string         `json:"error,omitempty"`
	OutputPath      string         `json:"outputPath,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// DisplayTitle returns the title, or the source URL when no title is known.
func (q *QueueItem) DisplayTitle() string {
	if q.Title != "" && !strings.HasPrefix(q.Title, "http") {
		return q.Title
	}
	return q.SourceURL
}

// DurationString formats the duration as mm:ss or hh:mm:ss, or a dash
// placeholder when the provider did not report one.
func (q *QueueItem) DurationString() string {
	total := int(q.DurationSeconds)
	if total <= 0 {
		return "—"
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
