package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/tubequeue/tubequeue/internal/format"
)

// MediaInfo is the metadata probe result for one resource. For a
// playlist-like resource Entries is populated instead of Streams and the
// catalog-building pipeline is applied per entry.
type MediaInfo struct {
	ID              string
	Title           string
	ThumbnailURL    string
	SourceURL       string
	DurationSeconds float64
	Streams         []format.StreamDescriptor
	Entries         []*MediaInfo
}

// IsBatch reports whether the resource expanded into multiple entries.
func (m *MediaInfo) IsBatch() bool {
	return len(m.Entries) > 0
}

// Provider is the media source contract.
type Provider interface {
	// Probe resolves metadata for url without transferring media bytes.
	Probe(ctx context.Context, url string) (*MediaInfo, error)

	// Open requests the encoded bytes of one stream. The returned length
	// is -1 when the provider cannot report a total up front.
	Open(ctx context.Context, url, streamID string) (io.ReadCloser, int64, error)
}

// ProbeError reports that the provider could not produce metadata for a
// resource. Detail carries the tail of the provider's diagnostics.
type ProbeError struct {
	URL    string
	Detail string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("probe %s: %v: %s", e.URL, e.Err, e.Detail)
	}
	return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
