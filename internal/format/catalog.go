package format

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Well-known catalog keys. Per-resolution keys like "720p" are derived
// from the heights actually observed.
const (
	KeyHighest = "highest"
	KeyAudio   = "audio"
)

// Audio entries are labeled for the container the consumer transcodes to,
// regardless of the source container.
const audioQualityLabel = "Audio (MP3)"

const highestQualityLabel = "Highest"

// bitrateToleranceKbps is the absolute slack allowed when matching a muxed
// stream against the best video stream's total bitrate.
const bitrateToleranceKbps = 100

// Entry is one selectable quality option derived for a resource.
type Entry struct {
	StreamID      string  `json:"formatId"`
	QualityLabel  string  `json:"quality"`
	Size          string  `json:"size"`
	SizeEstimated bool    `json:"sizeEstimated"`
	SizeBytes     int64   `json:"-"` // number behind Size, 0 when unknown
	Resolution    string  `json:"resolution,omitempty"`
	FrameRate     float64 `json:"fps,omitempty"`
	TotalBitrate  float64 `json:"tbr,omitempty"`
	Container     string  `json:"container,omitempty"`
	VideoCodec    string  `json:"videoCodec,omitempty"`
	AudioCodec    string  `json:"audioCodec,omitempty"`
	Note          string  `json:"note,omitempty"`
	AudioOnly     bool    `json:"audioOnly,omitempty"`
	VideoOnly     bool    `json:"videoOnly,omitempty"`
}

// Catalog maps selection keys ("highest", "720p", "audio", ...) to the
// entry chosen for that key. Absent keys mean nothing selectable exists.
type Catalog map[string]*Entry

// Highest returns the entry for the "highest" key, or nil.
func (c Catalog) Highest() *Entry {
	return c[KeyHighest]
}

// Audio returns the entry for the "audio" key, or nil.
func (c Catalog) Audio() *Entry {
	return c[KeyAudio]
}

// Empty reports whether the catalog offers nothing downloadable.
func (c Catalog) Empty() bool {
	return len(c) == 0
}

// Keys returns the catalog keys with "highest" first, resolutions in
// descending height order, and "audio" last.
func (c Catalog) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		if k != KeyHighest && k != KeyAudio {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return resolutionHeight(keys[i]) > resolutionHeight(keys[j])
	})
	if _, ok := c[KeyAudio]; ok {
		keys = append(keys, KeyAudio)
	}
	if _, ok := c[KeyHighest]; ok {
		keys = append([]string{KeyHighest}, keys...)
	}
	return keys
}

// TotalSizeLabel returns the size label shown for the resource as a whole:
// the "highest" entry's size when present, else the audio entry's, else
// the unknown placeholder.
func (c Catalog) TotalSizeLabel() string {
	if e := c.Highest(); e != nil {
		return e.Size
	}
	if e := c.Audio(); e != nil {
		return e.Size
	}
	return unknownSizeLabel
}

func resolutionHeight(key string) int {
	var h int
	if _, err := fmt.Sscanf(key, "%dp", &h); err != nil {
		return 0
	}
	return h
}

// BuildCatalog classifies and ranks the given streams into a catalog.
// It never fails: with no usable streams the result is empty and both
// "highest" and "audio" are absent. durationSeconds (0 when unknown) is
// used only to estimate sizes the provider did not report.
func BuildCatalog(streams []StreamDescriptor, durationSeconds float64) Catalog {
	catalog := Catalog{}

	var audio, video []StreamDescriptor
	for _, s := range streams {
		switch {
		case s.IsAudioOnly():
			audio = append(audio, s)
		case s.HasVideo() && s.Height > 0 && s.Resolution != "":
			video = append(video, s)
		}
	}

	if len(audio) > 0 {
		sort.SliceStable(audio, func(i, j int) bool {
			return audio[i].AudioBitrate > audio[j].AudioBitrate
		})
		catalog[KeyAudio] = newEntry(audio[0], audioQualityLabel, durationSeconds)
	}

	if len(video) == 0 {
		return catalog
	}

	// Best-first composite order; stable so input order decides exact ties.
	sort.SliceStable(video, func(i, j int) bool {
		return betterVideo(video[i], video[j])
	})

	best := video[0]
	highest := best
	if m, ok := matchingMuxed(video, best); ok {
		highest = m
	}
	catalog[KeyHighest] = newEntry(highest, highestQualityLabel, durationSeconds)

	seen := map[int]bool{}
	for _, s := range video {
		if seen[s.Height] {
			continue
		}
		seen[s.Height] = true
		key := fmt.Sprintf("%dp", s.Height)
		if s.Height == best.Height {
			// The nominal top quality points at the same stream as
			// "highest" so both keys agree on what gets downloaded.
			catalog[key] = newEntry(highest, key, durationSeconds)
			continue
		}
		catalog[key] = newEntry(s, key, durationSeconds)
	}

	return catalog
}

// betterVideo orders candidates best-first: pixel height, then frame rate,
// then total bitrate. Codec family decides only when all numeric keys tie.
func betterVideo(a, b StreamDescriptor) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	if a.FrameRate != b.FrameRate {
		return a.FrameRate > b.FrameRate
	}
	if a.TotalBitrate != b.TotalBitrate {
		return a.TotalBitrate > b.TotalBitrate
	}
	return codecRank(a.VideoCodec) > codecRank(b.VideoCodec)
}

// codecRank prefers modern codec families: av01 over vp09 over the rest.
func codecRank(codec string) int {
	switch {
	case strings.HasPrefix(codec, "av01"):
		return 2
	case strings.HasPrefix(codec, "vp09"), strings.HasPrefix(codec, "vp9"):
		return 1
	}
	return 0
}

// matchingMuxed looks for a muxed stream equivalent to the best video
// stream, so playback needs no separate audio merge. Equivalence is same
// height and resolution, same frame rate when both sides report one, and
// total bitrate within the absolute tolerance.
func matchingMuxed(video []StreamDescriptor, best StreamDescriptor) (StreamDescriptor, bool) {
	for _, s := range video {
		if !s.IsMuxed() {
			continue
		}
		if s.Height != best.Height || s.Resolution != best.Resolution {
			continue
		}
		if best.FrameRate != 0 && s.FrameRate != 0 && s.FrameRate != best.FrameRate {
			continue
		}
		if math.Abs(s.TotalBitrate-best.TotalBitrate) > bitrateToleranceKbps {
			continue
		}
		return s, true
	}
	return StreamDescriptor{}, false
}

func newEntry(d StreamDescriptor, label string, durationSeconds float64) *Entry {
	size, estimated := sizeLabel(d, durationSeconds)
	bytes, _ := sizeBytes(d, durationSeconds)
	e := &Entry{
		StreamID:      d.FormatID,
		QualityLabel:  label,
		Size:          size,
		SizeEstimated: estimated,
		SizeBytes:     int64(bytes),
		Resolution:    d.Resolution,
		FrameRate:     d.FrameRate,
		TotalBitrate:  d.TotalBitrate,
		Container:     d.Container,
		Note:          d.Note,
		AudioOnly:     d.IsAudioOnly(),
		VideoOnly:     d.IsVideoOnly(),
	}
	if d.HasVideo() {
		e.VideoCodec = d.VideoCodec
	}
	if d.HasAudio() {
		e.AudioCodec = d.AudioCodec
	}
	return e
}
