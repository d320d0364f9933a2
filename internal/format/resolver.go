package format

import "errors"

// Kind selects which track family a download should carry.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Resolution failures. Recoverable at the queue level: the item fails,
// the queue moves on.
var (
	ErrNoVideoFormat = errors.New("no-video-format")
	ErrNoAudioFormat = errors.New("no-audio-format")
)

// ResolveEntry maps a selection to the catalog entry that should be
// requested from the provider.
//
// Audio selections use the "audio" entry. Video selections use the exact
// quality key when the catalog has it and fall back to "highest"
// otherwise; a batch applies one globally chosen resolution across
// resources that may not all offer it, so the fallback keeps those items
// downloadable. Entries are never invented for absent keys.
func ResolveEntry(c Catalog, kind Kind, quality string) (*Entry, error) {
	if kind == KindAudio {
		if e := c.Audio(); e != nil {
			return e, nil
		}
		return nil, ErrNoAudioFormat
	}
	if quality != KeyHighest {
		if e := c[quality]; e != nil {
			return e, nil
		}
	}
	if e := c.Highest(); e != nil {
		return e, nil
	}
	return nil, ErrNoVideoFormat
}

// Resolve is ResolveEntry reduced to the concrete provider stream id.
func Resolve(c Catalog, kind Kind, quality string) (string, error) {
	e, err := ResolveEntry(c, kind, quality)
	if err != nil {
		return "", err
	}
	return e.StreamID, nil
}
