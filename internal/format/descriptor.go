package format

// codecNone is how the provider reports an absent track
const codecNone = "none"

// StreamDescriptor is one raw encoding reported by the media source
// provider for a resource. All fields except FormatID are optional; zero
// values mean the provider did not report them.
type StreamDescriptor struct {
	FormatID       string
	VideoCodec     string
	AudioCodec     string
	Height         int
	Resolution     string  // e.g. "1920x1080"
	FrameRate      float64 // frames per second
	TotalBitrate   float64 // kbps
	AudioBitrate   float64 // kbps
	VideoBitrate   float64 // kbps
	FileSize       int64   // exact size in bytes
	FileSizeApprox int64   // provider estimate in bytes
	Container      string  // file extension, e.g. "mp4"
	Note           string  // provider quality note
	DynamicRange   string
}

// HasVideo reports whether the stream carries a video track.
func (d StreamDescriptor) HasVideo() bool {
	return d.VideoCodec != "" && d.VideoCodec != codecNone
}

// HasAudio reports whether the stream carries an audio track.
func (d StreamDescriptor) HasAudio() bool {
	return d.AudioCodec != "" && d.AudioCodec != codecNone
}

// IsAudioOnly reports whether the stream is an audio track without video.
func (d StreamDescriptor) IsAudioOnly() bool {
	return d.HasAudio() && !d.HasVideo()
}

// IsVideoOnly reports whether the stream is a video track without audio.
func (d StreamDescriptor) IsVideoOnly() bool {
	return d.HasVideo() && !d.HasAudio()
}

// IsMuxed reports whether the stream carries both tracks in one container.
func (d StreamDescriptor) IsMuxed() bool {
	return d.HasVideo() && d.HasAudio()
}
