package format

import (
	"fmt"
	"math"
)

// unknownSizeLabel is shown when neither the provider nor an estimate can
// put a number on the stream.
const unknownSizeLabel = "Unknown"

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// sizeBytes returns the byte count backing a stream's size and whether it
// is an estimate. Reported sizes win over estimates; estimates come from
// bitrate times duration. 0 means unknown.
func sizeBytes(d StreamDescriptor, durationSeconds float64) (float64, bool) {
	if d.FileSize > 0 {
		return float64(d.FileSize), false
	}
	if d.FileSizeApprox > 0 {
		return float64(d.FileSizeApprox), false
	}
	bitrate := d.TotalBitrate
	if bitrate <= 0 {
		bitrate = d.AudioBitrate
	}
	if bitrate <= 0 {
		bitrate = d.VideoBitrate
	}
	if bitrate > 0 && durationSeconds > 0 {
		return bitrate * 1000 / 8 * durationSeconds, true
	}
	return 0, true
}

// sizeLabel is sizeBytes rendered for display.
func sizeLabel(d StreamDescriptor, durationSeconds float64) (string, bool) {
	bytes, estimated := sizeBytes(d, durationSeconds)
	if bytes <= 0 {
		return unknownSizeLabel, true
	}
	return humanSize(bytes), estimated
}

// humanSize formats a byte count: whole bytes below 1000, otherwise two
// decimals in the unit picked by floor(log1024).
func humanSize(bytes float64) string {
	if bytes < 1000 {
		return fmt.Sprintf("%d %s", int64(bytes), sizeUnits[0])
	}
	exp := int(math.Floor(math.Log(bytes) / math.Log(1024)))
	if exp >= len(sizeUnits) {
		exp = len(sizeUnits) - 1
	}
	return fmt.Sprintf("%.2f %s", bytes/math.Pow(1024, float64(exp)), sizeUnits[exp])
}
