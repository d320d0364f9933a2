package config

import (
	"os"
	"time"

	"github.com/tubequeue/tubequeue/internal/platform"
)

// Environment variable keys
const (
	EnvAddr         = "TUBEQUEUE_ADDR"
	EnvDownloadDir  = "TUBEQUEUE_DOWNLOAD_DIR"
	EnvYTDLPBinary  = "TUBEQUEUE_YTDLP"
	EnvProbeTimeout = "TUBEQUEUE_PROBE_TIMEOUT"
)

// Default values
const (
	DefaultAddr         = ":8080"
	DefaultYTDLPBinary  = "yt-dlp"
	DefaultProbeTimeout = 60 * time.Second
	FallbackDownloadDir = "downloads"
)

// Settings holds the runtime configuration of the service.
type Settings struct {
	Addr         string
	DownloadDir  string
	YTDLPBinary  string
	ProbeTimeout time.Duration
}

// Load builds settings from the environment, falling back to defaults.
// The download directory defaults to the user's Downloads folder.
func Load() Settings {
	s := Settings{
		Addr:         DefaultAddr,
		YTDLPBinary:  DefaultYTDLPBinary,
		ProbeTimeout: DefaultProbeTimeout,
	}
	if v := os.Getenv(EnvAddr); v != "" {
		s.Addr = v
	}
	if v := os.Getenv(EnvYTDLPBinary); v != "" {
		s.YTDLPBinary = v
	}
	if v := os.Getenv(EnvProbeTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			s.ProbeTimeout = d
		}
	}
	if v := os.Getenv(EnvDownloadDir); v != "" {
		s.DownloadDir = v
		return s
	}
	if dir, err := platform.GetHomeDownloadsDir(); err == nil {
		s.DownloadDir = dir
	} else {
		s.DownloadDir = FallbackDownloadDir
	}
	return s
}
