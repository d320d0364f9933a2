// Package provider defines the narrow contract through which the core
// consumes the media source: a metadata probe and a byte stream per
// resolved stream id. The production implementation shells out to the
// yt-dlp executable; everything else in the repository depends only on
// the Provider interface.
package provider
