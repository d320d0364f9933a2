// Package format turns raw stream descriptors reported by the media source
// provider into a keyed catalog of selectable quality options, and resolves
// a caller's selection back to a concrete stream id. Everything here is
// pure computation over in-memory data.
package format
