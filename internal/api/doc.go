// Package api exposes the HTTP surface: metadata probing, direct
// streaming downloads, and queue control. Failures before streaming are
// structured {error} payloads; transfer failures after headers surface as
// truncated streams.
package api
