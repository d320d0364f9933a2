package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tubequeue/tubequeue/internal/format"
)

// DefaultBinary is the yt-dlp executable looked up on PATH when no
// explicit path is configured.
const DefaultBinary = "yt-dlp"

// DefaultProbeTimeout bounds a single metadata probe.
const DefaultProbeTimeout = 60 * time.Second

// stderrTailLimit caps how much provider diagnostics end up in errors.
const stderrTailLimit = 512

// probeArgs mirror what the extraction tooling is usually invoked with:
// machine-readable single-document output and no TLS or warning noise.
var probeArgs = []string{
	"--dump-single-json",
	"--no-warnings",
	"--no-check-certificates",
	"--prefer-free-formats",
}

var downloadArgs = []string{
	"--no-warnings",
	"--no-check-certificates",
}

// YTDLP is the Provider implementation backed by the yt-dlp executable.
type YTDLP struct {
	binary       string
	probeTimeout time.Duration
}

// NewYTDLP creates a provider around the given yt-dlp binary path.
// Empty/zero arguments fall back to the defaults.
func NewYTDLP(binary string, probeTimeout time.Duration) *YTDLP {
	if binary == "" {
		binary = DefaultBinary
	}
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &YTDLP{binary: binary, probeTimeout: probeTimeout}
}

// Probe runs yt-dlp in dump-json mode and parses the result.
func (y *YTDLP) Probe(ctx context.Context, url string) (*MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, y.probeTimeout)
	defer cancel()

	args := append(append([]string{}, probeArgs...), url)
	cmd := exec.CommandContext(ctx, y.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ProbeError{URL: url, Detail: stderrTail(stderr.Bytes()), Err: err}
	}

	root := gjson.ParseBytes(stdout.Bytes())
	if !root.IsObject() {
		return nil, &ProbeError{URL: url, Err: fmt.Errorf("provider returned no metadata document")}
	}
	return parseProbeOutput(root, url), nil
}

// Open streams one encoded rendition to stdout of a yt-dlp process. The
// total length is unknown up front, so -1 is returned; callers size the
// transfer from the catalog entry instead.
func (y *YTDLP) Open(ctx context.Context, url, streamID string) (io.ReadCloser, int64, error) {
	args := append(append([]string{}, downloadArgs...), "-f", streamID, "-o", "-", url)
	cmd := exec.CommandContext(ctx, y.binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, -1, fmt.Errorf("open provider stream: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, -1, fmt.Errorf("start provider process: %w", err)
	}
	return &processStream{out: stdout, cmd: cmd, stderr: &stderr}, -1, nil
}

// processStream adapts a running subprocess into an io.ReadCloser. A
// non-zero exit after the pipe drains surfaces as a read error instead of
// a clean EOF, so truncated transfers are distinguishable.
type processStream struct {
	out    io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	waited bool
}

func (p *processStream) Read(b []byte) (int, error) {
	n, err := p.out.Read(b)
	if err == io.EOF && !p.waited {
		p.waited = true
		if werr := p.cmd.Wait(); werr != nil {
			return n, fmt.Errorf("provider stream ended abnormally: %v: %s", werr, stderrTail(p.stderr.Bytes()))
		}
	}
	return n, err
}

func (p *processStream) Close() error {
	err := p.out.Close()
	if !p.waited {
		p.waited = true
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.cmd.Wait()
	}
	return err
}

func parseProbeOutput(root gjson.Result, url string) *MediaInfo {
	info := parseSingle(root, url)

	if entries := root.Get("entries"); entries.Exists() {
		entries.ForEach(func(_, e gjson.Result) bool {
			entryURL := e.Get("webpage_url").String()
			if entryURL == "" {
				entryURL = e.Get("url").String()
			}
			info.Entries = append(info.Entries, parseSingle(e, entryURL))
			return true
		})
		info.Streams = nil
	}
	return info
}

func parseSingle(v gjson.Result, url string) *MediaInfo {
	info := &MediaInfo{
		ID:              v.Get("id").String(),
		Title:           v.Get("title").String(),
		ThumbnailURL:    v.Get("thumbnail").String(),
		SourceURL:       url,
		DurationSeconds: v.Get("duration").Float(),
	}
	if wp := v.Get("webpage_url").String(); info.SourceURL == "" && wp != "" {
		info.SourceURL = wp
	}
	v.Get("formats").ForEach(func(_, f gjson.Result) bool {
		info.Streams = append(info.Streams, format.StreamDescriptor{
			FormatID:       f.Get("format_id").String(),
			VideoCodec:     f.Get("vcodec").String(),
			AudioCodec:     f.Get("acodec").String(),
			Height:         int(f.Get("height").Int()),
			Resolution:     f.Get("resolution").String(),
			FrameRate:      f.Get("fps").Float(),
			TotalBitrate:   f.Get("tbr").Float(),
			AudioBitrate:   f.Get("abr").Float(),
			VideoBitrate:   f.Get("vbr").Float(),
			FileSize:       f.Get("filesize").Int(),
			FileSizeApprox: f.Get("filesize_approx").Int(),
			Container:      f.Get("ext").String(),
			Note:           f.Get("format_note").String(),
			DynamicRange:   f.Get("dynamic_range").String(),
		})
		return true
	})
	return info
}

func stderrTail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > stderrTailLimit {
		s = s[len(s)-stderrTailLimit:]
	}
	return s
}
