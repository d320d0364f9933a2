package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tubequeue/tubequeue/internal/format"
	"github.com/tubequeue/tubequeue/internal/model"
	"github.com/tubequeue/tubequeue/internal/provider"
)

// fakeProvider serves canned payloads keyed by stream id and records what
// gets requested.
type fakeProvider struct {
	mu         sync.Mutex
	payloads   map[string]string
	broken     map[string]bool // streams that fail mid-transfer
	unknownLen map[string]bool // streams opened without a reported length
	opened     []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		payloads:   map[string]string{},
		broken:     map[string]bool{},
		unknownLen: map[string]bool{},
	}
}

func (f *fakeProvider) Probe(ctx context.Context, url string) (*provider.MediaInfo, error) {
	return nil, errors.New("not used in queue tests")
}

func (f *fakeProvider) Open(ctx context.Context, url, streamID string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	f.opened = append(f.opened, streamID)
	payload, ok := f.payloads[streamID]
	broken := f.broken[streamID]
	total := int64(len(payload))
	if f.unknownLen[streamID] {
		total = -1
	}
	f.mu.Unlock()

	if !ok {
		return nil, -1, fmt.Errorf("unknown stream %s", streamID)
	}
	if broken {
		return io.NopCloser(&brokenReader{data: payload[:len(payload)/2]}), total, nil
	}
	return io.NopCloser(strings.NewReader(payload)), total, nil
}

func (f *fakeProvider) openedStreams() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.opened...)
}

// brokenReader serves its data, then fails instead of returning EOF.
type brokenReader struct {
	data string
	pos  int
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, errors.New("connection reset")
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}

func muxedInfo(title, url, streamID string, height int) *provider.MediaInfo {
	return &provider.MediaInfo{
		Title:     title,
		SourceURL: url,
		Streams: []format.StreamDescriptor{{
			FormatID:     streamID,
			VideoCodec:   "avc1.64001F",
			AudioCodec:   "mp4a.40.2",
			Height:       height,
			Resolution:   fmt.Sprintf("%dx%d", height*16/9, height),
			FrameRate:    30,
			TotalBitrate: 1000,
			Container:    "mp4",
		}},
	}
}

func TestManager_ReplaceCreatesPendingItems(t *testing.T) {
	fake := newFakeProvider()
	m := NewManager(fake, t.TempDir())

	items, err := m.Replace([]*provider.MediaInfo{
		muxedInfo("One", "https://example.com/1", "s1", 720),
		muxedInfo("Two", "https://example.com/2", "s2", 720),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for i, item := range items {
		if item.Status != model.StatusPending {
			t.Errorf("item %d: expected Pending, got %s", i, item.Status)
		}
		if item.ID == "" {
			t.Errorf("item %d: expected a generated id", i)
		}
		if item.SelectedQuality != "highest" || item.SelectedKind != format.KindVideo {
			t.Errorf("item %d: unexpected default selection %s/%s", i, item.SelectedKind, item.SelectedQuality)
		}
		if item.Catalog.Highest() == nil {
			t.Errorf("item %d: expected a catalog with 'highest'", i)
		}
	}
	if items[0].Title != "One" || items[1].Title != "Two" {
		t.Errorf("discovery order not preserved: %s, %s", items[0].Title, items[1].Title)
	}
}

func TestManager_EnqueueAppendsWithoutReplacing(t *testing.T) {
	fake := newFakeProvider()
	m := NewManager(fake, t.TempDir())

	if _, err := m.Replace([]*provider.MediaInfo{
		muxedInfo("One", "https://example.com/1", "s1", 720),
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	added := m.Enqueue(muxedInfo("Two", "https://example.com/2", "s2", 1080))
	if added.Status != model.StatusPending || added.ID == "" {
		t.Errorf("unexpected enqueued item %+v", added)
	}

	items := m.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Title != "One" || items[1].Title != "Two" {
		t.Errorf("enqueue must append, got %s, %s", items[0].Title, items[1].Title)
	}
}

func TestManager_ProcessAll_CompletesQueueInOrder(t *testing.T) {
	fake := newFakeProvider()
	fake.payloads["s1"] = "first payload"
	fake.payloads["s2"] = "second payload"
	dir := t.TempDir()
	m := NewManager(fake, dir)

	if _, err := m.Replace([]*provider.MediaInfo{
		muxedInfo("One", "https://example.com/1", "s1", 720),
		muxedInfo("Two", "https://example.com/2", "s2", 720),
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if err := m.ProcessAll(context.Background()); err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}

	opened := fake.openedStreams()
	if len(opened) != 2 || opened[0] != "s1" || opened[1] != "s2" {
		t.Errorf("expected strict queue order [s1 s2], got %v", opened)
	}
	for _, item := range m.Items() {
		if item.Status != model.StatusCompleted {
			t.Errorf("item %s: expected Completed, got %s", item.Title, item.Status)
		}
		if item.ProgressPercent != 100 {
			t.Errorf("item %s: expected progress 100, got %v", item.Title, item.ProgressPercent)
		}
		if item.OutputPath == "" {
			t.Errorf("item %s: expected an output path", item.Title)
			continue
		}
		if _, err := os.Stat(item.OutputPath); err != nil {
			t.Errorf("item %s: output file missing: %v", item.Title, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, "One.mp4"))
	if err != nil {
		t.Fatalf("expected One.mp4 to exist: %v", err)
	}
	if string(data) != "first payload" {
		t.Errorf("unexpected file contents %q", data)
	}
	if !m.AllTerminal() {
		t.Error("expected every item terminal after whole-queue processing")
	}
}

func TestManager_ProcessAll_AtMostOneDownloading(t *testing.T) {
	fake := newFakeProvider()
	fake.payloads["s1"] = "aaaa"
	fake.payloads["s2"] = "bbbb"
	fake.payloads["s3"] = "cccc"
	m := NewManager(fake, t.TempDir())

	if _, err := m.Replace([]*provider.MediaInfo{
		muxedInfo("One", "https://example.com/1", "s1", 720),
		muxedInfo("Two", "https://example.com/2", "s2", 720),
		muxedInfo("Three", "https://example.com/3", "s3", 720),
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	statuses := map[string]model.ItemStatus{}
	violated := false
	m.SetUpdateCallback(func(item model.QueueItem) {
		statuses[item.ID] = item.Status
		downloading := 0
		for _, s := range statuses {
			if s == model.StatusDownloading {
				downloading++
			}
		}
		if downloading > 1 {
			violated = true
		}
	})

	if err := m.ProcessAll(context.Background()); err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if violated {
		t.Error("more than one item was Downloading at once")
	}
	if !m.AllTerminal() {
		t.Error("expected every item terminal")
	}
}

func TestManager_ProcessAll_ResolutionFallback(t *testing.T) {
	// Three items selected at 720p; the middle one only offers 1080p, so
	// it must fall back to its "highest" stream and still complete.
	fake := newFakeProvider()
	fake.payloads["a720"] = "AAA"
	fake.payloads["b1080"] = "BBB"
	fake.payloads["c720"] = "CCC"
	m := NewManager(fake, t.TempDir())

	items, err := m.Replace([]*provider.MediaInfo{
		muxedInfo("One", "https://example.com/1", "a720", 720),
		muxedInfo("Two", "https://example.com/2", "b1080", 1080),
		muxedInfo("Three", "https://example.com/3", "c720", 720),
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	for _, item := range items {
		if err := m.Select(item.ID, format.KindVideo, "720p"); err != nil {
			t.Fatalf("Select(%s): %v", item.ID, err)
		}
	}

	if err := m.ProcessAll(context.Background()); err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}

	opened := fake.openedStreams()
	if len(opened) != 3 || opened[0] != "a720" || opened[1] != "b1080" || opened[2] != "c720" {
		t.Errorf("expected [a720 b1080 c720], got %v", opened)
	}
	for _, item := range m.Items() {
		if item.Status != model.StatusCompleted {
			t.Errorf("item %s: expected Completed, got %s (%s)", item.Title, item.Status, item.LastError)
		}
		if item.Status == model.StatusPending {
			t.Errorf("item %s left Pending", item.Title)
		}
	}
}

func TestManager_ResolutionFailureSkipsProviderAndContinues(t *testing.T) {
	fake := newFakeProvider()
	fake.payloads["s2"] = "payload"
	m := NewManager(fake, t.TempDir())

	// First item has nothing downloadable at all.
	empty := &provider.MediaInfo{Title: "Empty", SourceURL: "https://example.com/empty"}
	if _, err := m.Replace([]*provider.MediaInfo{
		empty,
		muxedInfo("Good", "https://example.com/2", "s2", 720),
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if err := m.ProcessAll(context.Background()); err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}

	items := m.Items()
	if items[0].Status != model.StatusFailed {
		t.Errorf("expected first item Failed, got %s", items[0].Status)
	}
	if items[0].LastError != format.ErrNoVideoFormat.Error() {
		t.Errorf("expected lastError %q, got %q", format.ErrNoVideoFormat.Error(), items[0].LastError)
	}
	if items[1].Status != model.StatusCompleted {
		t.Errorf("expected second item Completed, got %s", items[1].Status)
	}
	opened := fake.openedStreams()
	if len(opened) != 1 || opened[0] != "s2" {
		t.Errorf("provider must not be contacted for the unresolvable item, got %v", opened)
	}
}

func TestManager_TransferFailureMarksFailedAndContinues(t *testing.T) {
	fake := newFakeProvider()
	fake.payloads["s1"] = "this stream dies halfway"
	fake.broken["s1"] = true
	fake.payloads["s2"] = "fine"
	m := NewManager(fake, t.TempDir())

	if _, err := m.Replace([]*provider.MediaInfo{
		muxedInfo("Broken", "https://example.com/1", "s1", 720),
		muxedInfo("Fine", "https://example.com/2", "s2", 720),
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if err := m.ProcessAll(context.Background()); err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}

	items := m.Items()
	if items[0].Status != model.StatusFailed || items[0].LastError == "" {
		t.Errorf("expected first item Failed with error, got %s (%q)", items[0].Status, items[0].LastError)
	}
	if items[0].OutputPath != "" {
		t.Error("failed item must not report an output path")
	}
	if items[1].Status != model.StatusCompleted {
		t.Errorf("expected second item Completed, got %s", items[1].Status)
	}
}

func TestManager_StartDrivesExactlyOneItem(t *testing.T) {
	fake := newFakeProvider()
	fake.payloads["s1"] = "one"
	fake.payloads["s2"] = "two"
	m := NewManager(fake, t.TempDir())

	items, err := m.Replace([]*provider.MediaInfo{
		muxedInfo("One", "https://example.com/1", "s1", 720),
		muxedInfo("Two", "https://example.com/2", "s2", 720),
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if err := m.Start(context.Background(), items[0].ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	after := m.Items()
	if after[0].Status != model.StatusCompleted {
		t.Errorf("expected first item Completed, got %s", after[0].Status)
	}
	if after[1].Status != model.StatusPending {
		t.Errorf("single-item start must leave the rest Pending, got %s", after[1].Status)
	}
}

func TestManager_RemovePending(t *testing.T) {
	fake := newFakeProvider()
	m := NewManager(fake, t.TempDir())

	items, err := m.Replace([]*provider.MediaInfo{
		muxedInfo("One", "https://example.com/1", "s1", 720),
		muxedInfo("Two", "https://example.com/2", "s2", 720),
		muxedInfo("Three", "https://example.com/3", "s3", 720),
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if err := m.Remove(items[1].ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	after := m.Items()
	if len(after) != 2 {
		t.Fatalf("expected 2 items after removal, got %d", len(after))
	}
	if after[0].ID != items[0].ID || after[1].ID != items[2].ID {
		t.Error("removal changed the order or identity of the other items")
	}
	for _, item := range after {
		if item.Status != model.StatusPending {
			t.Errorf("removal must not affect other items, got %s", item.Status)
		}
	}

	if err := m.Remove("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_RemoveDownloadingRejected(t *testing.T) {
	fake := newFakeProvider()
	fake.payloads["s1"] = "payload"
	m := NewManager(fake, t.TempDir())

	items, err := m.Replace([]*provider.MediaInfo{
		muxedInfo("One", "https://example.com/1", "s1", 720),
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	var removeErr error
	removed := false
	m.SetUpdateCallback(func(item model.QueueItem) {
		if item.Status == model.StatusDownloading && !removed {
			removed = true
			removeErr = m.Remove(item.ID)
		}
	})

	if err := m.Start(context.Background(), items[0].ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !removed {
		t.Fatal("expected the callback to observe the Downloading state")
	}
	if !errors.Is(removeErr, ErrBusy) {
		t.Errorf("expected ErrBusy removing the in-flight item, got %v", removeErr)
	}
	if len(m.Items()) != 1 {
		t.Error("rejected removal must leave the queue unchanged")
	}
}

func TestManager_ProgressFallsBackToCatalogSize(t *testing.T) {
	// The provider streams through a pipe and reports no length; progress
	// must still move, sized by the catalog entry.
	fake := newFakeProvider()
	fake.payloads["s1"] = "ten bytes!"
	fake.unknownLen["s1"] = true
	m := NewManager(fake, t.TempDir())

	info := muxedInfo("One", "https://example.com/1", "s1", 720)
	info.Streams[0].FileSize = int64(len(fake.payloads["s1"]))
	items, err := m.Replace([]*provider.MediaInfo{info})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	sawProgress := false
	m.SetUpdateCallback(func(item model.QueueItem) {
		if item.Status == model.StatusDownloading && item.ProgressPercent > 0 {
			sawProgress = true
		}
	})

	if err := m.Start(context.Background(), items[0].ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sawProgress {
		t.Error("expected mid-transfer progress despite the provider reporting no length")
	}
	if got := m.Items()[0]; got.Status != model.StatusCompleted || got.ProgressPercent != 100 {
		t.Errorf("expected Completed at 100, got %s at %v", got.Status, got.ProgressPercent)
	}
}

func TestManager_OverallProgress(t *testing.T) {
	fake := newFakeProvider()
	fake.payloads["s1"] = "payload"
	m := NewManager(fake, t.TempDir())

	if m.OverallProgress() != 0 {
		t.Errorf("empty queue progress should be 0, got %v", m.OverallProgress())
	}

	if _, err := m.Replace([]*provider.MediaInfo{
		muxedInfo("One", "https://example.com/1", "s1", 720),
		muxedInfo("Two", "https://example.com/2", "s2", 720),
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	items := m.Items()

	if err := m.Start(context.Background(), items[0].ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// One of two items done, the other untouched.
	if got := m.OverallProgress(); got != 50 {
		t.Errorf("expected overall progress 50, got %v", got)
	}
}
