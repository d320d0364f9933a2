package queue

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tubequeue/tubequeue/internal/format"
	"github.com/tubequeue/tubequeue/internal/model"
	"github.com/tubequeue/tubequeue/internal/platform"
	"github.com/tubequeue/tubequeue/internal/progress"
	"github.com/tubequeue/tubequeue/internal/provider"
)

var (
	// ErrBusy means the requested mutation conflicts with the in-flight
	// transfer or an already running processing loop.
	ErrBusy = errors.New("busy")

	// ErrNotFound means no queue item has the given id.
	ErrNotFound = errors.New("item not found")

	// ErrNotPending means the item already left the Pending state.
	ErrNotPending = errors.New("item is not pending")
)

// Manager owns the ordered download queue and drives items through
// Pending -> Downloading -> {Completed, Failed}. Removal before start is
// Pending -> Skipped. At most one item is Downloading at any instant.
type Manager struct {
	mu          sync.Mutex
	items       []*model.QueueItem
	provider    provider.Provider
	downloadDir string
	onUpdate    func(model.QueueItem)
	running     bool
}

// NewManager creates a manager writing completed transfers into downloadDir.
func NewManager(p provider.Provider, downloadDir string) *Manager {
	return &Manager{provider: p, downloadDir: downloadDir}
}

// SetUpdateCallback registers the state-change notification. The callback
// receives a copy and runs outside the manager lock, so it may call back in.
func (m *Manager) SetUpdateCallback(cb func(model.QueueItem)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = cb
}

// Replace discards the current queue and builds a fresh one from probe
// results, one pending item per resource in discovery order. Selection
// defaults to highest-quality video until Select changes it. Rejected
// with ErrBusy while a transfer is in flight.
func (m *Manager) Replace(infos []*provider.MediaInfo) ([]model.QueueItem, error) {
	items := make([]*model.QueueItem, 0, len(infos))
	for _, info := range infos {
		items = append(items, newItem(info))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil, ErrBusy
	}
	m.items = items
	return m.snapshotLocked(), nil
}

// Enqueue appends one pending item without touching the rest of the
// queue. Legal while processing runs; an active whole-queue loop picks
// the new item up when it reaches it.
func (m *Manager) Enqueue(info *provider.MediaInfo) model.QueueItem {
	item := newItem(info)

	m.mu.Lock()
	m.items = append(m.items, item)
	snapshot := *item
	m.mu.Unlock()

	m.notify(item)
	return snapshot
}

func newItem(info *provider.MediaInfo) *model.QueueItem {
	now := time.Now()
	return &model.QueueItem{
		ID:              uuid.NewString(),
		Title:           info.Title,
		ThumbnailURL:    info.ThumbnailURL,
		SourceURL:       info.SourceURL,
		DurationSeconds: info.DurationSeconds,
		Catalog:         format.BuildCatalog(info.Streams, info.DurationSeconds),
		SelectedQuality: format.KeyHighest,
		SelectedKind:    format.KindVideo,
		Status:          model.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Items returns a copy of every item in queue order.
func (m *Manager) Items() []model.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Item returns a copy of one item by id.
func (m *Manager) Item(id string) (model.QueueItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item := m.findLocked(id); item != nil {
		return *item, true
	}
	return model.QueueItem{}, false
}

// Select sets the item's quality selection. Legal only while Pending.
func (m *Manager) Select(id string, kind format.Kind, quality string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.findLocked(id)
	if item == nil {
		return ErrNotFound
	}
	if item.Status != model.StatusPending {
		return ErrNotPending
	}
	item.SelectedKind = kind
	item.SelectedQuality = quality
	item.UpdatedAt = time.Now()
	return nil
}

// Remove deletes a pending item from the queue. The in-flight item is
// rejected with ErrBusy; terminal items with ErrNotPending.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	item := m.findLocked(id)
	if item == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	if item.Status == model.StatusDownloading {
		m.mu.Unlock()
		return ErrBusy
	}
	if item.Status != model.StatusPending {
		m.mu.Unlock()
		return ErrNotPending
	}
	item.Status = model.StatusSkipped
	item.UpdatedAt = time.Now()
	for i, it := range m.items {
		if it.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.notify(item)
	return nil
}

// Start drives exactly one item to a terminal state: the given one, or
// the first pending item when id is empty. Other pending items are left
// untouched. ErrBusy when a transfer is already in flight.
func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrBusy
	}
	var item *model.QueueItem
	if id == "" {
		item = m.nextPendingLocked()
		if item == nil {
			m.mu.Unlock()
			return ErrNotFound
		}
	} else {
		item = m.findLocked(id)
		if item == nil {
			m.mu.Unlock()
			return ErrNotFound
		}
		if item.Status != model.StatusPending {
			m.mu.Unlock()
			return ErrNotPending
		}
	}
	m.running = true
	m.mu.Unlock()
	defer m.clearRunning()

	m.runItem(ctx, item)
	return nil
}

// ProcessAll drives the whole queue: each pending item in queue order,
// one at a time, continuing past failures until no pending item remains.
// ErrBusy when processing is already running.
func (m *Manager) ProcessAll(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrBusy
	}
	m.running = true
	m.mu.Unlock()
	defer m.clearRunning()

	for {
		m.mu.Lock()
		item := m.nextPendingLocked()
		m.mu.Unlock()
		if item == nil {
			break
		}
		m.runItem(ctx, item)
	}

	completed, failed := m.counts()
	log.Printf("queue: processing finished, %d completed, %d failed", completed, failed)
	return nil
}

// OverallProgress averages per-item progress across the queue, with
// terminal items counting as done. 0 for an empty queue.
func (m *Manager) OverallProgress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return 0
	}
	var sum float64
	for _, item := range m.items {
		if item.Status.IsTerminal() {
			sum += 100
			continue
		}
		sum += item.ProgressPercent
	}
	return sum / float64(len(m.items))
}

// AllTerminal reports whether every item reached a terminal state.
func (m *Manager) AllTerminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if !item.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// runItem executes the full per-item protocol: Downloading, resolve,
// transfer, terminal state. Resolution failures never contact the
// provider.
func (m *Manager) runItem(ctx context.Context, item *model.QueueItem) {
	m.transition(item, model.StatusDownloading, "")

	entry, err := format.ResolveEntry(item.Catalog, item.SelectedKind, item.SelectedQuality)
	if err != nil {
		log.Printf("queue: item %s: resolution failed: %v", item.ID, err)
		m.transition(item, model.StatusFailed, err.Error())
		return
	}

	body, total, err := m.provider.Open(ctx, item.SourceURL, entry.StreamID)
	if err != nil {
		log.Printf("queue: item %s: provider open failed: %v", item.ID, err)
		m.transition(item, model.StatusFailed, err.Error())
		return
	}
	defer body.Close()
	if total <= 0 {
		// Providers that stream through a pipe cannot report a length;
		// the catalog's size estimate keeps progress moving.
		total = entry.SizeBytes
	}

	out, path, err := m.createOutput(item, entry)
	if err != nil {
		m.transition(item, model.StatusFailed, err.Error())
		return
	}

	reader := &progress.Reader{
		R: body,
		OnProgress: func(received int64) {
			m.setProgress(item, progress.Percent(received, total))
		},
	}
	_, copyErr := io.Copy(out, reader)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(path)
		log.Printf("queue: item %s: transfer failed: %v", item.ID, copyErr)
		m.transition(item, model.StatusFailed, copyErr.Error())
		return
	}

	m.mu.Lock()
	item.OutputPath = path
	m.mu.Unlock()
	m.transition(item, model.StatusCompleted, "")
}

func (m *Manager) createOutput(item *model.QueueItem, entry *format.Entry) (io.WriteCloser, string, error) {
	if err := platform.CreateDirectoryIfNotExists(m.downloadDir); err != nil {
		return nil, "", err
	}
	ext := entry.Container
	if item.SelectedKind == format.KindAudio {
		ext = "mp3"
	}
	if ext == "" {
		ext = "mp4"
	}
	name := platform.SafeFileName(item.DisplayTitle()) + "." + ext
	path := filepath.Join(m.downloadDir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// transition moves an item to the given status and notifies. Entering
// Downloading resets progress; Completed forces it to 100.
func (m *Manager) transition(item *model.QueueItem, status model.ItemStatus, lastError string) {
	m.mu.Lock()
	item.Status = status
	item.LastError = lastError
	item.UpdatedAt = time.Now()
	switch status {
	case model.StatusDownloading:
		item.ProgressPercent = 0
	case model.StatusCompleted:
		item.ProgressPercent = 100
	}
	m.mu.Unlock()

	m.notify(item)
}

func (m *Manager) setProgress(item *model.QueueItem, percent float64) {
	m.mu.Lock()
	item.ProgressPercent = percent
	item.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.notify(item)
}

func (m *Manager) notify(item *model.QueueItem) {
	m.mu.Lock()
	cb := m.onUpdate
	snapshot := *item
	m.mu.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}

func (m *Manager) clearRunning() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *Manager) counts() (completed, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		switch item.Status {
		case model.StatusCompleted:
			completed++
		case model.StatusFailed:
			failed++
		}
	}
	return completed, failed
}

func (m *Manager) findLocked(id string) *model.QueueItem {
	for _, item := range m.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (m *Manager) nextPendingLocked() *model.QueueItem {
	for _, item := range m.items {
		if item.Status == model.StatusPending {
			return item
		}
	}
	return nil
}

func (m *Manager) snapshotLocked() []model.QueueItem {
	out := make([]model.QueueItem, len(m.items))
	for i, item := range m.items {
		out[i] = *item
	}
	return out
}
