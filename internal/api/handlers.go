package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/tubequeue/tubequeue/internal/format"
	"github.com/tubequeue/tubequeue/internal/model"
	"github.com/tubequeue/tubequeue/internal/platform"
	"github.com/tubequeue/tubequeue/internal/provider"
	"github.com/tubequeue/tubequeue/internal/queue"
)

// Server wires the HTTP surface to the provider and the queue manager.
type Server struct {
	provider provider.Provider
	manager  *queue.Manager
}

// NewServer creates the API server.
func NewServer(p provider.Provider, m *queue.Manager) *Server {
	return &Server{provider: p, manager: m}
}

// Routes returns the handler for all API endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/info", s.handleInfo)
	mux.HandleFunc("GET /api/download", s.handleDownload)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("POST /api/queue/select", s.handleSelect)
	mux.HandleFunc("POST /api/queue/start", s.handleStart)
	mux.HandleFunc("DELETE /api/queue/items/{id}", s.handleRemove)
	mux.Handle("GET /health", healthHandler())
	return WithCORS(mux)
}

type infoItem struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	ThumbnailURL    string         `json:"thumbnailUrl,omitempty"`
	SourceURL       string         `json:"sourceUrl"`
	DurationSeconds float64        `json:"durationSeconds,omitempty"`
	Formats         format.Catalog `json:"formats"`
	TotalSize       string         `json:"totalSize"`
}

type infoResponse struct {
	IsBatch        bool       `json:"isBatch"`
	BatchTitle     string     `json:"batchTitle,omitempty"`
	BatchThumbnail string     `json:"batchThumbnail,omitempty"`
	Items          []infoItem `json:"items"`
}

// handleInfo probes a resource, replaces the queue with its entries, and
// returns the derived catalogs.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if !validSourceURL(url) {
		writeError(w, http.StatusBadRequest, "URL parameter is required")
		return
	}

	info, err := s.provider.Probe(r.Context(), url)
	if err != nil {
		log.Printf("api: probe failed: %v", err)
		writeError(w, http.StatusBadGateway, "failed to fetch media info")
		return
	}

	infos := []*provider.MediaInfo{info}
	if info.IsBatch() {
		infos = info.Entries
	}
	items, err := s.manager.Replace(infos)
	if errors.Is(err, queue.ErrBusy) {
		writeError(w, http.StatusConflict, "busy")
		return
	}

	resp := infoResponse{IsBatch: info.IsBatch(), Items: make([]infoItem, 0, len(items))}
	if info.IsBatch() {
		resp.BatchTitle = info.Title
		resp.BatchThumbnail = info.ThumbnailURL
	}
	for _, item := range items {
		resp.Items = append(resp.Items, infoItem{
			ID:              item.ID,
			Title:           item.Title,
			ThumbnailURL:    item.ThumbnailURL,
			SourceURL:       item.SourceURL,
			DurationSeconds: item.DurationSeconds,
			Formats:         item.Catalog,
			TotalSize:       item.Catalog.TotalSizeLabel(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDownload resolves one selection and streams the bytes back as an
// attachment. Once headers are out, a transfer failure is visible to the
// client only as truncation.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	url := q.Get("url")
	if !validSourceURL(url) {
		writeError(w, http.StatusBadRequest, "URL parameter is required")
		return
	}
	kind := format.Kind(q.Get("kind"))
	if kind == "" {
		kind = format.KindVideo
	}
	if kind != format.KindVideo && kind != format.KindAudio {
		writeError(w, http.StatusBadRequest, "kind must be video or audio")
		return
	}
	quality := q.Get("quality")
	if quality == "" {
		quality = format.KeyHighest
	}

	streamID := q.Get("streamId")
	title := "download"
	container := ""
	if streamID == "" {
		info, err := s.provider.Probe(r.Context(), url)
		if err != nil {
			log.Printf("api: probe failed: %v", err)
			writeError(w, http.StatusBadGateway, "failed to fetch media info")
			return
		}
		if info.IsBatch() {
			writeError(w, http.StatusBadRequest, "cannot download a batch resource directly")
			return
		}
		catalog := format.BuildCatalog(info.Streams, info.DurationSeconds)
		entry, err := format.ResolveEntry(catalog, kind, quality)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		streamID = entry.StreamID
		container = entry.Container
		if info.Title != "" {
			title = info.Title
		}
	}

	body, _, err := s.provider.Open(r.Context(), url, streamID)
	if err != nil {
		log.Printf("api: open failed: %v", err)
		writeError(w, http.StatusBadGateway, "failed to download media")
		return
	}
	defer body.Close()

	contentType, ext := downloadContentType(kind, container)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+platform.SafeFileName(title)+"."+ext+`"`)
	if _, err := io.Copy(w, body); err != nil {
		// Headers are already sent; the client sees a truncated stream.
		log.Printf("api: transfer aborted: %v", err)
	}
}

type queueResponse struct {
	Items           []model.QueueItem `json:"items"`
	OverallProgress float64           `json:"overallProgress"`
	AllTerminal     bool              `json:"allTerminal"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, queueResponse{
		Items:           s.manager.Items(),
		OverallProgress: s.manager.OverallProgress(),
		AllTerminal:     s.manager.AllTerminal(),
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string `json:"id"`
		Kind    string `json:"kind"`
		Quality string `json:"quality"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	kind := format.Kind(req.Kind)
	if kind != format.KindVideo && kind != format.KindAudio {
		writeError(w, http.StatusBadRequest, "kind must be video or audio")
		return
	}
	if req.Quality == "" {
		writeError(w, http.StatusBadRequest, "quality is required")
		return
	}
	if err := s.manager.Select(req.ID, kind, req.Quality); err != nil {
		writeQueueError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStart kicks off processing in the background: the whole queue, or
// a single item when an id is supplied.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if r.Body != nil {
		// An empty body means "process everything".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	// The request context dies with this handler; processing outlives it.
	go func(id string) {
		var err error
		if id == "" {
			err = s.manager.ProcessAll(context.Background())
		} else {
			err = s.manager.Start(context.Background(), id)
		}
		if err != nil {
			log.Printf("api: queue start: %v", err)
		}
	}(req.ID)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Remove(r.PathValue("id")); err != nil {
		writeQueueError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// downloadContentType derives the response content type and file
// extension from the selection kind and the resolved container. Video
// defaults to mp4; audio is always labeled mp3.
func downloadContentType(kind format.Kind, container string) (contentType, ext string) {
	if kind == format.KindAudio {
		return "audio/mp3", "mp3"
	}
	if container == "" {
		container = "mp4"
	}
	return "video/" + container, container
}

func validSourceURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, queue.ErrNotPending):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
