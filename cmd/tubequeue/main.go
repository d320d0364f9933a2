package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tubequeue/tubequeue/internal/api"
	"github.com/tubequeue/tubequeue/internal/config"
	"github.com/tubequeue/tubequeue/internal/model"
	"github.com/tubequeue/tubequeue/internal/platform"
	"github.com/tubequeue/tubequeue/internal/provider"
	"github.com/tubequeue/tubequeue/internal/queue"
)

func main() {
	settings := config.Load()

	if err := platform.CreateDirectoryIfNotExists(settings.DownloadDir); err != nil {
		log.Fatalf("cannot create download directory %s: %v", settings.DownloadDir, err)
	}

	p := provider.NewYTDLP(settings.YTDLPBinary, settings.ProbeTimeout)
	mgr := queue.NewManager(p, settings.DownloadDir)
	mgr.SetUpdateCallback(func(item model.QueueItem) {
		if item.Status != model.StatusDownloading || item.ProgressPercent == 0 {
			log.Printf("queue: %s -> %s", item.DisplayTitle(), item.Status)
		}
	})

	srv := &http.Server{
		Addr:    settings.Addr,
		Handler: api.NewServer(p, mgr).Routes(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s, downloads in %s", srv.Addr, settings.DownloadDir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
