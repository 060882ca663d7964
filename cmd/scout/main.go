// Command scout runs the AI/ML repository scouting service: it wires the
// Controller facade to a cron-driven Cycle Controller and exposes a minimal
// operational HTTP surface (/healthz, /readyz, /metrics). It is not the
// dashboard-facing API — that consumes the Controller facade directly or
// through a separate surface.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/repo-scout/core"
	"github.com/R3E-Network/repo-scout/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctrl, err := core.Init(cfg)
	if err != nil {
		log.Fatalf("init controller: %v", err)
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.ResumeActiveBatches(rootCtx); err != nil {
		log.Printf("resume active batches: %v", err)
	}

	sched := ctrl.Scheduler()
	if err := sched.Start(rootCtx); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router(ctrl),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("repo-scout operational surface listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	cancel()
}

func router(ctrl *core.Controller) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if _, err := ctrl.Report(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}
