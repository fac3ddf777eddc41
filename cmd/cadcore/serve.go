package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cadcore/internal/core"
	"cadcore/internal/observability"
	"cadcore/internal/transport/ws"
)

// pumpInterval is how often finished asset loads are applied to the scene.
const pumpInterval = 50 * time.Millisecond

func runServe(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	docID := fs.String("doc", "", "document id to open; a new document is created when absent")
	name := fs.String("name", "Untitled", "name for a newly created document")
	addr := fs.String("addr", a.cfg.Server.ListenAddr, "listen address")
	tracePath := fs.String("trace", "", "append command spans as JSON lines to this file")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	var extra []core.Option
	if *tracePath != "" {
		f, err := os.OpenFile(*tracePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		extra = append(extra, core.WithTracer(observability.NewJSONTracer(f)))
	}
	svc := a.service(extra...)
	doc, err := svc.OpenOrCreate(ctx, *docID, *name)
	if err != nil {
		return err
	}
	defer doc.Close()

	hub := ws.NewHub(doc.Scene(), ws.WithLogger(a.logger))
	defer hub.Close()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: newMux(doc, hub, a.registry), ReadHeaderTimeout: 10 * time.Second}
	fmt.Fprintf(out, "serving %s (%s) on http://%s\n", doc.Name(), doc.ID(), ln.Addr())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	tick := time.NewTicker(pumpInterval)
	defer tick.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			break loop
		case <-tick.C:
			doc.Scene().Pump(ctx)
		}
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdown); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	if doc.Dirty() {
		if err := svc.Save(shutdown, doc); err != nil {
			return err
		}
	}
	return nil
}

// newMux routes the scene feed, metrics and read-only document views.
func newMux(doc *core.Document, hub *ws.Hub, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /scene", hub)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, doc.State())
	})
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, doc.History().State())
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := doc.Check(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "nodes": doc.Scene().Len(), "clients": hub.Clients()})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
