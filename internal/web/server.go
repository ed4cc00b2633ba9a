package web

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	"go.uber.org/zap"
)

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// Handler serves the read-only status API. logs may be nil.
func Handler(status *Status, logs *LogBuffer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", getOnly(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	}))

	mux.HandleFunc("/healthz", getOnly(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}))

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.HandleFunc("/", getOnly(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fan := status.Snapshot(time.Now().UTC()).Fan
		state := "stopped"
		if fan.Running {
			state = "running"
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><meta http-equiv=\"refresh\" content=\"2\"><title>fanctl</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>fanctl</h1><p>%s. JSON at <a href=\"/api/status\">/api/status</a>.</p>", state)
		_, _ = fmt.Fprintf(w, "<pre>temp=%.1f c (%s)\nduty=%.0f%%\nrpm=%.0f (%s)\ncycles=%d</pre>",
			fan.TempC, fan.TempBand, fan.DutyPercent, fan.RPM, fan.RPMBand, fan.Cycles)
		if fan.LastError != "" {
			_, _ = fmt.Fprintf(w, "<p>last error: %s</p>", html.EscapeString(fan.LastError))
		}
		_, _ = fmt.Fprintf(w, "</body></html>")
	}))

	return mux
}

// Serve runs the status server until ctx is canceled.
func Serve(ctx context.Context, listenAddr string, status *Status, logs *LogBuffer, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(status, logs),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Infow("status server listening", "addr", listenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("web: %w", err)
	}
}
