package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fanctl/internal/fancontrol"
)

type fixedSource struct{ snap fancontrol.Snapshot }

func (f fixedSource) Snapshot() fancontrol.Snapshot { return f.snap }

func newTestStatus(snap fancontrol.Snapshot) *Status {
	st := NewStatus(fixedSource{snap: snap})
	st.system = nil
	return st
}

func TestAPIStatus(t *testing.T) {
	st := newTestStatus(fancontrol.Snapshot{
		Running:     true,
		TempC:       50,
		TempBand:    fancontrol.TempYellow,
		DutyPercent: 52,
		RPM:         1200,
		RPMBand:     fancontrol.RPMHigh,
		Cycles:      7,
	})
	ts := httptest.NewServer(Handler(st, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}

	var raw struct {
		Service string         `json:"service"`
		Fan     map[string]any `json:"fan"`
		System  map[string]any `json:"system"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if raw.Service != "fanctl" {
		t.Fatalf("service=%q", raw.Service)
	}
	if raw.Fan["temp_band"] != "yellow" || raw.Fan["rpm_band"] != "high" {
		t.Fatalf("bands=%v/%v want yellow/high", raw.Fan["temp_band"], raw.Fan["rpm_band"])
	}
	if raw.Fan["duty_percent"] != 52.0 || raw.Fan["running"] != true {
		t.Fatalf("fan=%v", raw.Fan)
	}
	if raw.System != nil {
		t.Fatalf("system=%v want omitted", raw.System)
	}
}

func TestHealthz(t *testing.T) {
	ts := httptest.NewServer(Handler(newTestStatus(fancontrol.Snapshot{}), nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Fatalf("code=%d body=%q", resp.StatusCode, body)
	}
}

func TestNonGetRejected(t *testing.T) {
	h := Handler(newTestStatus(fancontrol.Snapshot{}), NewLogBuffer(10))
	for _, path := range []string{"/api/status", "/healthz", "/api/logs", "/"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s code=%d want 405", path, rec.Code)
		}
		if got := rec.Header().Get("Allow"); got != http.MethodGet {
			t.Fatalf("%s Allow=%q want GET", path, got)
		}
	}
}

func TestRootPage(t *testing.T) {
	h := Handler(newTestStatus(fancontrol.Snapshot{Running: true, LastError: "<boom>"}), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "running") || !strings.Contains(body, "&lt;boom&gt;") {
		t.Fatalf("body=%q", body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d want 404", rec.Code)
	}
}

func TestAPILogs_Tail(t *testing.T) {
	logs := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(logs, "line %d\n", i)
	}
	_, _ = logs.Write([]byte("partial"))

	h := Handler(newTestStatus(fancontrol.Snapshot{}), logs)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?tail=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	var out LogsResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(out.Lines) != 2 || out.Lines[0] != "line 3" || out.Lines[1] != "line 4" {
		t.Fatalf("lines=%v", out.Lines)
	}
	if out.Dropped != 2 {
		t.Fatalf("dropped=%d want 2", out.Dropped)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?tail=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code=%d want 400", rec.Code)
	}
}

func TestLogBuffer_JoinsSplitWrites(t *testing.T) {
	logs := NewLogBuffer(10)
	_, _ = logs.Write([]byte("hel"))
	_, _ = logs.Write([]byte("lo\r\nwor"))
	_, _ = logs.Write([]byte("ld\n"))

	lines, _ := logs.Snapshot(0)
	if len(lines) != 2 || lines[0] != "hello" || lines[1] != "world" {
		t.Fatalf("lines=%q", lines)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, newTestStatus(fancontrol.Snapshot{}), nil, nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return")
	}
}
