package livereload

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, url string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func readUntil(r *bufio.Reader, needle string, within time.Duration) bool {
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		line, err := r.ReadString('\n')
		if err != nil {
			return false
		}
		if strings.Contains(line, needle) {
			return true
		}
	}
	return false
}

func TestHubSendsCurrentBuildOnConnect(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()
	hub.Broadcast("build-1")

	srv := httptest.NewServer(hub)
	defer srv.Close()

	r := connect(t, srv.URL)
	assert.True(t, readUntil(r, `"build":"build-1"`, time.Second))
}

func TestHubBroadcastReachesClients(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	r := connect(t, srv.URL)
	require.True(t, readUntil(r, ": connected", time.Second))
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast("build-2")
	assert.True(t, readUntil(r, `"build":"build-2"`, time.Second))
}

func TestHubIgnoresRepeatsAndShutdown(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("same")
	hub.Broadcast("same")
	assert.Equal(t, "same", hub.lastToken)

	hub.Shutdown()
	hub.Broadcast("after")
	assert.Equal(t, "same", hub.lastToken)

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livereload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerServesPagesBySlug(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(out, "notes"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(out, "index.html"), []byte("home"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(out, "notes", "a.html"), []byte("note a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(out, "logo.png"), []byte("png"), 0o600))

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "metrics") })
	s := NewServer(ServerOptions{OutputDir: out, Hub: NewHub(), Metrics: metrics})
	h := s.Handler()

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/", http.StatusOK, "home"},
		{"/notes/a", http.StatusOK, "note a"},
		{"/logo.png", http.StatusOK, "png"},
		{"/metrics", http.StatusOK, "metrics"},
		{"/livereload.js", http.StatusOK, "EventSource('/livereload')"},
		{"/missing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
			if tt.body != "" {
				assert.Contains(t, rec.Body.String(), tt.body)
			}
		})
	}
}

func TestServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := NewServer(ServerOptions{OutputDir: t.TempDir(), Hub: NewHub()})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/livereload.js")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerStreamsThroughMiddleware(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("build-1")
	srv := httptest.NewServer(NewServer(ServerOptions{OutputDir: t.TempDir(), Hub: hub}).Handler())
	defer srv.Close()
	defer hub.Shutdown()

	r := connect(t, srv.URL+"/livereload")
	assert.True(t, readUntil(r, `"build":"build-1"`, time.Second))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := withMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
