package ytmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rexvoice/rex/pkg/media"
)

// companionServer fakes the YTMD companion API and records every command.
type companionServer struct {
	*httptest.Server

	mu       sync.Mutex
	commands []commandRequest
	auths    []string
	status   int
}

func newCompanionServer(t *testing.T) *companionServer {
	t.Helper()
	cs := &companionServer{status: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/command", func(w http.ResponseWriter, r *http.Request) {
		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode command body: %v", err)
		}
		cs.mu.Lock()
		cs.commands = append(cs.commands, req)
		cs.auths = append(cs.auths, r.Header.Get("Authorization"))
		status := cs.status
		cs.mu.Unlock()
		w.WriteHeader(status)
	})
	mux.HandleFunc("GET /api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.auths = append(cs.auths, r.Header.Get("Authorization"))
		status := cs.status
		cs.mu.Unlock()
		w.WriteHeader(status)
	})

	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

func (cs *companionServer) sent() []commandRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]commandRequest, len(cs.commands))
	copy(out, cs.commands)
	return out
}

func (cs *companionServer) setStatus(code int) {
	cs.mu.Lock()
	cs.status = code
	cs.mu.Unlock()
}

func TestBackend_Commands(t *testing.T) {
	t.Parallel()
	srv := newCompanionServer(t)
	b := New(srv.URL, "secret-token")
	ctx := context.Background()

	tests := []struct {
		name      string
		call      func() error
		wantCmd   string
		wantValue any
	}{
		{"play", func() error { return b.Play(ctx) }, "play", nil},
		{"pause", func() error { return b.Pause(ctx) }, "pause", nil},
		{"next", func() error { return b.Next(ctx) }, "next", nil},
		{"previous", func() error { return b.Previous(ctx) }, "previous", nil},
		{"restart", func() error { return b.Restart(ctx) }, "seekTo", float64(0)},
		{"set volume", func() error { return b.SetVolume(ctx, 70) }, "setVolume", float64(70)},
		{"like", func() error { return b.Like(ctx) }, "toggleLike", nil},
		{"dislike", func() error { return b.Dislike(ctx) }, "toggleDislike", nil},
		{"search", func() error { return b.SearchAndPlay(ctx, "yesterday", "the beatles") }, "search", "yesterday the beatles"},
		{"search no artist", func() error { return b.SearchAndPlay(ctx, "despacito", "") }, "search", "despacito"},
	}

	for i, tc := range tests {
		if err := tc.call(); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		got := srv.sent()[i]
		if got.Command != tc.wantCmd {
			t.Errorf("%s: command = %q, want %q", tc.name, got.Command, tc.wantCmd)
		}
		// JSON round-trip turns numbers into float64.
		if got.Value != tc.wantValue {
			t.Errorf("%s: value = %v (%T), want %v", tc.name, got.Value, got.Value, tc.wantValue)
		}
	}
}

func TestBackend_SendsToken(t *testing.T) {
	t.Parallel()
	srv := newCompanionServer(t)
	b := New(srv.URL, "secret-token")

	if err := b.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	srv.mu.Lock()
	auth := srv.auths[0]
	srv.mu.Unlock()
	if auth != "secret-token" {
		t.Errorf("Authorization = %q, want secret-token", auth)
	}
}

func TestBackend_MissingToken(t *testing.T) {
	t.Parallel()
	b := New("http://localhost:1", "")

	err := b.Play(context.Background())
	if !errors.Is(err, media.ErrNotConfigured) {
		t.Errorf("Play error = %v, want ErrNotConfigured", err)
	}
	if err := b.Ping(context.Background()); !errors.Is(err, media.ErrNotConfigured) {
		t.Errorf("Ping error = %v, want ErrNotConfigured", err)
	}
}

func TestBackend_NonOKStatus(t *testing.T) {
	t.Parallel()
	srv := newCompanionServer(t)
	srv.setStatus(http.StatusUnauthorized)
	b := New(srv.URL, "stale-token")

	if err := b.Play(context.Background()); err == nil {
		t.Error("Play: expected error on 401")
	}
	if err := b.Ping(context.Background()); err == nil {
		t.Error("Ping: expected error on 401")
	}
}

func TestBackend_VolumeTracking(t *testing.T) {
	t.Parallel()
	srv := newCompanionServer(t)
	b := New(srv.URL, "secret-token")
	ctx := context.Background()

	if v, _ := b.Volume(ctx); v != defaultVolume {
		t.Errorf("initial volume = %d, want %d", v, defaultVolume)
	}
	if err := b.SetVolume(ctx, 80); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if v, _ := b.Volume(ctx); v != 80 {
		t.Errorf("volume = %d, want 80", v)
	}

	if err := b.SetVolume(ctx, 101); err == nil {
		t.Error("SetVolume(101): expected range error")
	}
	if err := b.SetVolume(ctx, -1); err == nil {
		t.Error("SetVolume(-1): expected range error")
	}
}

func TestBackend_VolumeNotUpdatedOnFailure(t *testing.T) {
	t.Parallel()
	srv := newCompanionServer(t)
	b := New(srv.URL, "secret-token")
	ctx := context.Background()

	if err := b.SetVolume(ctx, 80); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	srv.setStatus(http.StatusInternalServerError)
	if err := b.SetVolume(ctx, 30); err == nil {
		t.Fatal("SetVolume: expected error on 500")
	}
	if v, _ := b.Volume(ctx); v != 80 {
		t.Errorf("volume = %d, want 80 (failed write must not stick)", v)
	}
}

func TestBackend_Ping(t *testing.T) {
	t.Parallel()
	srv := newCompanionServer(t)
	b := New(srv.URL, "secret-token")

	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
