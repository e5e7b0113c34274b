package mpd_test

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/timbell/slimserver/internal/domain/player"
	"github.com/timbell/slimserver/internal/infra/mpd"
)

func testPlayer(t *testing.T) *player.Player {
	t.Helper()
	id, err := net.ParseMAC("00:04:20:03:04:e0")
	if err != nil {
		t.Fatalf("bad MAC: %v", err)
	}
	return player.New(id, 2.2)
}

func TestStreamSourceDeliversBody(t *testing.T) {
	audio := bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 256)

	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer server.Close()

	source := mpd.NewStreamSource(server.URL)

	body, err := source.OpenStream(testPlayer(t))
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer body.Close()

	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Errorf("expected %d stream bytes back, got %d", len(audio), len(got))
	}
	if gotUA == "" {
		t.Error("expected a User-Agent header on the stream request")
	}
}

func TestStreamSourceNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	source := mpd.NewStreamSource(server.URL)

	if _, err := source.OpenStream(testPlayer(t)); err == nil {
		t.Error("expected an error for a non-200 response")
	}
}

func TestStreamSourceUnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	source := mpd.NewStreamSource(url)

	if _, err := source.OpenStream(testPlayer(t)); err == nil {
		t.Error("expected an error when the stream server is down")
	}
}

func TestStreamSourceCustomClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	var used bool
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			used = true
			return http.DefaultTransport.RoundTrip(r)
		}),
	}
	source := mpd.NewStreamSource(server.URL, mpd.WithStreamHTTPClient(client))

	body, err := source.OpenStream(testPlayer(t))
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	body.Close()

	if !used {
		t.Error("expected the custom HTTP client to be used")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
