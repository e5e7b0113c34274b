package mpd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/timbell/slimserver/internal/domain/player"
	"github.com/timbell/slimserver/internal/version"
)

// StreamSource pulls MPD's httpd output over HTTP for delivery to the
// players. Each player session gets its own connection.
type StreamSource struct {
	url        string
	userAgent  string
	httpClient *http.Client
}

// StreamOption is a functional option for configuring the stream source.
type StreamOption func(*StreamSource)

// WithStreamUserAgent sets a custom User-Agent header.
func WithStreamUserAgent(ua string) StreamOption {
	return func(s *StreamSource) {
		s.userAgent = ua
	}
}

// WithStreamHTTPClient sets a custom HTTP client.
func WithStreamHTTPClient(client *http.Client) StreamOption {
	return func(s *StreamSource) {
		s.httpClient = client
	}
}

// NewStreamSource creates a stream source for the given URL.
func NewStreamSource(url string, opts ...StreamOption) *StreamSource {
	s := &StreamSource{
		url:       url,
		userAgent: version.Name + "/" + version.Version,
		// No client timeout: the response body is an endless stream
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// OpenStream connects to the stream. The caller owns the returned body
// and must close it to end the session.
func (s *StreamSource) OpenStream(p *player.Player) (io.ReadCloser, error) {
	req, err := http.NewRequest(http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	log.Info().
		Str("url", s.url).
		Str("player", p.ID().String()).
		Msg("Stream opened")
	return resp.Body, nil
}
