// Package connector resolves a game server address from the matchmaking
// master server.
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	masterHost      = "master.brutal.io"
	gameDomain      = "brutal.io"
	insecurePortOff = 8080
	securePortOff   = 9080
	requestTimeout  = 10 * time.Second
	maxResponseSize = 1024
)

// ErrServerFull is returned when the master server has no room to hand out
// or the region link expired.
var ErrServerFull = errors.New("server is full or link has expired")

// Matchmaker asks the master server for a room in a region and turns the
// assignment into a websocket URL.
type Matchmaker struct {
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewMatchmaker creates a matchmaker. An empty baseURL targets the public
// master server, over https when the resolved address is secure.
func NewMatchmaker(baseURL string) *Matchmaker {
	return &Matchmaker{
		logger: log.With().Str("component", "matchmaker").Logger(),
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    2,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		baseURL: baseURL,
	}
}

// Resolve PUTs the region code to the master server and returns the game
// server URL it assigns.
func (m *Matchmaker) Resolve(ctx context.Context, region string, secure bool) (string, error) {
	url := m.baseURL
	if url == "" {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		url = scheme + "://" + masterHost
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, strings.NewReader(region))
	if err != nil {
		return "", fmt.Errorf("failed to create matchmaking request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("matchmaking request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read matchmaking response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("matchmaking returned status %d: %s", resp.StatusCode, string(body))
	}

	addr, err := ParseAssignment(string(body), secure)
	if err != nil {
		return "", err
	}
	m.logger.Info().
		Str("region", region).
		Bool("secure", secure).
		Str("address", addr).
		Msg("resolved game server")
	return addr, nil
}

// ParseAssignment converts a master server reply of the form
// "a.b.c.d:port/room!token" into a websocket URL. The room number selects
// the port; secure addresses go through the dashed host name.
func ParseAssignment(resp string, secure bool) (string, error) {
	resp = strings.TrimSpace(resp)
	if resp == "0" || resp == "1" {
		return "", ErrServerFull
	}

	host, rest, ok := strings.Cut(resp, ":")
	if !ok {
		return "", fmt.Errorf("malformed assignment %q", resp)
	}
	octets := strings.Split(host, ".")
	if len(octets) != 4 {
		return "", fmt.Errorf("malformed assignment host %q", host)
	}
	_, room, ok := strings.Cut(rest, "/")
	if !ok {
		return "", fmt.Errorf("malformed assignment %q: no room", resp)
	}
	room, _, _ = strings.Cut(room, "!")
	n, err := strconv.Atoi(room)
	if err != nil {
		return "", fmt.Errorf("malformed assignment room %q: %w", room, err)
	}

	if secure {
		return fmt.Sprintf("wss://%s.%s:%d", strings.Join(octets, "-"), gameDomain, n+securePortOff), nil
	}
	return fmt.Sprintf("ws://%s:%d", host, n+insecurePortOff), nil
}
