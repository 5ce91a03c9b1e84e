package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/network"
	"github.com/flailbot/flailbot/internal/protocol"
	"github.com/flailbot/flailbot/internal/world"
)

const minReadTimeout = 30 * time.Second

// parseVersion maps a protocol_version setting to a pinned record layout.
// Auto returns zero so the parser derives the layout from the opcode.
func parseVersion(s string) (world.Version, error) {
	switch strings.ToLower(s) {
	case "", config.ProtocolAuto:
		return 0, nil
	case config.ProtocolV1:
		return world.V1, nil
	case config.ProtocolV2:
		return world.V2, nil
	}
	return 0, fmt.Errorf("unknown protocol version %q", s)
}

// parserOptions maps intents onto the parser's frame family toggles.
func parserOptions(cc config.ClientConfig) (protocol.Options, error) {
	v, err := parseVersion(cc.ProtocolVersion)
	if err != nil {
		return protocol.Options{}, err
	}
	return protocol.Options{
		Entities:    cc.HasIntent(config.IntentEntities),
		Events:      cc.HasIntent(config.IntentEvents),
		Leaderboard: cc.HasIntent(config.IntentLeaderboard),
		Minimap:     cc.HasIntent(config.IntentMinimap),
		Version:     v,
	}, nil
}

// clientOptions maps the client section onto transport options.
func clientOptions(cc config.ClientConfig) network.Options {
	opts := network.DefaultOptions()
	opts.Address = cc.Address
	if cc.Region != "" {
		opts.Region = cc.Region
	}
	opts.Secure = cc.Secure
	opts.Nick = cc.Nick
	opts.AutoPlay = cc.AutoPlay
	opts.Reconnect = cc.Reconnect.Enabled
	if cc.Reconnect.IntervalMs > 0 {
		opts.ReconnectInterval = cc.ReconnectInterval()
	}
	if cc.Reconnect.MaxAttempts > 0 {
		opts.MaxAttempts = cc.Reconnect.MaxAttempts
	}
	if cc.RespawnDelayMs > 0 {
		opts.RespawnDelay = cc.RespawnDelay()
	}
	// Reads only time out when keep-alive pings are on.
	opts.PingInterval = cc.PingInterval()
	if opts.PingInterval > 0 {
		opts.ReadTimeout = max(3*opts.PingInterval, minReadTimeout)
	}
	return opts
}
