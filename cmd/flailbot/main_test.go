package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/protocol"
	"github.com/flailbot/flailbot/internal/wire"
	"github.com/flailbot/flailbot/internal/world"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want world.Version
		ok   bool
	}{
		{"", 0, true},
		{"auto", 0, true},
		{"V1", world.V1, true},
		{"v2", world.V2, true},
		{"v3", 0, false},
	}
	for _, tt := range tests {
		got, err := parseVersion(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParserOptionsFromIntents(t *testing.T) {
	cc := config.DefaultConfig().Client
	cc.Intents = []string{config.IntentEntities, config.IntentMinimap}
	cc.ProtocolVersion = config.ProtocolV2

	opts, err := parserOptions(cc)
	require.NoError(t, err)
	assert.Equal(t, protocol.Options{Entities: true, Minimap: true, Version: world.V2}, opts)

	cc.ProtocolVersion = "v9"
	_, err = parserOptions(cc)
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	cc := config.DefaultConfig().Client
	cc.Address = "ws://1.2.3.4:8081"
	cc.Region = ""
	cc.Nick = "bot"
	cc.AutoPlay = true
	cc.Reconnect = config.ReconnectConfig{Enabled: true, IntervalMs: 250, MaxAttempts: 3}
	cc.RespawnDelayMs = 0
	cc.PingIntervalMs = 5000

	opts := clientOptions(cc)
	assert.Equal(t, "ws://1.2.3.4:8081", opts.Address)
	assert.Equal(t, "CH", opts.Region)
	assert.Equal(t, "bot", opts.Nick)
	assert.True(t, opts.AutoPlay)
	assert.Equal(t, 250*time.Millisecond, opts.ReconnectInterval)
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, opts.RespawnDelay)
	assert.Equal(t, 5*time.Second, opts.PingInterval)
	assert.Equal(t, minReadTimeout, opts.ReadTimeout)

	cc.PingIntervalMs = 0
	assert.Zero(t, clientOptions(cc).ReadTimeout)
}

func TestParseHex(t *testing.T) {
	for _, in := range []string{"a0 00 01", "A0:00:01", "0xa00001", "a00001"} {
		b, err := parseHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, []byte{0xa0, 0x00, 0x01}, b, in)
	}
	_, err := parseHex("zz")
	assert.Error(t, err)
}

func TestCollectFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.txt")
	require.NoError(t, os.WriteFile(path, []byte("# capture\n00\n\na1 00 00 00 07\n"), 0644))

	frames, err := collectFrames([]string{"a4 00"}, path, nil)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, []byte{0xa4, 0x00}, frames[0])
	assert.Equal(t, []byte{0x00}, frames[1])

	frames, err = collectFrames(nil, "-", strings.NewReader("a0\n"))
	require.NoError(t, err)
	assert.Len(t, frames, 1)

	_, err = collectFrames([]string{"nothex"}, "", nil)
	assert.ErrorContains(t, err, "frame 1")
}

func TestDecodeFrames(t *testing.T) {
	mapFrame := wire.NewBuilder().WriteU8(protocol.OpMapConfig).
		WriteF32(50).WriteF32(40).WriteU8(2).Build()

	entityFrame := wire.NewBuilder().WriteU8(protocol.OpEntityInfoV1).
		WriteU16(12).WriteU8(protocol.ModeFull).
		WriteU8(world.ClassItem).WriteU8(world.ItemAtom).WriteString("").
		WriteU16(300).WriteF32(1.5).WriteF32(2).WriteF32(0.5).WriteU16(40).
		WriteU16(0).
		Build()

	killFrame := wire.NewBuilder().WriteU8(protocol.OpEvents).
		WriteU8(protocol.EventDidKill).WriteU16(9).WriteString("victim").
		WriteU8(0).
		Build()

	lbFrame := wire.NewBuilder().WriteU8(protocol.OpLeaderboard).
		WriteU16(4).WriteU16(120).WriteString("leader").
		WriteU16(0).
		Build()

	var out bytes.Buffer
	frames := [][]byte{mapFrame, entityFrame, killFrame, lbFrame, {protocol.OpEntityInfoV1, 0x01}, {}}
	require.NoError(t, decodeFrames(&out, frames, protocol.DefaultOptions(), true))

	text := out.String()
	assert.Contains(t, text, "6 frames, 2 failed")
	assert.Contains(t, text, "frame 5 (entity_info_v1)")
	assert.Contains(t, text, "frame 6 (empty)")
	assert.Contains(t, text, "v2 500x400")
	assert.Contains(t, text, `id=9 "victim"`)
	assert.Contains(t, text, "Entities (1 live)")
	assert.Contains(t, text, "atom")
	assert.Contains(t, text, "leader")
}

func TestDecodeCommand(t *testing.T) {
	frame := wire.NewBuilder().WriteU8(protocol.OpEnteredGame).WriteU32(77).Build()

	cmd := decodeCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--world=false", hex.EncodeToString(frame)})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "id=77")
	assert.NotContains(t, out.String(), "Entities")

	cmd = decodeCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.ErrorContains(t, cmd.Execute(), "no frames")
}

func TestVersionCommand(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}
