// Package protocol implements the frame dispatcher and decoders for the
// game server's binary websocket protocol, and the encoders for the
// commands a client sends back. Every frame starts with a one-byte opcode
// and all multi-byte fields are little-endian.
package protocol

import "errors"

// Opcodes for frames received from the game server.
const (
	OpPong         byte = 0x00 // Reply to a ping, no payload
	OpMapConfig    byte = 0xA0 // Arena size and map version
	OpEnteredGame  byte = 0xA1 // Server-assigned id of this client
	OpEvents       byte = 0xA4 // Kill feed
	OpLeaderboard  byte = 0xA5 // Leaderboard with 16-bit scores
	OpMinimap      byte = 0xA6 // Minimap, not decoded
	OpEntityInfoV2 byte = 0xB3 // Record run with 8-bit ship flags
	OpEntityInfoV1 byte = 0xB4 // Record run with 16-bit ship flags
	OpLeaderboard2 byte = 0xB5 // Leaderboard with 32-bit scores
)

// Opcodes for frames sent to the game server.
const (
	CmdPing       byte = 0x00
	CmdHello      byte = 0x01
	CmdHelloBot   byte = 0x02
	CmdEnterGame  byte = 0x03
	CmdLeave      byte = 0x04
	CmdInput      byte = 0x05
	CmdInputBrake byte = 0x06
	CmdAreaUpdate byte = 0x07
	CmdClick      byte = 0x08
)

// Record modes inside an entity-info frame.
const (
	ModePartial byte = 0
	ModeFull    byte = 1
	ModeDelete  byte = 2
)

// Tags inside an events frame. A zero tag ends the stream.
const (
	EventDidKill   byte = 1
	EventWasKilled byte = 2
)

// Viewport the client announces in its hello, in world units / 10.
const (
	ViewportWidth  uint16 = 168
	ViewportHeight uint16 = 105
)

var (
	// ErrDanglingReference is reported when a partial or delete record
	// names an id that is not in the entity table.
	ErrDanglingReference = errors.New("record references unknown entity")

	// ErrMalformedRecord is reported when a record carries a mode byte
	// outside {partial, full, delete}.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnknownEvent is reported for an events-frame tag with no decoder.
	ErrUnknownEvent = errors.New("unknown event tag")
)

// OpcodeName returns a short label for an inbound opcode, used in logs and
// metric labels.
func OpcodeName(op byte) string {
	switch op {
	case OpPong:
		return "pong"
	case OpMapConfig:
		return "map_config"
	case OpEnteredGame:
		return "entered_game"
	case OpEvents:
		return "events"
	case OpLeaderboard:
		return "leaderboard_v1"
	case OpMinimap:
		return "minimap"
	case OpEntityInfoV2:
		return "entity_info_v2"
	case OpEntityInfoV1:
		return "entity_info_v1"
	case OpLeaderboard2:
		return "leaderboard_v2"
	default:
		return "unknown"
	}
}
