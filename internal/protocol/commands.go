package protocol

import "github.com/flailbot/flailbot/internal/wire"

// Input flag bits.
const (
	InputThrottle byte = 0x01
)

// BuildPing builds a keep-alive ping.
func BuildPing() []byte {
	return []byte{CmdPing}
}

// BuildHello builds the handshake announcing the client viewport.
func BuildHello() []byte {
	return wire.NewBuilder().
		WriteU8(CmdHello).
		WriteU16(ViewportWidth).
		WriteU16(ViewportHeight).
		Build()
}

// BuildEnterGame builds a request to spawn with the given nickname. The
// nickname is written as 16-bit code units followed by a zero unit.
func BuildEnterGame(nick string) []byte {
	return wire.NewBuilder().
		WriteU8(CmdEnterGame).
		WriteString(nick).
		Build()
}

// BuildLeave builds a request to leave the arena.
func BuildLeave() []byte {
	return []byte{CmdLeave}
}

// BuildInput builds a steering update. Angle is in radians.
func BuildInput(angle float64, throttle bool) []byte {
	var flags byte
	if throttle {
		flags |= InputThrottle
	}
	return wire.NewBuilder().
		WriteU8(CmdInput).
		WriteF64(angle).
		WriteU8(flags).
		Build()
}

// BuildClick builds a flail release/retract toggle.
func BuildClick(shooting bool) []byte {
	var v byte
	if shooting {
		v = 1
	}
	return []byte{CmdClick, v}
}
