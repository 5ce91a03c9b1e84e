package protocol

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flailbot/flailbot/internal/events"
	"github.com/flailbot/flailbot/internal/wire"
	"github.com/flailbot/flailbot/internal/world"
)

// Options selects which frame families the parser decodes. Frames whose
// family is switched off are acknowledged and dropped.
type Options struct {
	Entities    bool
	Events      bool
	Leaderboard bool
	Minimap     bool

	// Version pins the record layout. Zero derives it from the opcode.
	Version world.Version
}

// DefaultOptions decodes everything except the minimap.
func DefaultOptions() Options {
	return Options{Entities: true, Events: true, Leaderboard: true}
}

// Observer receives decode statistics. telemetry.Metrics implements it.
type Observer interface {
	FrameDecoded(opcode byte)
	FrameFailed(opcode byte)
	RecordSkipped(reason error)
	TableSize(n int)
}

type nopObserver struct{}

func (nopObserver) FrameDecoded(byte)   {}
func (nopObserver) FrameFailed(byte)    {}
func (nopObserver) RecordSkipped(error) {}
func (nopObserver) TableSize(int)       {}

// Parser decodes inbound frames into sink calls and keeps the entity table
// current. It is not safe for concurrent use: frames must be fed one at a
// time from a single goroutine.
type Parser struct {
	logger   zerolog.Logger
	sink     events.Sink
	table    *world.Table
	opts     Options
	observer Observer

	selfID uint32
	kingID uint16
}

// NewParser creates a parser that reports to sink.
func NewParser(sink events.Sink, opts Options) *Parser {
	return &Parser{
		logger:   log.With().Str("component", "parser").Logger(),
		sink:     sink,
		table:    world.NewTable(),
		opts:     opts,
		observer: nopObserver{},
	}
}

// SetObserver installs a statistics observer.
func (p *Parser) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	p.observer = o
}

// Options returns the active options.
func (p *Parser) Options() Options {
	return p.opts
}

// SetOptions replaces the active options.
func (p *Parser) SetOptions(opts Options) {
	p.opts = opts
}

// Table returns the live entity table. Callers must not mutate it.
func (p *Parser) Table() *world.Table {
	return p.table
}

// SelfID returns the id from the last entered-game frame.
func (p *Parser) SelfID() uint32 {
	return p.selfID
}

// KingID returns the id from the last king record, or zero.
func (p *Parser) KingID() uint16 {
	return p.kingID
}

// Reset drops all session state. The transport calls it on reconnect.
func (p *Parser) Reset() {
	p.table.Clear()
	p.selfID = 0
	p.kingID = 0
	p.observer.TableSize(0)
}

// Parse decodes one frame. A returned error wraps wire.ErrOutOfBounds and
// means the frame was truncated; records decoded before the truncation stay
// applied and the parser remains usable.
func (p *Parser) Parse(frame []byte) error {
	c := wire.NewCursor(frame, 0)
	op, err := c.ReadU8()
	if err != nil {
		return fmt.Errorf("read opcode: %w", err)
	}

	switch op {
	case OpPong:
		p.sink.OnPong()
	case OpEnteredGame:
		err = p.parseEnteredGame(c)
	case OpEntityInfoV1, OpEntityInfoV2:
		if !p.opts.Entities {
			break
		}
		err = p.decodeRecords(c, p.version(op))
		p.observer.TableSize(p.table.Len())
	case OpMapConfig:
		err = p.parseMapConfig(c)
	case OpEvents:
		if !p.opts.Events {
			break
		}
		err = p.parseEvents(c)
	case OpLeaderboard, OpLeaderboard2:
		if !p.opts.Leaderboard {
			break
		}
		err = p.parseLeaderboard(c, p.version(op))
	case OpMinimap:
		p.logger.Trace().Int("size", len(frame)).Msg("minimap frame ignored")
	default:
		p.logger.Debug().
			Uint8("opcode", op).
			Int("size", len(frame)).
			Msg("unknown opcode")
		return nil
	}

	if err != nil {
		p.observer.FrameFailed(op)
		p.logger.Warn().
			Err(err).
			Str("frame", OpcodeName(op)).
			Int("size", len(frame)).
			Msg("frame decode aborted")
		return fmt.Errorf("%s frame: %w", OpcodeName(op), err)
	}
	p.observer.FrameDecoded(op)
	return nil
}

// version picks the record layout for op unless the options pin one.
func (p *Parser) version(op byte) world.Version {
	if p.opts.Version != 0 {
		return p.opts.Version
	}
	switch op {
	case OpEntityInfoV2, OpLeaderboard2:
		return world.V2
	default:
		return world.V1
	}
}

func (p *Parser) parseEnteredGame(c *wire.Cursor) error {
	id, err := c.ReadU32()
	if err != nil {
		return err
	}
	p.selfID = id
	p.logger.Info().Uint32("id", id).Msg("entered game")
	p.sink.OnEnterGame(id)
	return nil
}

// parseMapConfig reads the arena size (scaled) and the map version.
func (p *Parser) parseMapConfig(c *wire.Cursor) error {
	w, err := c.ReadF32()
	if err != nil {
		return err
	}
	h, err := c.ReadF32()
	if err != nil {
		return err
	}
	version, err := c.ReadU8()
	if err != nil {
		return err
	}
	width := float64(w) * world.GameScale
	height := float64(h) * world.GameScale
	p.logger.Debug().
		Float64("width", width).
		Float64("height", height).
		Uint8("version", version).
		Msg("map config")
	p.sink.OnMapConfig(version, width, height)
	return nil
}
