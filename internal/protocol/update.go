package protocol

import (
	"fmt"

	"github.com/flailbot/flailbot/internal/wire"
	"github.com/flailbot/flailbot/internal/world"
)

// decodeRecords walks the id-prefixed record run of an entity-info frame.
// The run ends at a zero id, optionally followed by the king record.
func (p *Parser) decodeRecords(c *wire.Cursor, v world.Version) error {
	for {
		id, err := c.ReadU16()
		if err != nil {
			return err
		}
		if id == 0 {
			return p.decodeKing(c)
		}

		mode, err := c.ReadU8()
		if err != nil {
			return err
		}

		switch mode {
		case ModePartial:
			err = p.decodePartial(c, id, v)
		case ModeFull:
			err = p.decodeFull(c, id, v)
		case ModeDelete:
			err = p.decodeDelete(c, id)
		default:
			p.skip(id, fmt.Errorf("mode %d: %w", mode, ErrMalformedRecord))
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (p *Parser) decodePartial(c *wire.Cursor, id uint16, v world.Version) error {
	e, ok := p.table.Get(id)
	if !ok {
		p.skip(id, fmt.Errorf("partial: %w", ErrDanglingReference))
		return nil
	}
	if err := e.DecodePartial(c, v); err != nil {
		return err
	}
	p.sink.OnUpdateEntity(e)
	return nil
}

// decodeFull creates or re-initialises an entity. The entity is stored
// only once its body decoded completely.
func (p *Parser) decodeFull(c *wire.Cursor, id uint16, v world.Version) error {
	class, err := c.ReadU8()
	if err != nil {
		return err
	}
	sub, err := c.ReadU8()
	if err != nil {
		return err
	}
	nick, err := c.ReadString()
	if err != nil {
		return err
	}

	e, err := world.New(id, class, sub, nick)
	if err != nil {
		p.skip(id, fmt.Errorf("full: %w", err))
		return nil
	}
	if err := e.DecodeFull(c, v); err != nil {
		return err
	}
	p.table.Put(e)
	p.sink.OnCreateEntity(e)
	return nil
}

// decodeDelete finalises an entity, reports it and drops it from the table.
func (p *Parser) decodeDelete(c *wire.Cursor, id uint16) error {
	killer, err := c.ReadU16()
	if err != nil {
		return err
	}
	reason, err := c.ReadU8()
	if err != nil {
		return err
	}

	e, ok := p.table.Get(id)
	if !ok {
		p.skip(id, fmt.Errorf("delete: %w", ErrDanglingReference))
		return nil
	}
	if err := e.DecodeDelete(c); err != nil {
		return err
	}
	e.KilledByID = killer
	e.KillReason = reason
	p.sink.OnDeleteEntity(e)
	p.table.Remove(id)
	return nil
}

// decodeKing reads the trailing king record, if any.
func (p *Parser) decodeKing(c *wire.Cursor) error {
	if c.Remaining() == 0 {
		return nil
	}
	id, err := c.ReadU16()
	if err != nil {
		return err
	}
	if id == 0 {
		return nil
	}
	x, err := c.ReadF32()
	if err != nil {
		return err
	}
	y, err := c.ReadF32()
	if err != nil {
		return err
	}
	p.kingID = id
	p.sink.OnKing(id, float64(x)*world.GameScale, -float64(y)*world.GameScale)
	return nil
}

// skip logs and counts a recoverable record condition.
func (p *Parser) skip(id uint16, err error) {
	p.observer.RecordSkipped(err)
	p.logger.Warn().Err(err).Uint16("entity", id).Msg("record skipped")
}
