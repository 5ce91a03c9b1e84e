package protocol

import (
	"fmt"

	"github.com/flailbot/flailbot/internal/events"
	"github.com/flailbot/flailbot/internal/wire"
	"github.com/flailbot/flailbot/internal/world"
)

// parseEvents reads tagged kill-feed entries until a zero tag.
func (p *Parser) parseEvents(c *wire.Cursor) error {
	for {
		tag, err := c.ReadU8()
		if err != nil {
			return err
		}
		if tag == 0 {
			return nil
		}

		switch tag {
		case EventDidKill, EventWasKilled:
			id, err := c.ReadU16()
			if err != nil {
				return err
			}
			nick, err := c.ReadString()
			if err != nil {
				return err
			}
			if tag == EventDidKill {
				p.logger.Debug().Uint16("victim", id).Str("nick", nick).Msg("kill")
				p.sink.OnKill(id, nick)
			} else {
				p.logger.Debug().Uint16("killer", id).Str("nick", nick).Msg("death")
				p.sink.OnDeath(id, nick)
			}
		default:
			p.observer.RecordSkipped(ErrUnknownEvent)
			p.logger.Debug().Uint8("tag", tag).Msg("unknown event tag")
		}
	}
}

// parseLeaderboard reads (id, score, nick) rows until a zero id, then an
// optional trailing row for the viewer carrying (id, score, rank).
func (p *Parser) parseLeaderboard(c *wire.Cursor, v world.Version) error {
	var lb events.Leaderboard
	for {
		id, err := c.ReadU16()
		if err != nil {
			return err
		}
		if id == 0 {
			break
		}
		score, err := readScore(c, v)
		if err != nil {
			return err
		}
		nick, err := c.ReadString()
		if err != nil {
			return err
		}
		lb.Entries = append(lb.Entries, events.LeaderboardEntry{ID: id, Score: score, Nick: nick})
	}

	if c.Remaining() > 0 {
		id, err := c.ReadU16()
		if err != nil {
			return err
		}
		if id > 0 {
			score, err := readScore(c, v)
			if err != nil {
				return err
			}
			rank, err := c.ReadU16()
			if err != nil {
				return err
			}
			lb.Entries = append(lb.Entries, events.LeaderboardEntry{ID: id, Score: score, Rank: rank, Me: true})
		}
	}

	// A frame with no regular rows is not reported, even with a viewer row.
	if len(lb.Entries) == 0 || (len(lb.Entries) == 1 && lb.Entries[0].Me) {
		return nil
	}
	if last := &lb.Entries[len(lb.Entries)-1]; last.Me {
		lb.Me = last
	}
	p.sink.OnLeaderboard(lb)
	return nil
}

func readScore(c *wire.Cursor, v world.Version) (uint32, error) {
	if v == world.V1 {
		s, err := c.ReadU16()
		if err != nil {
			return 0, fmt.Errorf("score: %w", err)
		}
		return uint32(s), nil
	}
	s, err := c.ReadU32()
	if err != nil {
		return 0, fmt.Errorf("score: %w", err)
	}
	return s, nil
}
