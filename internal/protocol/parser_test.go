package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flailbot/flailbot/internal/events"
	"github.com/flailbot/flailbot/internal/wire"
	"github.com/flailbot/flailbot/internal/world"
)

type call struct {
	name    string
	entity  *world.Entity
	id      uint32
	nick    string
	x, y    float64
	version uint8
	lb      events.Leaderboard
}

// recorder is a Sink that keeps every call in order.
type recorder struct {
	calls []call
}

func (r *recorder) add(c call) { r.calls = append(r.calls, c) }

func (r *recorder) OnOpen()                { r.add(call{name: "open"}) }
func (r *recorder) OnClose(reason string)  { r.add(call{name: "close", nick: reason}) }
func (r *recorder) OnMessage(frame []byte) { r.add(call{name: "message"}) }
func (r *recorder) OnMapConfig(version uint8, width, height float64) {
	r.add(call{name: "map", version: version, x: width, y: height})
}
func (r *recorder) OnEnterGame(id uint32)          { r.add(call{name: "enter", id: id}) }
func (r *recorder) OnCreateEntity(e *world.Entity) { r.add(call{name: "create", entity: e}) }
func (r *recorder) OnUpdateEntity(e *world.Entity) { r.add(call{name: "update", entity: e}) }
func (r *recorder) OnDeleteEntity(e *world.Entity) { r.add(call{name: "delete", entity: e}) }
func (r *recorder) OnKing(id uint16, x, y float64) {
	r.add(call{name: "king", id: uint32(id), x: x, y: y})
}
func (r *recorder) OnKill(id uint16, nick string) {
	r.add(call{name: "kill", id: uint32(id), nick: nick})
}
func (r *recorder) OnDeath(id uint16, nick string) {
	r.add(call{name: "death", id: uint32(id), nick: nick})
}
func (r *recorder) OnLeaderboard(lb events.Leaderboard) { r.add(call{name: "leaderboard", lb: lb}) }
func (r *recorder) OnPong()                             { r.add(call{name: "pong"}) }

func (r *recorder) names() []string {
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.name)
	}
	return out
}

var _ events.Sink = (*recorder)(nil)

type countingObserver struct {
	decoded, failed, skipped int
	lastSkip                 error
	size                     int
}

func (o *countingObserver) FrameDecoded(byte) { o.decoded++ }
func (o *countingObserver) FrameFailed(byte)  { o.failed++ }
func (o *countingObserver) RecordSkipped(err error) {
	o.skipped++
	o.lastSkip = err
}
func (o *countingObserver) TableSize(n int) { o.size = n }

func newTestParser(opts Options) (*Parser, *recorder) {
	rec := &recorder{}
	return NewParser(rec, opts), rec
}

// atomFull appends a full atom record.
func atomFull(b *wire.Builder, id, energy uint16, x, y, angle float32, hue uint16) *wire.Builder {
	return b.WriteU16(id).WriteU8(ModeFull).
		WriteU8(world.ClassItem).WriteU8(world.ItemAtom).WriteString("").
		WriteU16(energy).WriteF32(x).WriteF32(y).WriteF32(angle).
		WriteU16(hue)
}

// atomPartial appends a partial atom record.
func atomPartial(b *wire.Builder, id, energy uint16, x, y, angle float32) *wire.Builder {
	return b.WriteU16(id).WriteU8(ModePartial).
		WriteU16(energy).WriteF32(x).WriteF32(y).WriteF32(angle)
}

// shipFull appends a full ship record with two chain segments. flags is
// written as one byte for V2 and two bytes otherwise.
func shipFull(b *wire.Builder, id uint16, nick string, v world.Version, flags uint16) *wire.Builder {
	b.WriteU16(id).WriteU8(ModeFull).
		WriteU8(world.ClassPlayer).WriteU8(0).WriteString(nick).
		WriteU8(7).
		WriteF32(1).WriteF32(2).WriteF32(0.5).
		WriteU8(2).
		WriteF32(3).WriteF32(4).
		WriteF32(5).WriteF32(6).
		WriteF32(7).WriteF32(8).WriteF32(0.25).WriteU32(5000)
	if v == world.V2 {
		b.WriteU8(uint8(flags))
	} else {
		b.WriteU16(flags)
		if flags&world.FlagRedFlailDeployed != 0 {
			b.WriteU8(9)
		}
	}
	return b.WriteU16(200)
}

func TestParseSingleFullAtomWithoutKing(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())
	b := wire.NewBuilder().WriteU8(OpEntityInfoV1)
	atomFull(b, 12, 300, 1.5, 2, 0.5, 40)
	b.WriteU16(0)

	require.NoError(t, p.Parse(b.Build()))

	require.Equal(t, []string{"create"}, rec.names())
	e := rec.calls[0].entity
	assert.Equal(t, uint16(12), e.ID)
	assert.Equal(t, world.KindAtom, e.Kind())
	assert.Equal(t, 15.0, e.X)
	assert.Equal(t, -20.0, e.Y)
	assert.Equal(t, uint16(40), e.Hue)
	assert.Equal(t, 1, p.Table().Len())
	assert.Zero(t, p.KingID())
}

func TestParseShipNickOutsideBMP(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())
	b := wire.NewBuilder().WriteU8(OpEntityInfoV1)
	shipFull(b, 4, "😀bot", world.V1, 0)
	atomFull(b, 5, 10, 0, 0, 0, 1)
	b.WriteU16(0)

	require.NoError(t, p.Parse(b.Build()))

	require.Equal(t, []string{"create", "create"}, rec.names())
	assert.Equal(t, "😀bot", rec.calls[0].entity.Nick)
	assert.Equal(t, uint16(5), rec.calls[1].entity.ID)
}

func TestParseKingAfterTerminator(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())
	frame := wire.NewBuilder().
		WriteU8(OpEntityInfoV1).
		WriteU16(0).
		WriteU16(42).WriteF32(2.5).WriteF32(-4).
		Build()

	require.NoError(t, p.Parse(frame))

	require.Equal(t, []string{"king"}, rec.names())
	assert.Equal(t, uint32(42), rec.calls[0].id)
	assert.Equal(t, 25.0, rec.calls[0].x)
	assert.Equal(t, 40.0, rec.calls[0].y)
	assert.Equal(t, uint16(42), p.KingID())
}

func TestParseZeroKingIDEmitsNothing(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())
	frame := wire.NewBuilder().WriteU8(OpEntityInfoV1).WriteU16(0).WriteU16(0).Build()

	require.NoError(t, p.Parse(frame))
	assert.Empty(t, rec.calls)
}

func TestParseFullThenPartialKeepsIdentity(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())

	b := wire.NewBuilder().WriteU8(OpEntityInfoV1)
	atomFull(b, 3, 100, 1, 1, 0, 77).WriteU16(0)
	require.NoError(t, p.Parse(b.Build()))

	b = wire.NewBuilder().WriteU8(OpEntityInfoV1)
	atomPartial(b, 3, 50, 2, 3, 1).WriteU16(0)
	require.NoError(t, p.Parse(b.Build()))

	require.Equal(t, []string{"create", "update"}, rec.names())
	e := rec.calls[1].entity
	assert.Same(t, rec.calls[0].entity, e)
	assert.Equal(t, uint16(3), e.ID)
	assert.Equal(t, world.KindAtom, e.Kind())
	assert.Equal(t, uint16(77), e.Hue, "partial records do not carry hue")
	assert.Equal(t, 20.0, e.X)
	assert.Equal(t, -30.0, e.Y)
	assert.True(t, e.CanInterpolate)
}

func TestParsePartialForUnknownIDLeavesTableAlone(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())
	obs := &countingObserver{}
	p.SetObserver(obs)

	b := wire.NewBuilder().WriteU8(OpEntityInfoV1)
	atomFull(b, 1, 10, 0, 0, 0, 0).WriteU16(0)
	require.NoError(t, p.Parse(b.Build()))
	require.Equal(t, 1, p.Table().Len())

	frame := wire.NewBuilder().
		WriteU8(OpEntityInfoV1).
		WriteU16(99).WriteU8(ModePartial).
		WriteU16(0).
		Build()
	require.NoError(t, p.Parse(frame))

	assert.Equal(t, 1, p.Table().Len())
	assert.Equal(t, []string{"create"}, rec.names())
	assert.Equal(t, 1, obs.skipped)
	assert.ErrorIs(t, obs.lastSkip, ErrDanglingReference)
}

func TestParseDeleteRemovesAfterEmission(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())

	b := wire.NewBuilder().WriteU8(OpEntityInfoV1)
	atomFull(b, 4, 10, 1, 2, 0, 0)
	shipFull(b, 5, "bob", world.V1, 0)
	b.WriteU16(0)
	require.NoError(t, p.Parse(b.Build()))
	require.Equal(t, 2, p.Table().Len())

	frame := wire.NewBuilder().
		WriteU8(OpEntityInfoV1).
		WriteU16(4).WriteU8(ModeDelete).WriteU16(5).WriteU8(1).
		WriteU8(1). // grabbed
		WriteU16(5).WriteU8(ModeDelete).WriteU16(0).WriteU8(2).
		WriteU16(0).
		Build()
	require.NoError(t, p.Parse(frame))

	require.Equal(t, []string{"create", "create", "delete", "delete"}, rec.names())
	atom := rec.calls[2].entity
	assert.True(t, atom.BeingDeleted)
	assert.Equal(t, uint16(5), atom.KilledByID)
	assert.Equal(t, uint8(1), atom.KillReason)
	pickup := atom.Variant.(*world.Atom)
	assert.True(t, pickup.Grabbed)
	assert.Equal(t, 10.0, pickup.GrabX)
	assert.Equal(t, -20.0, pickup.GrabY)

	ship := rec.calls[3].entity
	assert.True(t, ship.BeingDeleted)
	assert.Equal(t, uint8(2), ship.KillReason)
	assert.Zero(t, p.Table().Len())
}

func TestParseDeleteForUnknownIDIsSkipped(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())
	frame := wire.NewBuilder().
		WriteU8(OpEntityInfoV1).
		WriteU16(8).WriteU8(ModeDelete).WriteU16(1).WriteU8(0).
		WriteU16(0).
		Build()

	require.NoError(t, p.Parse(frame))
	assert.Empty(t, rec.calls)
}

func TestParseUnknownEntityTypeContinues(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())
	obs := &countingObserver{}
	p.SetObserver(obs)

	b := wire.NewBuilder().
		WriteU8(OpEntityInfoV1).
		WriteU16(5).WriteU8(ModeFull).WriteU8(9).WriteU8(0).WriteString("")
	atomFull(b, 6, 1, 0, 0, 0, 0).WriteU16(0)

	require.NoError(t, p.Parse(b.Build()))

	require.Equal(t, []string{"create"}, rec.names())
	assert.Equal(t, uint16(6), rec.calls[0].entity.ID)
	_, ok := p.Table().Get(5)
	assert.False(t, ok)
	assert.ErrorIs(t, obs.lastSkip, world.ErrUnknownEntityType)
}

func TestParseMalformedModeEndsRun(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())
	obs := &countingObserver{}
	p.SetObserver(obs)

	b := wire.NewBuilder().WriteU8(OpEntityInfoV1)
	atomFull(b, 1, 1, 0, 0, 0, 0)
	b.WriteU16(2).WriteU8(7)
	atomFull(b, 3, 1, 0, 0, 0, 0).WriteU16(0)

	require.NoError(t, p.Parse(b.Build()))

	assert.Equal(t, []string{"create"}, rec.names())
	assert.Equal(t, 1, p.Table().Len())
	assert.ErrorIs(t, obs.lastSkip, ErrMalformedRecord)
}

func TestParseTruncatedFrameKeepsEarlierRecords(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())
	obs := &countingObserver{}
	p.SetObserver(obs)

	b := wire.NewBuilder().WriteU8(OpEntityInfoV1)
	atomFull(b, 1, 1, 0, 0, 0, 0)
	b.WriteU16(2).WriteU8(ModeFull).WriteU8(world.ClassItem).WriteU8(world.ItemAtom).WriteString("").
		WriteU16(5).WriteF32(1)

	err := p.Parse(b.Build())
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrOutOfBounds)

	assert.Equal(t, []string{"create"}, rec.names())
	assert.Equal(t, 1, p.Table().Len())
	_, ok := p.Table().Get(2)
	assert.False(t, ok)
	assert.Equal(t, 1, obs.failed)

	// The parser stays usable.
	b = wire.NewBuilder().WriteU8(OpEntityInfoV1)
	atomPartial(b, 1, 2, 1, 1, 0).WriteU16(0)
	require.NoError(t, p.Parse(b.Build()))
	assert.Equal(t, []string{"create", "update"}, rec.names())
}

func TestParseShipRecordsPerVersion(t *testing.T) {
	tests := []struct {
		name  string
		op    byte
		pin   world.Version
		write world.Version
		flags uint16
	}{
		{name: "v1 opcode", op: OpEntityInfoV1, write: world.V1, flags: world.FlagFlailAttached},
		{name: "v1 red flail countdown", op: OpEntityInfoV1, write: world.V1, flags: world.FlagRedFlail | world.FlagRedFlailDeployed},
		{name: "v2 opcode", op: OpEntityInfoV2, write: world.V2, flags: world.FlagFlailAttached | world.FlagInvulnerable},
		{name: "pinned v1 on v2 opcode", op: OpEntityInfoV2, pin: world.V1, write: world.V1, flags: world.FlagFlailAttached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Version = tt.pin
			p, rec := newTestParser(opts)

			b := wire.NewBuilder().WriteU8(tt.op)
			shipFull(b, 9, "ann", tt.write, tt.flags)
			b.WriteU16(0).WriteU16(9).WriteF32(1).WriteF32(1)

			require.NoError(t, p.Parse(b.Build()))
			require.Equal(t, []string{"create", "king"}, rec.names())

			ship := rec.calls[0].entity.Ship()
			require.NotNil(t, ship)
			assert.Equal(t, "ann", rec.calls[0].entity.Nick)
			assert.Len(t, ship.Segments, 2)
			assert.Equal(t, uint16(200), rec.calls[0].entity.Hue)
			assert.Equal(t, uint32(5000), ship.Flail.Energy)
			assert.Equal(t, tt.flags&world.FlagFlailAttached != 0, ship.Flags.Attached)
		})
	}
}

func TestParseEntitiesToggle(t *testing.T) {
	opts := DefaultOptions()
	opts.Entities = false
	p, rec := newTestParser(opts)

	b := wire.NewBuilder().WriteU8(OpEntityInfoV1)
	atomFull(b, 1, 1, 0, 0, 0, 0).WriteU16(0)

	require.NoError(t, p.Parse(b.Build()))
	assert.Empty(t, rec.calls)
	assert.Zero(t, p.Table().Len())
}

func TestParseEnteredGameAndPong(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())

	require.NoError(t, p.Parse(wire.NewBuilder().WriteU8(OpEnteredGame).WriteU32(1234).Build()))
	require.NoError(t, p.Parse([]byte{OpPong}))

	require.Equal(t, []string{"enter", "pong"}, rec.names())
	assert.Equal(t, uint32(1234), rec.calls[0].id)
	assert.Equal(t, uint32(1234), p.SelfID())
}

func TestParseMapConfig(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())
	frame := wire.NewBuilder().WriteU8(OpMapConfig).WriteF32(400).WriteF32(250.5).WriteU8(3).Build()

	require.NoError(t, p.Parse(frame))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "map", rec.calls[0].name)
	assert.Equal(t, uint8(3), rec.calls[0].version)
	assert.Equal(t, 4000.0, rec.calls[0].x)
	assert.Equal(t, 2505.0, rec.calls[0].y)
}

func TestParseIgnoresUnknownOpcodeAndMinimap(t *testing.T) {
	p, rec := newTestParser(DefaultOptions())

	assert.NoError(t, p.Parse([]byte{0x7F, 1, 2, 3}))
	assert.NoError(t, p.Parse([]byte{OpMinimap, 1, 2, 3}))
	assert.Empty(t, rec.calls)
}

func TestParseEmptyFrame(t *testing.T) {
	p, _ := newTestParser(DefaultOptions())
	assert.ErrorIs(t, p.Parse(nil), wire.ErrOutOfBounds)
}

func TestParseReset(t *testing.T) {
	p, _ := newTestParser(DefaultOptions())
	b := wire.NewBuilder().WriteU8(OpEntityInfoV1)
	atomFull(b, 1, 1, 0, 0, 0, 0).WriteU16(0).WriteU16(1).WriteF32(0).WriteF32(0)
	require.NoError(t, p.Parse(b.Build()))
	require.NoError(t, p.Parse(wire.NewBuilder().WriteU8(OpEnteredGame).WriteU32(5).Build()))

	p.Reset()

	assert.Zero(t, p.Table().Len())
	assert.Zero(t, p.SelfID())
	assert.Zero(t, p.KingID())
}

func TestOpcodeName(t *testing.T) {
	assert.Equal(t, "entity_info_v1", OpcodeName(OpEntityInfoV1))
	assert.Equal(t, "leaderboard_v2", OpcodeName(OpLeaderboard2))
	assert.Equal(t, "unknown", OpcodeName(0x42))
}
