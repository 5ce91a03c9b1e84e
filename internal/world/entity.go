// Package world holds the client-side model of server-asserted game state:
// the entity variants, their wire decoders, the class/subclass registry and
// the id-indexed entity table.
package world

import (
	"fmt"

	"github.com/flailbot/flailbot/internal/wire"
)

// GameScale converts server units to client units.
const GameScale = 10

// Version selects the entity-info and leaderboard record layouts.
type Version uint8

const (
	V1 Version = iota + 1
	V2
)

// String returns the string representation of Version.
func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unknown"
	}
}

// Kind identifies which variant an entity is. It never changes after creation.
type Kind uint8

const (
	KindShip Kind = iota + 1
	KindCollider
	KindAtom
	KindEnergy
	KindTri
	KindBoundary
	KindRedFlail
)

var kindStrings = map[Kind]string{
	KindShip:     "ship",
	KindCollider: "collider",
	KindAtom:     "atom",
	KindEnergy:   "energy",
	KindTri:      "tri",
	KindBoundary: "boundary",
	KindRedFlail: "red_flail",
}

// String returns the string representation of Kind.
func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalJSON serializes Kind as a JSON string (e.g. "ship").
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// Point is a position in client units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Variant is the closed set of per-kind entity state:
// *Ship, *Collider, *Atom, *Energy, *Tri, *Boundary and *RedFlailPowerup.
type Variant interface {
	Kind() Kind
	isVariant()
}

// Entity is one live server entity. Attributes common to every variant live
// here; variant state lives behind Variant.
type Entity struct {
	ID       uint16 `json:"id"`
	Class    uint8  `json:"class"`
	SubClass uint8  `json:"sub_class"`
	Nick     string `json:"nick,omitempty"`

	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
	Hue   uint16  `json:"hue"`

	BeingDeleted   bool   `json:"being_deleted"`
	KilledByID     uint16 `json:"killed_by_id,omitempty"`
	KillReason     uint8  `json:"kill_reason,omitempty"`
	CanInterpolate bool   `json:"can_interpolate"`

	Variant Variant `json:"state"`
}

// Kind returns the entity's variant kind.
func (e *Entity) Kind() Kind {
	return e.Variant.Kind()
}

// Ship returns the ship state, or nil when the entity is not a ship.
func (e *Entity) Ship() *Ship {
	s, _ := e.Variant.(*Ship)
	return s
}

// Collider returns the collider state, or nil when the entity is not a collider.
func (e *Entity) Collider() *Collider {
	c, _ := e.Variant.(*Collider)
	return c
}

// DecodeFull applies a full (creation) record body to the entity.
func (e *Entity) DecodeFull(c *wire.Cursor, v Version) error {
	return e.decode(c, v, true)
}

// DecodePartial applies an incremental record body to the entity.
func (e *Entity) DecodePartial(c *wire.Cursor, v Version) error {
	return e.decode(c, v, false)
}

func (e *Entity) decode(c *wire.Cursor, v Version, full bool) error {
	var err error
	switch s := e.Variant.(type) {
	case *Ship:
		err = s.decode(e, c, v, full)
	case *Collider:
		err = s.decode(e, c)
	case *Atom:
		err = s.decode(e, c, full)
	case *Energy:
		err = s.decode(e, c, full)
	case *Tri:
		err = s.decode(e, c, full)
	case *Boundary:
		// Boundaries carry no per-record body.
	case *RedFlailPowerup:
		err = s.decode(e, c, full)
	default:
		err = fmt.Errorf("entity %d: no decoder for variant %T", e.ID, e.Variant)
	}
	if err != nil {
		return fmt.Errorf("decode %s %d: %w", e.Kind(), e.ID, err)
	}
	return nil
}

// DecodeDelete applies a delete record body and marks the entity as being
// deleted. Killer attribution is set by the caller from the record prefix.
func (e *Entity) DecodeDelete(c *wire.Cursor) error {
	var err error
	switch s := e.Variant.(type) {
	case *Atom:
		err = s.Pickup.decodeDelete(e, c)
	case *Energy:
		err = s.Pickup.decodeDelete(e, c)
	case *Tri:
		err = s.Pickup.decodeDelete(e, c)
	case *RedFlailPowerup:
		err = s.Pickup.decodeDelete(e, c)
	case *Ship, *Collider, *Boundary:
		e.BeingDeleted = true
	default:
		err = fmt.Errorf("entity %d: no delete decoder for variant %T", e.ID, e.Variant)
	}
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", e.Kind(), e.ID, err)
	}
	return nil
}

// readPosition reads an x,y float32 pair, scales it to client units and
// inverts y.
func readPosition(c *wire.Cursor) (Point, error) {
	x, err := c.ReadF32()
	if err != nil {
		return Point{}, err
	}
	y, err := c.ReadF32()
	if err != nil {
		return Point{}, err
	}
	return Point{X: float64(x) * GameScale, Y: -float64(y) * GameScale}, nil
}
