package world

import "github.com/flailbot/flailbot/internal/wire"

// ColliderType is the collider subclass.
type ColliderType uint8

const (
	ColliderBouncer     ColliderType = 0
	ColliderWall        ColliderType = 1
	ColliderDanger      ColliderType = 2
	ColliderBoundary    ColliderType = 3
	ColliderNoFlailZone ColliderType = 4
	ColliderCore        ColliderType = 5
)

var colliderTypeStrings = map[ColliderType]string{
	ColliderBouncer:     "bouncer",
	ColliderWall:        "wall",
	ColliderDanger:      "danger",
	ColliderBoundary:    "boundary",
	ColliderNoFlailZone: "no_flail_zone",
	ColliderCore:        "core",
}

// String returns the string representation of ColliderType.
func (t ColliderType) String() string {
	if s, ok := colliderTypeStrings[t]; ok {
		return s
	}
	return "unknown"
}

// FlagCorePulse marks a pulsing core in the packed core byte.
const FlagCorePulse uint8 = 0x8

// Collider is a static or slowly moving arena obstacle. Its position is kept
// in raw server units.
type Collider struct {
	SubType    ColliderType `json:"sub_type"`
	ShapeIndex uint8        `json:"shape_index"`

	// Bouncer
	HitValue    float64 `json:"hit_value"`
	VertexCount uint8   `json:"vertex_count"`

	// Core
	CoreStage    uint8   `json:"core_stage"`
	Pulsing      bool    `json:"pulsing"`
	CoreRotation float64 `json:"core_rotation"`
}

// NewCollider creates a collider of the given subtype.
func NewCollider(subType ColliderType) *Collider {
	return &Collider{SubType: subType}
}

// Kind implements Variant.
func (c *Collider) Kind() Kind { return KindCollider }

func (c *Collider) isVariant() {}

func (c *Collider) decode(e *Entity, cur *wire.Cursor) error {
	x, err := cur.ReadF32()
	if err != nil {
		return err
	}
	y, err := cur.ReadF32()
	if err != nil {
		return err
	}
	angle, err := cur.ReadF32()
	if err != nil {
		return err
	}
	shape, err := cur.ReadU8()
	if err != nil {
		return err
	}

	switch c.SubType {
	case ColliderBouncer:
		hit, err := cur.ReadU8()
		if err != nil {
			return err
		}
		count, err := cur.ReadU8()
		if err != nil {
			return err
		}
		if hit != 0 {
			c.HitValue = 1.0
		}
		c.VertexCount = count
	case ColliderCore:
		packed, err := cur.ReadU8()
		if err != nil {
			return err
		}
		rotation, err := cur.ReadF32()
		if err != nil {
			return err
		}
		c.CoreStage = packed &^ FlagCorePulse
		if packed&FlagCorePulse != 0 {
			c.Pulsing = true
		}
		c.CoreRotation = float64(rotation)
	}

	e.X = float64(x)
	e.Y = float64(y)
	e.Angle = float64(angle)
	c.ShapeIndex = shape
	return nil
}
