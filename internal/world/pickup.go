package world

import "github.com/flailbot/flailbot/internal/wire"

// Tri hues by polarity.
const (
	TriHuePositive uint16 = 116
	TriHueNegative uint16 = 0
)

// defaultPickupEnergy is the energy a pickup holds before its first record.
const defaultPickupEnergy = 255

// TriType is the tri item subclass.
type TriType uint8

const (
	TriPlus  TriType = 2
	TriMinus TriType = 3
)

// Pickup is the state shared by collectible items.
type Pickup struct {
	Energy  uint16  `json:"energy"`
	Grabbed bool    `json:"grabbed"`
	GrabX   float64 `json:"grab_x"`
	GrabY   float64 `json:"grab_y"`
}

// decodeDelete reads the grabbed flag and snapshots the current position as
// the grab origin.
func (p *Pickup) decodeDelete(e *Entity, c *wire.Cursor) error {
	grabbed, err := c.ReadU8()
	if err != nil {
		return err
	}
	p.Grabbed = grabbed != 0
	p.GrabX, p.GrabY = e.X, e.Y
	e.BeingDeleted = true
	return nil
}

// pickupHeader is the energy, position and angle prefix shared by atoms,
// energy orbs and tris.
type pickupHeader struct {
	energy uint16
	pos    Point
	angle  float32
}

func readPickupHeader(c *wire.Cursor) (pickupHeader, error) {
	var h pickupHeader
	var err error
	if h.energy, err = c.ReadU16(); err != nil {
		return h, err
	}
	if h.pos, err = readPosition(c); err != nil {
		return h, err
	}
	if h.angle, err = c.ReadF32(); err != nil {
		return h, err
	}
	return h, nil
}

func (h pickupHeader) apply(e *Entity, p *Pickup) {
	p.Energy = h.energy
	e.X, e.Y = h.pos.X, h.pos.Y
	e.Angle = float64(h.angle)
}

// Atom is a small energy pickup.
type Atom struct {
	Pickup
}

// NewAtom creates an atom.
func NewAtom() *Atom {
	return &Atom{Pickup{Energy: defaultPickupEnergy}}
}

// Kind implements Variant.
func (a *Atom) Kind() Kind { return KindAtom }

func (a *Atom) isVariant() {}

func (a *Atom) decode(e *Entity, c *wire.Cursor, full bool) error {
	h, err := readPickupHeader(c)
	if err != nil {
		return err
	}
	var hue uint16
	if full {
		if hue, err = c.ReadU16(); err != nil {
			return err
		}
	}

	h.apply(e, &a.Pickup)
	if full {
		e.Hue = hue
	} else {
		e.CanInterpolate = true
	}
	return nil
}

// Energy is an energy orb pickup.
type Energy struct {
	Pickup
	Type uint8 `json:"type"`
}

// NewEnergy creates an energy orb.
func NewEnergy() *Energy {
	return &Energy{Pickup: Pickup{Energy: defaultPickupEnergy}, Type: 1}
}

// Kind implements Variant.
func (en *Energy) Kind() Kind { return KindEnergy }

func (en *Energy) isVariant() {}

func (en *Energy) decode(e *Entity, c *wire.Cursor, full bool) error {
	h, err := readPickupHeader(c)
	if err != nil {
		return err
	}
	var hue uint16
	var typ uint8
	if full {
		if hue, err = c.ReadU16(); err != nil {
			return err
		}
		if typ, err = c.ReadU8(); err != nil {
			return err
		}
	}

	h.apply(e, &en.Pickup)
	if full {
		e.Hue = hue
		en.Type = typ
	} else {
		e.CanInterpolate = true
	}
	return nil
}

// Tri is a polarity pickup.
type Tri struct {
	Pickup
	SubType  TriType `json:"sub_type"`
	Impulse  bool    `json:"impulse"`
	Positive bool    `json:"positive"`
}

// NewTri creates a tri of the given subtype.
func NewTri(subType TriType) *Tri {
	return &Tri{Pickup: Pickup{Energy: defaultPickupEnergy}, SubType: subType}
}

// Kind implements Variant.
func (t *Tri) Kind() Kind { return KindTri }

func (t *Tri) isVariant() {}

func (t *Tri) decode(e *Entity, c *wire.Cursor, full bool) error {
	h, err := readPickupHeader(c)
	if err != nil {
		return err
	}
	impulse, err := c.ReadU8()
	if err != nil {
		return err
	}
	var positive uint8
	if full {
		if positive, err = c.ReadU8(); err != nil {
			return err
		}
	}

	h.apply(e, &t.Pickup)
	if impulse != 0 {
		t.Impulse = true
	}
	if full {
		t.Positive = positive != 0
		if t.Positive {
			e.Hue = TriHuePositive
		} else {
			e.Hue = TriHueNegative
		}
	} else {
		e.CanInterpolate = true
	}
	return nil
}

// RedFlailPowerup grants a red flail when grabbed. Its position is only
// taken from full records.
type RedFlailPowerup struct {
	Pickup
}

// NewRedFlailPowerup creates a red flail powerup.
func NewRedFlailPowerup() *RedFlailPowerup {
	return &RedFlailPowerup{Pickup{Energy: defaultPickupEnergy}}
}

// Kind implements Variant.
func (r *RedFlailPowerup) Kind() Kind { return KindRedFlail }

func (r *RedFlailPowerup) isVariant() {}

func (r *RedFlailPowerup) decode(e *Entity, c *wire.Cursor, full bool) error {
	pos, err := readPosition(c)
	if err != nil {
		return err
	}
	if full {
		e.X, e.Y = pos.X, pos.Y
	} else {
		e.CanInterpolate = true
	}
	return nil
}

// Boundary is the arena edge. It carries no per-record state.
type Boundary struct{}

// Kind implements Variant.
func (b *Boundary) Kind() Kind { return KindBoundary }

func (b *Boundary) isVariant() {}
