package world

import (
	"math"

	"github.com/flailbot/flailbot/internal/wire"
)

// Ship flag bits. V2 frames carry only the low byte.
const (
	FlagFlailAttached    uint16 = 0x01
	FlagFlailAttracting  uint16 = 0x02
	FlagInvulnerable     uint16 = 0x04
	FlagShock            uint16 = 0x08
	FlagDecay            uint16 = 0x10
	FlagStill            uint16 = 0x20
	FlagInside           uint16 = 0x40
	FlagCharging         uint16 = 0x80
	FlagRedFlail         uint16 = 0x100
	FlagRedFlailDeployed uint16 = 0x200
)

// ShipFlags is the decoded ship bitfield.
type ShipFlags struct {
	Attached         bool `json:"attached"`
	Attracting       bool `json:"attracting"`
	Invulnerable     bool `json:"invulnerable"`
	Shock            bool `json:"shock"`
	Decay            bool `json:"decay"`
	Still            bool `json:"still"`
	Inside           bool `json:"inside"`
	Charging         bool `json:"charging"`
	RedFlail         bool `json:"red_flail"`
	RedFlailDeployed bool `json:"red_flail_deployed"`
}

// ParseShipFlags splits a raw flag word into named booleans.
func ParseShipFlags(raw uint16) ShipFlags {
	return ShipFlags{
		Attached:         raw&FlagFlailAttached != 0,
		Attracting:       raw&FlagFlailAttracting != 0,
		Invulnerable:     raw&FlagInvulnerable != 0,
		Shock:            raw&FlagShock != 0,
		Decay:            raw&FlagDecay != 0,
		Still:            raw&FlagStill != 0,
		Inside:           raw&FlagInside != 0,
		Charging:         raw&FlagCharging != 0,
		RedFlail:         raw&FlagRedFlail != 0,
		RedFlailDeployed: raw&FlagRedFlailDeployed != 0,
	}
}

// Flail is the ship's flail head.
type Flail struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Angle  float64 `json:"angle"`
	Energy uint32  `json:"energy"`
	Radius float64 `json:"radius"`
}

// Ship is a player vehicle with its chain and flail.
type Ship struct {
	TransferEnergy uint8     `json:"transfer_energy"`
	Segments       []Point   `json:"segments"`
	Flail          Flail     `json:"flail"`
	Flags          ShipFlags `json:"flags"`
	RedFlailTime   uint8     `json:"red_flail_time"`
}

// NewShip creates a ship with its flail attached.
func NewShip() *Ship {
	return &Ship{Flags: ShipFlags{Attached: true}}
}

// Kind implements Variant.
func (s *Ship) Kind() Kind { return KindShip }

func (s *Ship) isVariant() {}

// EnergyToRadius converts flail energy to a radius in server units.
func EnergyToRadius(energy float64) float64 {
	f := energy / 5000.0
	if f > 1.0 {
		f = 1.0
	}
	add := 0.3 * math.Cbrt(f)
	root := 1.0 / (1.7 + add)
	return math.Pow(energy/100, root)*4.0 - 3
}

// decode reads: transfer energy, position, angle, chain, flail, flags,
// optional red flail countdown and, on full records, hue.
func (s *Ship) decode(e *Entity, c *wire.Cursor, v Version, full bool) error {
	transfer, err := c.ReadU8()
	if err != nil {
		return err
	}
	pos, err := readPosition(c)
	if err != nil {
		return err
	}
	angle, err := c.ReadF32()
	if err != nil {
		return err
	}

	segments, err := readChain(c)
	if err != nil {
		return err
	}

	flail, flags, redTime, err := readFlail(c, v)
	if err != nil {
		return err
	}

	var hue uint16
	if full {
		if hue, err = c.ReadU16(); err != nil {
			return err
		}
	}

	s.TransferEnergy = transfer
	e.X, e.Y = pos.X, pos.Y
	e.Angle = float64(angle)

	if full {
		s.Segments = append(s.Segments, segments...)
	} else {
		// The chain length is fixed at creation.
		n := min(len(segments), len(s.Segments))
		copy(s.Segments[:n], segments[:n])
	}

	if v == V2 {
		// V2 flag bytes do not carry the red flail bits.
		flags.RedFlail = s.Flags.RedFlail
		flags.RedFlailDeployed = s.Flags.RedFlailDeployed
	}
	s.Flail = flail
	s.Flags = flags
	if redTime != nil {
		s.RedFlailTime = *redTime
	}
	if full {
		e.Hue = hue
	}
	return nil
}

func readChain(c *wire.Cursor) ([]Point, error) {
	count, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	segments := make([]Point, 0, count)
	for i := 0; i < int(count); i++ {
		p, err := readPosition(c)
		if err != nil {
			return nil, err
		}
		segments = append(segments, p)
	}
	return segments, nil
}

func readFlail(c *wire.Cursor, v Version) (Flail, ShipFlags, *uint8, error) {
	pos, err := readPosition(c)
	if err != nil {
		return Flail{}, ShipFlags{}, nil, err
	}
	angle, err := c.ReadF32()
	if err != nil {
		return Flail{}, ShipFlags{}, nil, err
	}
	energy, err := c.ReadU32()
	if err != nil {
		return Flail{}, ShipFlags{}, nil, err
	}

	var raw uint16
	if v == V2 {
		b, err := c.ReadU8()
		if err != nil {
			return Flail{}, ShipFlags{}, nil, err
		}
		raw = uint16(b)
	} else {
		if raw, err = c.ReadU16(); err != nil {
			return Flail{}, ShipFlags{}, nil, err
		}
	}
	flags := ParseShipFlags(raw)

	var redTime *uint8
	if v != V2 && flags.RedFlailDeployed {
		t, err := c.ReadU8()
		if err != nil {
			return Flail{}, ShipFlags{}, nil, err
		}
		redTime = &t
	}

	flail := Flail{
		X:      pos.X,
		Y:      pos.Y,
		Angle:  -float64(angle),
		Energy: energy,
		Radius: EnergyToRadius(float64(energy)) * GameScale,
	}
	return flail, flags, redTime, nil
}
