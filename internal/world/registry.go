package world

import (
	"errors"
	"fmt"
)

// Entity classes.
const (
	ClassCollider uint8 = 1
	ClassItem     uint8 = 4
	ClassPlayer   uint8 = 5
)

// Item subclasses.
const (
	ItemAtom     uint8 = 0
	ItemEnergy   uint8 = 1
	ItemTriPlus  uint8 = 2
	ItemTriMinus uint8 = 3
	ItemRedFlail uint8 = 4
)

// ErrUnknownEntityType is returned for a class/subclass pair with no variant.
var ErrUnknownEntityType = errors.New("unknown entity type")

// NewVariant returns fresh variant state for a class/subclass pair.
func NewVariant(class, subClass uint8) (Variant, error) {
	switch class {
	case ClassPlayer:
		return NewShip(), nil
	case ClassItem:
		switch subClass {
		case ItemAtom:
			return NewAtom(), nil
		case ItemEnergy:
			return NewEnergy(), nil
		case ItemTriPlus, ItemTriMinus:
			return NewTri(TriType(subClass)), nil
		case ItemRedFlail:
			return NewRedFlailPowerup(), nil
		}
	case ClassCollider:
		if ColliderType(subClass) == ColliderBoundary {
			return &Boundary{}, nil
		}
		return NewCollider(ColliderType(subClass)), nil
	}
	return nil, fmt.Errorf("%w: class %d subclass %d", ErrUnknownEntityType, class, subClass)
}

// New creates an entity for a full record.
func New(id uint16, class, subClass uint8, nick string) (*Entity, error) {
	v, err := NewVariant(class, subClass)
	if err != nil {
		return nil, err
	}
	return &Entity{
		ID:       id,
		Class:    class,
		SubClass: subClass,
		Nick:     nick,
		Variant:  v,
	}, nil
}
