package domain

import "fmt"

// TileOrientation is a four-bit mask of open sides. The bits read TRBL from
// the high bit down, matching the persisted text form: "1110" is open on
// top, right and bottom with a wall on the left.
type TileOrientation uint8

// Canonical masks before rotation.
const (
	OrientCross    TileOrientation = 0b1111
	OrientTee      TileOrientation = 0b1110
	OrientCorner   TileOrientation = 0b1100
	OrientStraight TileOrientation = 0b1010
)

func sideBit(s Side) TileOrientation {
	return 1 << (3 - uint8(s))
}

// Open reports whether the given side is open.
func (o TileOrientation) Open(s Side) bool {
	return o&sideBit(s) != 0
}

// Rotate returns the mask rotated clockwise by steps quarter turns: an
// opening at side s moves to side (s+steps) mod 4.
func (o TileOrientation) Rotate(steps int) TileOrientation {
	steps = ((steps % 4) + 4) % 4
	var out TileOrientation
	for s := SideTop; s <= SideLeft; s++ {
		if o.Open(s) {
			out |= sideBit((s + Side(steps)) % 4)
		}
	}
	return out
}

// OpenSides lists the open sides in TRBL order.
func (o TileOrientation) OpenSides() []Side {
	var sides []Side
	for s := SideTop; s <= SideLeft; s++ {
		if o.Open(s) {
			sides = append(sides, s)
		}
	}
	return sides
}

func (o TileOrientation) String() string {
	b := make([]byte, 4)
	for s := SideTop; s <= SideLeft; s++ {
		if o.Open(s) {
			b[s] = '1'
		} else {
			b[s] = '0'
		}
	}
	return string(b)
}

// Orientations persist as four TRBL bits ("1010").
func (o TileOrientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *TileOrientation) UnmarshalText(text []byte) error {
	if len(text) != 4 {
		return fmt.Errorf("malformed orientation %q", text)
	}
	var out TileOrientation
	for i, c := range text {
		switch c {
		case '1':
			out |= sideBit(Side(i))
		case '0':
		default:
			return fmt.Errorf("malformed orientation %q", text)
		}
	}
	*o = out
	return nil
}
