package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Side is one edge of a tile, clockwise from the top.
type Side uint8

const (
	SideTop Side = iota
	SideRight
	SideBottom
	SideLeft
)

var sideNames = [4]string{"TOP", "RIGHT", "BOTTOM", "LEFT"}

func (s Side) String() string {
	if int(s) < len(sideNames) {
		return sideNames[s]
	}
	return fmt.Sprintf("SIDE(%d)", uint8(s))
}

// Opposite pairs (TOP,BOTTOM) and (LEFT,RIGHT).
func (s Side) Opposite() Side {
	return (s + 2) % 4
}

func ParseSide(name string) (Side, error) {
	for i, n := range sideNames {
		if strings.EqualFold(name, n) {
			return Side(i), nil
		}
	}
	return 0, fmt.Errorf("unknown side %q", name)
}

// Position is a cell on the unbounded square grid. (0,0) is the starting
// tile; y grows downward so TOP of (x,y) is (x,y-1).
type Position struct {
	X int
	Y int
}

func Pos(x, y int) Position { return Position{X: x, Y: y} }

// Neighbor returns the adjacent cell through the given side.
func (p Position) Neighbor(s Side) Position {
	switch s {
	case SideTop:
		return Position{p.X, p.Y - 1}
	case SideRight:
		return Position{p.X + 1, p.Y}
	case SideBottom:
		return Position{p.X, p.Y + 1}
	default:
		return Position{p.X - 1, p.Y}
	}
}

// SideTowards returns the side of p facing q, if q is a direct neighbor.
func (p Position) SideTowards(q Position) (Side, bool) {
	for s := SideTop; s <= SideLeft; s++ {
		if p.Neighbor(s) == q {
			return s, true
		}
	}
	return 0, false
}

func (p Position) String() string {
	return strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y)
}

// Positions serialize as "x,y" so they can key JSON objects in the
// aggregate state column.
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Position) UnmarshalText(text []byte) error {
	parts := strings.SplitN(string(text), ",", 2)
	if len(parts) != 2 {
		return fmt.Errorf("malformed position %q", text)
	}
	x, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Errorf("malformed position %q: %w", text, err)
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("malformed position %q: %w", text, err)
	}
	p.X, p.Y = x, y
	return nil
}
