package typedef

import "strconv"

// Direction tells which way a type travels on the link.
type Direction int

// Directions
const (
	// DirNone marks a record which only declares a length for a code.
	DirNone     Direction = 0
	DirIncoming Direction = 0x01
	DirOutgoing Direction = 0x02
	DirBoth               = DirIncoming | DirOutgoing
)

// IsIncoming indicates the type is received from the device.
func (d Direction) IsIncoming() bool {
	return d&DirIncoming != 0
}

// IsOutgoing indicates the type is sent to the device.
func (d Direction) IsOutgoing() bool {
	return d&DirOutgoing != 0
}

func (d Direction) String() string {
	switch d {
	case DirNone:
		return "none"
	case DirIncoming:
		return "in"
	case DirOutgoing:
		return "out"
	case DirBoth:
		return "both"
	}
	return "direction(" + strconv.Itoa(int(d)) + ")"
}

// Length is the declared payload length of a type. The zero value is
// LengthUndeclared; byte counts are made with Fixed.
type Length int

const (
	// LengthUndeclared means no length is declared for the code.
	LengthUndeclared Length = 0
	// LengthVariable means the payload is prefixed by a length byte.
	LengthVariable Length = -1
)

// Fixed declares a payload of n bytes.
func Fixed(n int) Length {
	return Length(n + 1)
}

// IsDeclared indicates a length is declared.
func (l Length) IsDeclared() bool {
	return l != LengthUndeclared
}

// Bytes returns the byte count of a fixed length.
func (l Length) Bytes() (int, bool) {
	if l > 0 {
		return int(l) - 1, true
	}
	return 0, false
}

func (l Length) String() string {
	switch l {
	case LengthUndeclared:
		return "undeclared"
	case LengthVariable:
		return "variable"
	}
	n, _ := l.Bytes()
	return strconv.Itoa(n)
}

// Record binds a symbolic name to a one-byte type code.
type Record struct {
	Name      string
	Direction Direction
	Code      byte
	// Length is optional, leave it zero when not declared.
	Length Length
}
