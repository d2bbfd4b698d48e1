package i2c

import "fmt"

// Direction is the R/W bit appended to a 7-bit address.
type Direction byte

const (
	DirWrite Direction = 0
	DirRead  Direction = 1
)

func (d Direction) String() string {
	if d == DirRead {
		return "R"
	}
	return "W"
}

// Address is a 7-bit device address.
type Address byte

// Byte returns the address byte put on the wire for the given direction.
func (a Address) Byte(dir Direction) byte {
	return byte(a&0x7F)<<1 | byte(dir)
}

func (a Address) Valid() bool {
	return a <= 0x7F
}

func (a Address) String() string {
	return fmt.Sprintf("0x%02X", byte(a))
}
