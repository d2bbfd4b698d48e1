package adapter

import (
	"errors"

	"github.com/mklimuk/magx/i2c"
)

const (
	opWrite          = "write"
	opRead           = "read"
	opReadRegisters  = "read registers"
	opWriteRegisters = "write registers"
)

// wrap tags an adapter failure for the transaction taxonomy. Bridges only
// tell an unacknowledged address apart from other failures.
func wrap(op string, address byte, err error) error {
	site := i2c.SiteNone
	if errors.Is(err, errAddressNack) {
		site = i2c.SiteAddrWrite
		if op == opRead {
			site = i2c.SiteAddrRead
		}
	}
	return &i2c.Error{Op: op, Addr: i2c.Address(address), Site: site, Index: -1, Err: err}
}
