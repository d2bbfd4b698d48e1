package i2c

import "fmt"

// MaxBlockSize is the largest block a descriptor may carry.
const MaxBlockSize = 0xFF

// Block describes one register-addressed block transfer.
type Block struct {
	Bus      *Master
	Addr     Address
	Register byte
	Size     int
	Data     []byte
}

func (b Block) validate(op string) error {
	var err error
	switch {
	case b.Bus == nil:
		err = fmt.Errorf("no bus")
	case b.Size < 0 || b.Size > MaxBlockSize:
		err = fmt.Errorf("%w: %d", ErrBlockSize, b.Size)
	case len(b.Data) < b.Size:
		err = fmt.Errorf("%w: %d < %d", ErrBufferTooSmall, len(b.Data), b.Size)
	}
	if err != nil {
		return &Error{Op: op, Addr: b.Addr, Site: SiteNone, Index: -1, Err: err}
	}
	return nil
}

// WriteBlock writes b.Size bytes of b.Data starting at b.Register.
func WriteBlock(b Block) (int, error) {
	if err := b.validate(opWriteBlock); err != nil {
		return 0, err
	}
	b.Bus.mx.Lock()
	defer b.Bus.mx.Unlock()
	return b.Bus.writeFrame(opWriteBlock, b.Addr, []byte{b.Register}, b.Data[:b.Size])
}

// ReadBlock reads b.Size bytes starting at b.Register into b.Data.
func ReadBlock(b Block) (int, error) {
	if err := b.validate(opReadBlock); err != nil {
		return 0, err
	}
	b.Bus.mx.Lock()
	defer b.Bus.mx.Unlock()
	return b.Bus.readFrame(opReadBlock, b.Addr, []byte{b.Register}, b.Data[:b.Size])
}
