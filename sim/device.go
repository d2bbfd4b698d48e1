package sim

import "sync"

// Device is a peripheral attached to a simulated bus.
type Device interface {
	// Select is called when the device address goes on the wire. Returning
	// false leaves the address unacknowledged.
	Select(read bool) bool
	// Receive takes a byte written by the master and reports the ACK bit.
	Receive(b byte) bool
	// Transmit returns the next byte the device drives during a read.
	Transmit() byte
	// Stop ends the transfer.
	Stop()
}

// RegisterFile is a byte addressable device with an auto-incrementing
// register pointer, the way most sensors and 24Cxx EEPROMs behave: the
// first byte of a write sets the pointer, every further byte is stored.
type RegisterFile struct {
	mx      sync.Mutex
	mem     [256]byte
	ptr     byte
	pointer bool
}

func NewRegisterFile() *RegisterFile {
	return &RegisterFile{}
}

// Load stores data starting at reg, bypassing the bus.
func (r *RegisterFile) Load(reg byte, data ...byte) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for i, b := range data {
		r.mem[reg+byte(i)] = b
	}
}

// Bytes returns n bytes starting at reg, bypassing the bus.
func (r *RegisterFile) Bytes(reg byte, n int) []byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = r.mem[reg+byte(i)]
	}
	return out
}

func (r *RegisterFile) Select(read bool) bool {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.pointer = !read
	return true
}

func (r *RegisterFile) Receive(b byte) bool {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.pointer {
		r.ptr = b
		r.pointer = false
		return true
	}
	r.mem[r.ptr] = b
	r.ptr++
	return true
}

func (r *RegisterFile) Transmit() byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	b := r.mem[r.ptr]
	r.ptr++
	return b
}

func (r *RegisterFile) Stop() {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.pointer = false
}
