package i2c

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/magx"
	"github.com/mklimuk/magx/hal"
)

// DefaultSettleDelay is the turnaround time a peripheral needs after its
// register address byte (>30us).
const DefaultSettleDelay = 35 * time.Microsecond

var (
	_ magx.Transactor = &Master{}
	_ magx.I2CBus     = &Master{}
)

type MasterOpts struct {
	Clock       hal.Clock
	Delayer     hal.Delayer
	Timeout     time.Duration
	SettleDelay time.Duration
}

type MasterOpt func(*MasterOpts)

// WithTimeout bounds every busy-wait of the master. Zero waits forever.
func WithTimeout(timeout time.Duration) MasterOpt {
	return func(o *MasterOpts) {
		o.Timeout = timeout
	}
}

func WithClock(clock hal.Clock) MasterOpt {
	return func(o *MasterOpts) {
		o.Clock = clock
	}
}

func WithDelayer(delayer hal.Delayer) MasterOpt {
	return func(o *MasterOpts) {
		o.Delayer = delayer
	}
}

func WithSettleDelay(delay time.Duration) MasterOpt {
	return func(o *MasterOpts) {
		o.SettleDelay = delay
	}
}

// Master drives one I2C peripheral as bus master. Transactions are
// synchronous and occupy the caller until the bus operation completes.
// Whole transactions are serialized, so a Master may be shared.
type Master struct {
	mx     sync.Mutex
	module hal.Module
	ctl    hal.Controller
	poll   Poller
	delay  hal.Delayer
	settle time.Duration
}

func NewMaster(module hal.Module, ctl hal.Controller, opts ...MasterOpt) *Master {
	config := MasterOpts{
		Clock:       hal.SystemClock(),
		Delayer:     hal.SleepDelayer(),
		SettleDelay: DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Master{
		module: module,
		ctl:    ctl,
		poll:   Poller{Clock: config.Clock, Timeout: config.Timeout},
		delay:  config.Delayer,
		settle: config.SettleDelay,
	}
}

func (m *Master) Module() hal.Module {
	return m.module
}

func (m *Master) String() string {
	return m.module.String()
}

// Init programs the bus clock and enables the bus. It returns the achieved
// frequency and ErrClockTolerance when it deviates from hz by more than 10%.
// The bus is enabled even then; the verdict is advisory.
func (m *Master) Init(hz uint32) (uint32, error) {
	if hz == 0 {
		return 0, fmt.Errorf("%s: %w: 0 Hz", m.module, ErrInvalidClock)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	actual := m.ctl.SetFrequency(hz)
	m.ctl.Enable(true)
	deviation := int64(actual) - int64(hz)
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > int64(hz)/10 {
		return actual, fmt.Errorf("%s: %w: requested %d Hz, got %d Hz", m.module, ErrClockTolerance, hz, actual)
	}
	return actual, nil
}

// WriteToAddr adapts Write to the context based bus interface.
func (m *Master) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.Write(address, buffer)
	return err
}

// ReadFromAddr adapts Read to the context based bus interface.
func (m *Master) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.Read(address, buffer)
	return err
}

// Release drives a STOP condition to free a bus left in an unknown state.
func (m *Master) Release(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.stopTransfer(); err != nil {
		return &Error{Op: "release", Site: SiteStop, Index: -1, Err: err}
	}
	return nil
}
