package hal

import "time"

// Clock is the time source used by busy-wait loops.
type Clock interface {
	Now() time.Time
}

// Delayer blocks the caller for at least d.
type Delayer interface {
	Delay(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type sleepDelayer struct{}

func (sleepDelayer) Delay(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// SleepDelayer returns a Delayer backed by time.Sleep.
func SleepDelayer() Delayer { return sleepDelayer{} }
