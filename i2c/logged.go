package i2c

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mklimuk/magx"
)

var _ magx.Transactor = &Logged{}

// Logged reports the outcome of every transaction of the wrapped
// transactor. Failures are logged at error level with their site, the rest
// at debug level.
type Logged struct {
	next   magx.Transactor
	logger *slog.Logger
}

func NewLogged(next magx.Transactor, logger *slog.Logger) *Logged {
	if logger == nil {
		logger = slog.Default()
	}
	if s, ok := next.(fmt.Stringer); ok {
		logger = logger.With("bus", s.String())
	}
	return &Logged{next: next, logger: logger}
}

func (l *Logged) Write(address byte, buffer []byte) (int, error) {
	n, err := l.next.Write(address, buffer)
	l.report(opWrite, address, n, len(buffer), err)
	return n, err
}

func (l *Logged) Read(address byte, buffer []byte) (int, error) {
	n, err := l.next.Read(address, buffer)
	l.report(opRead, address, n, len(buffer), err)
	return n, err
}

func (l *Logged) ReadRegisters(address, reg byte, buffer []byte) (int, error) {
	n, err := l.next.ReadRegisters(address, reg, buffer)
	l.report(opReadRegisters, address, n, len(buffer), err, "reg", fmt.Sprintf("0x%02X", reg))
	return n, err
}

func (l *Logged) WriteRegisters(address, reg byte, buffer []byte) (int, error) {
	n, err := l.next.WriteRegisters(address, reg, buffer)
	l.report(opWriteRegisters, address, n, len(buffer), err, "reg", fmt.Sprintf("0x%02X", reg))
	return n, err
}

// ReadBlock runs ReadBlock on b.Bus and reports it like any other transaction.
func (l *Logged) ReadBlock(b Block) (int, error) {
	n, err := ReadBlock(b)
	l.report(opReadBlock, byte(b.Addr), n, b.Size, err, "reg", fmt.Sprintf("0x%02X", b.Register))
	return n, err
}

func (l *Logged) WriteBlock(b Block) (int, error) {
	n, err := WriteBlock(b)
	l.report(opWriteBlock, byte(b.Addr), n, b.Size, err, "reg", fmt.Sprintf("0x%02X", b.Register))
	return n, err
}

func (l *Logged) report(op string, address byte, n, requested int, err error, args ...any) {
	args = append(args,
		"op", op,
		"addr", Address(address).String(),
		"bytes", n,
		"requested", requested,
		"result", ResultOf(err).String(),
	)
	if err == nil {
		l.logger.Debug("i2c transaction", args...)
		return
	}
	var e *Error
	if errors.As(err, &e) {
		args = append(args, "site", e.Site.String())
		if e.Site == SiteData || e.Site == SiteRegister {
			args = append(args, "index", e.Index)
		}
	}
	args = append(args, "error", err)
	l.logger.Error("i2c transaction failed", args...)
}
