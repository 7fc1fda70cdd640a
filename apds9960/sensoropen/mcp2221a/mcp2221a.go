// Package mcp2221a drives the I²C master and GPIO pins of a Microchip
// MCP2221A USB bridge through its HID interface.
//
// Datasheet: http://ww1.microchip.com/downloads/en/devicedoc/20005565b.pdf
//
// Protocol constants follow https://github.com/ardnew/mcp2221a (MIT).
package mcp2221a

import (
	"errors"
	"fmt"
	"time"

	"github.com/karalabe/hid"
)

const (
	VID        = 0x04D8
	PID        = 0x00DD
	ClkHz      = 12000000
	MsgSize    = 64
	GPIOPins   = 4
	DefaultBPS = 100000
)

const (
	cmdStatus         byte = 0x10
	cmdSetParams      byte = 0x10
	cmdI2CWrite       byte = 0x90
	cmdI2CWriteNoStop byte = 0x94
	cmdI2CRead        byte = 0x91
	cmdI2CReadRep     byte = 0x93
	cmdI2CGetData     byte = 0x40
	cmdGPIOSet        byte = 0x50
	cmdGPIOGet        byte = 0x51
)

// I²C engine states reported in the status response.
const (
	stateIdle            byte = 0x00
	stateStartTimeout    byte = 0x12
	stateRepStartTimeout byte = 0x17
	stateAddrTimeout     byte = 0x23
	stateAddrNACK        byte = 0x25
	statePartialData     byte = 0x41
	stateWriteTimeout    byte = 0x44
	stateWritingNoStop   byte = 0x45
	stateReadTimeout     byte = 0x52
	stateReadPartial     byte = 0x54
	stateReadComplete    byte = 0x55
	stateStopTimeout     byte = 0x62
	stateReadError       byte = 0x7F
)

const (
	chunkMax   = 60
	retries    = 50
	retryDelay = 300 * time.Microsecond
)

var (
	ErrNACK     = errors.New("mcp2221a: I²C NACK")
	ErrTimeout  = errors.New("mcp2221a: I²C timeout")
	ErrRetries  = errors.New("mcp2221a: too many retries")
	ErrNotFound = errors.New("mcp2221a: no device found")
)

// HIDDevice is the report-level interface of an opened HID device.
type HIDDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

type Bridge struct {
	dev   HIDDevice
	sleep func(time.Duration)
}

// Devices lists the attached bridges with the given product ID. Boards
// with a customised USB descriptor use something other than PID.
func Devices(pid uint16) []hid.DeviceInfo {
	return hid.Enumerate(VID, pid)
}

// Open opens the bridge with the given USB serial number. An empty serial
// selects the first one found.
func Open(serial string, pid uint16) (*Bridge, error) {
	for _, info := range Devices(pid) {
		if serial != "" && info.Serial != serial {
			continue
		}

		dev, err := info.Open()
		if err != nil {
			return nil, err
		}
		return New(dev), nil
	}

	return nil, ErrNotFound
}

func New(dev HIDDevice) *Bridge {
	return &Bridge{
		dev:   dev,
		sleep: time.Sleep,
	}
}

func (b *Bridge) Close() error {
	return b.dev.Close()
}

// exchange sends one command report and returns its response.
func (b *Bridge) exchange(cmd byte, msg []byte) ([]byte, error) {
	msg[0] = cmd
	if _, err := b.dev.Write(msg); err != nil {
		return nil, fmt.Errorf("mcp2221a: write command 0x%02x: %w", cmd, err)
	}

	rsp := make([]byte, MsgSize)
	n, err := b.dev.Read(rsp)
	if err != nil {
		return nil, fmt.Errorf("mcp2221a: read response 0x%02x: %w", cmd, err)
	}
	if n < MsgSize {
		return rsp, fmt.Errorf("mcp2221a: short response to 0x%02x (%d bytes)", cmd, n)
	}
	if rsp[0] != cmd || rsp[1] != 0 {
		return rsp, fmt.Errorf("mcp2221a: command 0x%02x failed", cmd)
	}

	return rsp, nil
}

func stateTimeout(state byte) bool {
	switch state {
	case stateStartTimeout, stateRepStartTimeout, stateStopTimeout,
		stateReadTimeout, stateWriteTimeout, stateAddrTimeout:
		return true
	}
	return false
}

func stateError(state byte, addr uint8) error {
	if state == stateAddrNACK {
		return fmt.Errorf("%w from 0x%02x", ErrNACK, addr)
	}
	if stateTimeout(state) {
		return ErrTimeout
	}
	return nil
}

// i2cState returns the current state of the I²C engine.
func (b *Bridge) i2cState() (byte, error) {
	rsp, err := b.exchange(cmdStatus, make([]byte, MsgSize))
	if err != nil {
		return 0, err
	}
	return rsp[8], nil
}

// Cancel aborts the transfer in progress and frees the bus.
func (b *Bridge) Cancel() error {
	msg := make([]byte, MsgSize)
	msg[2] = 0x10

	rsp, err := b.exchange(cmdSetParams, msg)
	if err != nil {
		return err
	}
	if rsp[2] == 0x10 {
		b.sleep(retryDelay)
	}
	return nil
}

// SetSpeed sets the I²C clock in bits per second.
func (b *Bridge) SetSpeed(bps uint32) error {
	if bps > ClkHz/3 || bps < ClkHz/258 {
		return fmt.Errorf("mcp2221a: unsupported I²C speed %d", bps)
	}

	msg := make([]byte, MsgSize)
	msg[3] = 0x20
	msg[4] = byte(ClkHz/bps - 3)

	rsp, err := b.exchange(cmdSetParams, msg)
	if err != nil {
		return err
	}
	if rsp[3] == 0x21 {
		return errors.New("mcp2221a: speed not changed, transfer in progress")
	}
	return nil
}

func (b *Bridge) prepare(allowNoStop bool) error {
	state, err := b.i2cState()
	if err != nil {
		return err
	}
	if state == stateIdle || (allowNoStop && state == stateWritingNoStop) {
		return nil
	}
	return b.Cancel()
}

func (b *Bridge) write(stop bool, addr uint8, data []byte) error {
	if err := b.prepare(false); err != nil {
		return err
	}

	cmd := cmdI2CWrite
	if !stop {
		cmd = cmdI2CWriteNoStop
	}

	for pos := 0; pos < len(data); {
		n := len(data) - pos
		if n > chunkMax {
			n = chunkMax
		}

		msg := make([]byte, MsgSize)
		msg[1] = byte(len(data))
		msg[2] = byte(len(data) >> 8)
		msg[3] = addr << 1
		copy(msg[4:], data[pos:pos+n])

		sent := false
		for try := 0; try < retries && !sent; try++ {
			rsp, err := b.exchange(cmd, msg)
			if err == nil {
				sent = true
				break
			}
			if rsp == nil {
				return err
			}
			if err := stateError(rsp[2], addr); err != nil {
				return err
			}
			b.sleep(retryDelay)
		}
		if !sent {
			return ErrRetries
		}

		for {
			state, err := b.i2cState()
			if err != nil || state != statePartialData {
				break
			}
			b.sleep(retryDelay)
		}

		pos += n
	}

	for try := 0; try < retries; try++ {
		state, err := b.i2cState()
		if err != nil {
			return err
		}
		if state == stateIdle || (!stop && state == stateWritingNoStop) {
			return nil
		}
		if err := stateError(state, addr); err != nil {
			return err
		}
		b.sleep(retryDelay)
	}

	return ErrRetries
}

func (b *Bridge) read(repStart bool, addr uint8, buf []byte) error {
	if err := b.prepare(true); err != nil {
		return err
	}

	cmd := cmdI2CRead
	if repStart {
		cmd = cmdI2CReadRep
	}

	msg := make([]byte, MsgSize)
	msg[1] = byte(len(buf))
	msg[2] = byte(len(buf) >> 8)
	msg[3] = addr<<1 | 0x01
	if _, err := b.exchange(cmd, msg); err != nil {
		return err
	}

	for pos := 0; pos < len(buf); {
		var rsp []byte

		ready := false
		for try := 0; try < retries && !ready; try++ {
			var err error
			if rsp, err = b.exchange(cmdI2CGetData, make([]byte, MsgSize)); err != nil {
				return err
			}

			switch {
			case rsp[1] == statePartialData || rsp[3] == stateReadError:
				b.sleep(retryDelay)
			case rsp[2] == stateAddrNACK:
				return fmt.Errorf("%w from 0x%02x", ErrNACK, addr)
			case rsp[2] == stateIdle && rsp[3] == 0,
				rsp[2] == stateReadPartial,
				rsp[2] == stateReadComplete:
				ready = true
			}
		}
		if !ready {
			return ErrRetries
		}

		n := len(buf) - pos
		if n > chunkMax {
			n = chunkMax
		}
		copy(buf[pos:pos+n], rsp[4:])
		pos += n
	}

	return nil
}

// Tx performs a combined I²C transaction: w is written, then r is filled
// after a repeated start. Either may be empty.
func (b *Bridge) Tx(addr uint16, w []byte, r []byte) error {
	a := uint8(addr)

	switch {
	case len(w) > 0 && len(r) > 0:
		if err := b.write(false, a, w); err != nil {
			return err
		}
		return b.read(true, a, r)

	case len(w) > 0:
		return b.write(true, a, w)

	case len(r) > 0:
		return b.read(false, a, r)
	}

	return nil
}

// SetGPIO drives pin as an output.
func (b *Bridge) SetGPIO(pin int, high bool) error {
	if pin < 0 || pin >= GPIOPins {
		return fmt.Errorf("mcp2221a: invalid GPIO pin %d", pin)
	}

	msg := make([]byte, MsgSize)
	i := 2 + 4*pin
	msg[i] = 0xFF
	if high {
		msg[i+1] = 1
	}
	msg[i+2] = 0xFF
	msg[i+3] = 0 // output

	_, err := b.exchange(cmdGPIOSet, msg)
	return err
}

func (b *Bridge) GPIO(pin int) (bool, error) {
	if pin < 0 || pin >= GPIOPins {
		return false, fmt.Errorf("mcp2221a: invalid GPIO pin %d", pin)
	}

	rsp, err := b.exchange(cmdGPIOGet, make([]byte, MsgSize))
	if err != nil {
		return false, err
	}

	v := rsp[2+2*pin]
	if v == 0xEE {
		return false, fmt.Errorf("mcp2221a: pin %d not in GPIO mode", pin)
	}
	return v != 0, nil
}
