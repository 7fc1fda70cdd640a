// Package apds9960 implements a Golang driver for the Broadcom APDS9960
// proximity, ambient light, color and gesture sensor.
// Datasheet: https://docs.broadcom.com/doc/AV02-4191EN
package apds9960

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

type LogFunc func(format string, params ...interface{})

// Bus is the part of an I2C bus the driver needs. periph.io's i2c.Bus and
// TinyGo's drivers.I2C both satisfy it.
type Bus interface {
	Tx(addr uint16, w []byte, r []byte) error
}

// BusFunc adapts a plain function to Bus.
type BusFunc func(addr uint16, w []byte, r []byte) error

func (f BusFunc) Tx(addr uint16, w []byte, r []byte) error {
	return f(addr, w, r)
}

// DefaultAddress is the only address the APDS9960 answers on.
const DefaultAddress = 0x39

// CycleTime is the duration of one internal sensor cycle.
const CycleTime = 2780 * time.Microsecond

const (
	sleepEntryDelay = 25 * time.Millisecond
	wakeDelay       = 10 * time.Millisecond
)

var ErrWrongDevice = errors.New("apds9960: device id mismatch")

// Opts configures New. Only Address and MaxDatasets substitute a default
// for their zero value; start from DefaultOpts to get the reset, the
// baseline configuration and the high-pass filter.
type Opts struct {
	Address     uint16 // I2C address, 0 selects DefaultAddress
	Rotation    int    // Mounting rotation in degrees: 0, 90, 180 or 270
	Reset       bool   // Reset all registers to power-on values in New
	SetDefaults bool   // Apply the baseline configuration in New

	MaxDatasets       int   // Dataframe bound per retrieval, 0 selects 64
	HighPassThreshold uint8 // Minimum per-channel value of an accepted dataset
}

var DefaultOpts = Opts{
	Address:           DefaultAddress,
	Reset:             true,
	SetDefaults:       true,
	MaxDatasets:       64,
	HighPassThreshold: 30,
}

// Device is a handle to one APDS9960. It keeps no copy of the register
// state: every getter reads the sensor. A Device is not safe for concurrent
// use; callers sharing a sensor must serialise access themselves.
type Device struct {
	bus  Bus
	addr uint16

	rotation    int
	maxDatasets int
	highPass    uint8

	sleep   func(time.Duration)
	logFunc LogFunc
}

func (d *Device) log(format string, params ...interface{}) {
	if d.logFunc != nil {
		d.logFunc(" * "+format, params...)
	}
}

// New verifies the identity of the sensor behind bus and prepares it
// according to opts. A nil opts uses DefaultOpts.
func New(bus Bus, opts *Opts, logFunc LogFunc) (*Device, error) {
	if opts == nil {
		opts = &DefaultOpts
	}

	d := &Device{
		bus:         bus,
		addr:        opts.Address,
		maxDatasets: opts.MaxDatasets,
		highPass:    opts.HighPassThreshold,
		sleep:       time.Sleep,
		logFunc:     logFunc,
	}

	if d.addr == 0 {
		d.addr = DefaultAddress
	}
	if d.maxDatasets <= 0 {
		d.maxDatasets = DefaultOpts.MaxDatasets
	}

	if err := d.SetRotation(opts.Rotation); err != nil {
		return nil, err
	}

	id, err := d.readByte(regID)
	if err != nil {
		return nil, err
	}
	if id != deviceID {
		return nil, fmt.Errorf("%w: read 0x%02x, expected 0x%02x", ErrWrongDevice, id, deviceID)
	}

	if opts.Reset {
		if err := d.Reset(); err != nil {
			return nil, err
		}
	}

	if opts.SetDefaults {
		if err := d.Defaults(); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Address returns the I2C address of the sensor.
func (d *Device) Address() uint16 {
	return d.addr
}

// MaxDatasets returns the dataframe bound of a single retrieval.
func (d *Device) MaxDatasets() int {
	return d.maxDatasets
}

// HighPassThreshold returns the minimum channel value of an accepted dataset.
func (d *Device) HighPassThreshold() uint8 {
	return d.highPass
}

func (d *Device) readBlock(reg register, buf []byte) error {
	tx := [1]byte{byte(reg)}
	if err := d.bus.Tx(d.addr, tx[:], buf); err != nil {
		return err
	}

	d.log("Read    0x%02x: %s", reg, hex.EncodeToString(buf))

	return nil
}

func (d *Device) readByte(reg register) (byte, error) {
	var buf [1]byte
	err := d.readBlock(reg, buf[:])
	return buf[0], err
}

func (d *Device) writeByte(reg register, value byte) error {
	tx := [2]byte{byte(reg), value}

	d.log("Writing 0x%02x: %02x", reg, value)

	return d.bus.Tx(d.addr, tx[:], nil)
}

// writeCommand addresses a register without payload. The interrupt clear
// registers act on this alone.
func (d *Device) writeCommand(reg register) error {
	tx := [1]byte{byte(reg)}

	d.log("Command 0x%02x", reg)

	return d.bus.Tx(d.addr, tx[:], nil)
}

func (d *Device) readBit(reg register, mask byte) (bool, error) {
	v, err := d.readByte(reg)
	return v&mask != 0, err
}

func (d *Device) setBit(reg register, mask byte, value bool) error {
	v, err := d.readByte(reg)
	if err != nil {
		return err
	}

	if value {
		v |= mask
	} else {
		v &^= mask
	}

	return d.writeByte(reg, v)
}

func (d *Device) getBits(f field) (byte, error) {
	v, err := d.readByte(f.reg)
	return (v & f.mask) >> f.pos, err
}

func (d *Device) setBits(f field, value byte) error {
	v, err := d.readByte(f.reg)
	if err != nil {
		return err
	}

	return d.writeByte(f.reg, (v&^f.mask)|((value<<f.pos)&f.mask))
}
