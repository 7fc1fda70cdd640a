// Package sensoropen connects an APDS9960 driver to a concrete I²C bus:
// a host bus through periph.io, an MCP2221A USB bridge, or a TinyGo
// machine bus.
package sensoropen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BertoldVdb/GestureResearch/apds9960"
	"github.com/BertoldVdb/GestureResearch/apds9960/sensoropen/mcp2221a"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

// PowerUpDelay is the time given to a freshly powered sensor before the
// first bus transaction.
var PowerUpDelay = 10 * time.Millisecond

var sleep = time.Sleep

// powerUp switches the sensor supply on and waits for it to come up.
func powerUp(set func(high bool) error) error {
	if err := set(true); err != nil {
		return err
	}
	sleep(PowerUpDelay)
	return nil
}

// BridgePID is the USB product ID OpenSensorUSB looks for.
var BridgePID uint16 = mcp2221a.PID

var (
	_ apds9960.Bus = i2c.Bus(nil)
	_ apds9960.Bus = drivers.I2C(nil)
	_ apds9960.Bus = (*mcp2221a.Bridge)(nil)
)

// Sensor is an opened APDS9960 together with the resources backing its bus.
type Sensor struct {
	*apds9960.Device

	Path string

	close func() error
}

// Close powers the sensor down where a power switch is available and
// releases the bus.
func (s *Sensor) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// busLogger wraps a Bus so that every transaction lands in the log with the
// bus name in front of it.
type busLogger struct {
	bus     apds9960.Bus
	name    string
	logFunc apds9960.LogFunc
}

func (b busLogger) Tx(addr uint16, w []byte, r []byte) error {
	err := b.bus.Tx(addr, w, r)
	if err != nil && b.logFunc != nil {
		b.logFunc("%s: transaction with 0x%02x failed: %v", b.name, addr, err)
	}
	return err
}

func open(bus apds9960.Bus, name string, opts *apds9960.Opts, logFunc apds9960.LogFunc, closeFunc func() error) (*Sensor, error) {
	dev, err := apds9960.New(busLogger{bus: bus, name: name, logFunc: logFunc}, opts, logFunc)
	if err != nil {
		if closeFunc != nil {
			closeFunc()
		}
		return nil, err
	}

	return &Sensor{
		Device: dev,
		Path:   name,
		close:  closeFunc,
	}, nil
}

// OpenSensorPlatform opens the sensor on a host I²C bus. If powerPin is
// set, that GPIO powers the sensor and is driven low on Close.
func OpenSensorPlatform(busID string, powerPin string, opts *apds9960.Opts, logFunc apds9960.LogFunc) (*Sensor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}

	bus, err := i2creg.Open(busID)
	if err != nil {
		return nil, fmt.Errorf("could not open bus: %w", err)
	}

	var power gpio.PinIO
	if powerPin != "" {
		power = gpioreg.ByName(powerPin)
		if power == nil {
			bus.Close()
			return nil, errors.New("power gpio not found")
		}

		err := powerUp(func(high bool) error {
			return power.Out(gpio.Level(high))
		})
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("could not power sensor: %w", err)
		}
	}

	closeFunc := func() error {
		if power != nil {
			power.Out(gpio.Low)
		}
		return bus.Close()
	}

	s, err := open(bus, "platform:"+bus.String(), opts, logFunc, closeFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sensor: %w", err)
	}

	return s, nil
}

// OpenSensorUSB opens the sensor behind an MCP2221A bridge. GP0 of the
// bridge switches the sensor supply.
func OpenSensorUSB(serial string, opts *apds9960.Opts, logFunc apds9960.LogFunc) (*Sensor, error) {
	bridge, err := mcp2221a.Open(serial, BridgePID)
	if err != nil {
		return nil, err
	}

	if err := bridge.SetSpeed(400000); err != nil {
		bridge.Close()
		return nil, err
	}

	if err := powerUp(func(high bool) error { return bridge.SetGPIO(0, high) }); err != nil {
		bridge.Close()
		return nil, err
	}

	closeFunc := func() error {
		err := bridge.SetGPIO(0, false)
		if cerr := bridge.Close(); err == nil {
			err = cerr
		}
		return err
	}

	s, err := open(bridge, "usb:"+serial, opts, logFunc, closeFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sensor via USB: %w", err)
	}

	return s, nil
}

// OpenSensorTinyGo opens the sensor on a configured TinyGo I²C bus. The bus
// stays owned by the caller.
func OpenSensorTinyGo(bus drivers.I2C, opts *apds9960.Opts, logFunc apds9960.LogFunc) (*Sensor, error) {
	return open(bus, "tinygo", opts, logFunc, nil)
}

func getPart(parts []string, index int, def string) string {
	if index >= len(parts) || parts[index] == "" {
		return def
	}
	return parts[index]
}

func parseAddress(s string) (uint16, error) {
	addr, err := strconv.ParseUint(s, 0, 7)
	if err != nil {
		return 0, fmt.Errorf("invalid I²C address %q: %w", s, err)
	}
	return uint16(addr), nil
}

// OpenSensor opens a sensor described by path:
//
//	usb:<serial>:<addr>
//	platform:<bus>:<powerpin>:<addr>
//
// Missing fields take defaults. The address always comes from path.
func OpenSensor(path string, opts *apds9960.Opts, logFunc apds9960.LogFunc) (*Sensor, error) {
	o := apds9960.DefaultOpts
	if opts != nil {
		o = *opts
	}

	parts := strings.Split(path, ":")

	switch parts[0] {
	case "usb":
		addr, err := parseAddress(getPart(parts, 2, "0x39"))
		if err != nil {
			return nil, err
		}
		o.Address = addr
		return OpenSensorUSB(getPart(parts, 1, ""), &o, logFunc)

	case "platform":
		addr, err := parseAddress(getPart(parts, 3, "0x39"))
		if err != nil {
			return nil, err
		}
		o.Address = addr
		return OpenSensorPlatform(getPart(parts, 1, "/dev/i2c-1"), getPart(parts, 2, ""), &o, logFunc)
	}

	return nil, errors.New("sensor type not supported, use 'usb' or 'platform'")
}
