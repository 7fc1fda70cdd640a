package apds9960

import (
	"fmt"
	"testing"
	"time"
)

// busWrite is one write transaction seen by fakeSensor. Commands carry no
// value.
type busWrite struct {
	reg     register
	value   byte
	command bool
}

// fakeSensor emulates the register file and gesture FIFO of an APDS9960
// behind the Bus interface.
type fakeSensor struct {
	regs [256]byte

	fifo     []Dataset
	pending  [][]Dataset // delivered one batch per sleep
	overflow bool

	gintDelay   int // status reads before GINT may assert
	statusReads int

	writes []busWrite
	reads  []register
	sleeps []time.Duration

	failReg register
	failErr error
}

func newFakeSensor() *fakeSensor {
	f := &fakeSensor{}
	f.regs[regID] = deviceID
	return f
}

func (f *fakeSensor) gint() bool {
	return len(f.fifo) > 0 && f.statusReads > f.gintDelay
}

func (f *fakeSensor) sleep(d time.Duration) {
	f.sleeps = append(f.sleeps, d)
	if len(f.pending) > 0 {
		f.fifo = append(f.fifo, f.pending[0]...)
		f.pending = f.pending[1:]
	}
}

func (f *fakeSensor) Tx(addr uint16, w []byte, r []byte) error {
	if addr != DefaultAddress {
		return fmt.Errorf("no device at 0x%02x", addr)
	}
	if len(w) == 0 {
		return fmt.Errorf("empty write")
	}

	reg := register(w[0])
	if f.failErr != nil && (f.failReg == 0 || f.failReg == reg) {
		return f.failErr
	}

	if len(r) == 0 {
		if len(w) == 1 {
			f.command(reg)
		} else {
			f.write(reg, w[1])
		}
		return nil
	}

	f.reads = append(f.reads, reg)

	switch reg {
	case regStatus:
		f.statusReads++
		v := f.regs[regStatus] &^ bitStatusGINT
		if f.gint() {
			v |= bitStatusGINT
		}
		r[0] = v

	case regGFLvl:
		r[0] = byte(len(f.fifo))

	case regGStatus:
		var v byte
		if len(f.fifo) > 0 {
			v |= bitGStatusGValid
		}
		if f.overflow {
			v |= bitGStatusGFOV
		}
		r[0] = v

	case regGFIFOU:
		for i := 0; i+fifoDatasetSize <= len(r) && len(f.fifo) > 0; i += fifoDatasetSize {
			s := f.fifo[0]
			f.fifo = f.fifo[1:]
			r[i], r[i+1], r[i+2], r[i+3] = s.Up, s.Down, s.Left, s.Right
		}

	default:
		copy(r, f.regs[reg:])
	}

	return nil
}

func (f *fakeSensor) write(reg register, v byte) {
	f.writes = append(f.writes, busWrite{reg: reg, value: v})

	if reg == regGConf4 && v&bitGConf4FIFOClr != 0 {
		f.fifo = nil
		f.overflow = false
		v &^= bitGConf4FIFOClr
	}
	f.regs[reg] = v
}

func (f *fakeSensor) command(reg register) {
	f.writes = append(f.writes, busWrite{reg: reg, command: true})

	switch reg {
	case regPIClear:
		f.regs[regStatus] &^= bitStatusPINT
	case regCIClear:
		f.regs[regStatus] &^= bitStatusAINT
	case regAIClear:
		f.regs[regStatus] &^= bitStatusPINT | bitStatusAINT
	}
}

func (f *fakeSensor) clearLog() {
	f.writes = nil
	f.reads = nil
	f.sleeps = nil
}

// newTestDevice returns a Device on f that skips reset and defaults, with
// sleeps routed to the fake.
func newTestDevice(t *testing.T, f *fakeSensor, opts Opts) *Device {
	t.Helper()

	d, err := New(f, &opts, t.Logf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.sleep = f.sleep
	f.clearLog()

	return d
}

func datasets(n int, s Dataset) []Dataset {
	out := make([]Dataset, n)
	for i := range out {
		out[i] = s
	}
	return out
}
