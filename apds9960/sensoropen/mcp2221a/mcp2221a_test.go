package mcp2221a

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// fakeHID answers MCP2221A reports for a single I²C target.
type fakeHID struct {
	target  uint8
	state   byte
	reg     []byte // bytes the target returns on read
	written [][]byte
	gpio    [GPIOPins]byte

	last   []byte
	closed bool
}

func (f *fakeHID) Write(b []byte) (int, error) {
	f.last = append([]byte(nil), b...)
	return len(b), nil
}

func (f *fakeHID) Read(b []byte) (int, error) {
	rsp := make([]byte, MsgSize)
	cmd := f.last[0]
	rsp[0] = cmd

	switch cmd {
	case cmdStatus:
		rsp[8] = f.state

	case cmdI2CWrite, cmdI2CWriteNoStop:
		n := int(f.last[1]) | int(f.last[2])<<8
		if f.last[3]>>1 != f.target {
			f.state = stateAddrNACK
			rsp[1] = 1
			rsp[2] = stateAddrNACK
			break
		}
		if n > chunkMax {
			n = chunkMax
		}
		f.written = append(f.written, append([]byte(nil), f.last[4:4+n]...))
		f.state = stateIdle
		if cmd == cmdI2CWriteNoStop {
			f.state = stateWritingNoStop
		}

	case cmdI2CRead, cmdI2CReadRep:
		f.state = stateIdle

	case cmdI2CGetData:
		rsp[2] = stateReadComplete
		n := copy(rsp[4:], f.reg)
		f.reg = f.reg[n:]
		rsp[3] = byte(n)

	case cmdGPIOSet:
		for pin := 0; pin < GPIOPins; pin++ {
			if f.last[2+4*pin] == 0xFF {
				f.gpio[pin] = f.last[3+4*pin]
			}
		}

	case cmdGPIOGet:
		for pin := 0; pin < GPIOPins; pin++ {
			rsp[2+2*pin] = f.gpio[pin]
		}
	}

	return copy(b, rsp), nil
}

func (f *fakeHID) Close() error {
	f.closed = true
	return nil
}

func newTestBridge(f *fakeHID) *Bridge {
	b := New(f)
	b.sleep = func(time.Duration) {}
	return b
}

func TestTxWriteThenRead(t *testing.T) {
	f := &fakeHID{target: 0x39, reg: []byte{0xAB, 0x01}}
	b := newTestBridge(f)

	r := make([]byte, 2)
	if err := b.Tx(0x39, []byte{0x92}, r); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(r, []byte{0xAB, 0x01}) {
		t.Errorf("read %x", r)
	}
	if len(f.written) != 1 || !bytes.Equal(f.written[0], []byte{0x92}) {
		t.Errorf("written %x", f.written)
	}
}

func TestTxLongRead(t *testing.T) {
	data := make([]byte, 128)
	for i := range data {
		data[i] = byte(i)
	}

	f := &fakeHID{target: 0x39, reg: append([]byte(nil), data...)}
	b := newTestBridge(f)

	r := make([]byte, len(data))
	if err := b.Tx(0x39, []byte{0xFC}, r); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r, data) {
		t.Errorf("read %x", r)
	}
}

func TestTxNACK(t *testing.T) {
	f := &fakeHID{target: 0x39}
	b := newTestBridge(f)

	err := b.Tx(0x40, []byte{0x80, 0x01}, nil)
	if !errors.Is(err, ErrNACK) {
		t.Fatalf("expected NACK, got %v", err)
	}
}

func TestGPIO(t *testing.T) {
	f := &fakeHID{}
	b := newTestBridge(f)

	if err := b.SetGPIO(0, true); err != nil {
		t.Fatal(err)
	}
	high, err := b.GPIO(0)
	if err != nil || !high {
		t.Errorf("GP0 %v, %v", high, err)
	}

	if err := b.SetGPIO(0, false); err != nil {
		t.Fatal(err)
	}
	if high, _ = b.GPIO(0); high {
		t.Errorf("GP0 still high")
	}

	if err := b.SetGPIO(4, true); err == nil {
		t.Errorf("accepted pin 4")
	}
}

func TestSetSpeed(t *testing.T) {
	f := &fakeHID{}
	b := newTestBridge(f)

	if err := b.SetSpeed(400000); err != nil {
		t.Fatal(err)
	}
	if f.last[3] != 0x20 || f.last[4] != 27 {
		t.Errorf("divider report %x", f.last[:5])
	}

	if err := b.SetSpeed(10); err == nil {
		t.Errorf("accepted 10 bps")
	}
}
