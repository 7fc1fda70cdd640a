package apds9960

import (
	"strings"
	"testing"
)

func TestColorData(t *testing.T) {
	f := newFakeSensor()
	d := newTestDevice(t, f, Opts{})

	copy(f.regs[regCDataL:], []byte{0x34, 0x12, 0x02, 0x01, 0xFF, 0x00, 0x00, 0x80})

	c, err := d.ColorData()
	if err != nil {
		t.Fatal(err)
	}

	expected := ColorData{C: 0x1234, R: 0x0102, G: 0x00FF, B: 0x8000}
	if c != expected {
		t.Errorf("got %+v, expected %+v", c, expected)
	}
	if len(f.reads) != 1 {
		t.Errorf("color channels read in %d transactions", len(f.reads))
	}
}

func TestProximity(t *testing.T) {
	f := newFakeSensor()
	d := newTestDevice(t, f, Opts{})

	f.regs[regPData] = 187

	p, err := d.Proximity()
	if err != nil || p != 187 {
		t.Errorf("got %d, %v", p, err)
	}
}

func TestStatusAndInterruptClears(t *testing.T) {
	f := newFakeSensor()
	d := newTestDevice(t, f, Opts{})

	f.regs[regStatus] = bitStatusAVALID | bitStatusPVALID | bitStatusAINT | bitStatusPINT

	s, err := d.Status()
	if err != nil {
		t.Fatal(err)
	}
	if !s.ColorValid || !s.ProximityValid || !s.ColorInterrupt || !s.ProximityInterrupt || s.GestureInterrupt {
		t.Errorf("decoded %+v", s)
	}

	if err := d.ClearProximityInterrupt(); err != nil {
		t.Fatal(err)
	}
	s, _ = d.Status()
	if s.ProximityInterrupt || !s.ColorInterrupt {
		t.Errorf("after PICLEAR %+v", s)
	}

	if err := d.ClearColorInterrupt(); err != nil {
		t.Fatal(err)
	}
	s, _ = d.Status()
	if s.ColorInterrupt {
		t.Errorf("after CICLEAR %+v", s)
	}

	for _, w := range f.writes {
		if !w.command {
			t.Errorf("interrupt clear wrote data to 0x%02x", w.reg)
		}
	}
}

func TestGestureFIFOControl(t *testing.T) {
	f := newFakeSensor()
	d := newTestDevice(t, f, Opts{})

	f.fifo = datasets(3, quiet)

	valid, err := d.GestureValid()
	if err != nil || !valid {
		t.Errorf("gesture valid %v, %v", valid, err)
	}

	if err := d.ClearGestureFIFO(); err != nil {
		t.Fatal(err)
	}
	if len(f.fifo) != 0 {
		t.Errorf("FIFO not cleared")
	}
	if f.regs[regGConf4]&bitGConf4FIFOClr != 0 {
		t.Errorf("clear bit stuck")
	}

	if err := d.ForceGestureLoop(true); err != nil {
		t.Fatal(err)
	}
	looping, err := d.GestureLooping()
	if err != nil || !looping {
		t.Errorf("looping %v, %v", looping, err)
	}

	if err := d.ForceGestureLoop(false); err != nil {
		t.Fatal(err)
	}
	if looping, _ = d.GestureLooping(); looping {
		t.Errorf("loop not exited")
	}
}

func TestDumpRegisters(t *testing.T) {
	f := newFakeSensor()
	d := newTestDevice(t, f, Opts{})

	f.regs[regEnable] = 0x45
	f.regs[regGConf1] = 0x82

	dump, err := d.DumpRegisters()
	if err != nil {
		t.Fatal(err)
	}
	if len(dump) != len(ConfigRegisters) {
		t.Fatalf("%d registers dumped", len(dump))
	}

	for i := 1; i < len(dump); i++ {
		if dump[i].Address <= dump[i-1].Address {
			t.Errorf("dump not in address order at %s", dump[i].Name)
		}
	}

	if dump[0].Name != "ENABLE" || dump[0].Value != 0x45 {
		t.Errorf("first entry %+v", dump[0])
	}

	line := dump[0].String()
	for _, part := range []string{"ENABLE", "0x80", "0x45", "b01000101", " 69"} {
		if !strings.Contains(line, part) {
			t.Errorf("%q lacks %q", line, part)
		}
	}
}
