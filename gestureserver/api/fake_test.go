package api

import (
	"errors"
	"sync"

	"github.com/BertoldVdb/GestureResearch/apds9960"
)

var errBus = errors.New("bus timeout")

// fakeDevice stands in for a sensor. Gestures are handed out in order, one
// per Gesture call.
type fakeDevice struct {
	mu sync.Mutex

	gestures  []apds9960.Gesture
	gestureCh chan apds9960.Gesture
	config    apds9960.Config
	enabled   map[string]bool

	proximity uint8
	color     apds9960.ColorData

	resets  int
	applied int
	fail    error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		config:  apds9960.DefaultConfig,
		enabled: make(map[string]bool),
	}
}

func (f *fakeDevice) Address() uint16          { return 0x39 }
func (f *fakeDevice) Rotation() int            { return 90 }
func (f *fakeDevice) MaxDatasets() int         { return 64 }
func (f *fakeDevice) HighPassThreshold() uint8 { return 30 }

func (f *fakeDevice) Gesture(blocking bool) (apds9960.Gesture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		return apds9960.None, f.fail
	}
	if f.gestureCh != nil {
		select {
		case g := <-f.gestureCh:
			return g, nil
		default:
			return apds9960.None, nil
		}
	}
	if len(f.gestures) == 0 {
		return apds9960.None, nil
	}
	g := f.gestures[0]
	f.gestures = f.gestures[1:]
	return g, nil
}

func (f *fakeDevice) Proximity() (uint8, error) {
	return f.proximity, f.fail
}

func (f *fakeDevice) ColorData() (apds9960.ColorData, error) {
	return f.color, f.fail
}

func (f *fakeDevice) Status() (apds9960.Status, error) {
	return apds9960.Status{ProximityValid: true}, f.fail
}

func (f *fakeDevice) ReadConfig() (apds9960.Config, error) {
	return f.config, f.fail
}

func (f *fakeDevice) ApplyConfig(c apds9960.Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	f.applied++
	f.config = c
	return f.fail
}

func (f *fakeDevice) DumpRegisters() ([]apds9960.RegisterValue, error) {
	return []apds9960.RegisterValue{
		{RegisterInfo: apds9960.ConfigRegisters[0], Value: 0x45},
		{RegisterInfo: apds9960.ConfigRegisters[1], Value: 0xFF},
	}, f.fail
}

func (f *fakeDevice) Reset() error {
	f.resets++
	f.config = apds9960.Config{}
	f.enabled = make(map[string]bool)
	return f.fail
}

func (f *fakeDevice) Defaults() error {
	return f.ApplyConfig(apds9960.DefaultConfig)
}

func (f *fakeDevice) setEnabled(name string, enable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.enabled[name] = enable
	return f.fail
}

func (f *fakeDevice) SetEnabled(enable bool) error          { return f.setEnabled("power", enable) }
func (f *fakeDevice) SetProximityEnabled(enable bool) error { return f.setEnabled("proximity", enable) }
func (f *fakeDevice) SetGestureEnabled(enable bool) error   { return f.setEnabled("gesture", enable) }
func (f *fakeDevice) SetColorEnabled(enable bool) error     { return f.setEnabled("color", enable) }
