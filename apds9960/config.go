package apds9960

import (
	"errors"
	"fmt"
)

var ErrOutOfRange = errors.New("apds9960: value out of range")

// RangeError reports a configuration value outside its documented range.
// It matches ErrOutOfRange with errors.Is.
type RangeError struct {
	Field    string
	Value    int
	Min, Max int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("apds9960: %s %d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}

func checkRange(name string, value int, min int, max int) error {
	if value < min || value > max {
		return &RangeError{Field: name, Value: value, Min: min, Max: max}
	}
	return nil
}

// ProximityThreshold controls the internal proximity interrupt. It asserts
// once Persistence consecutive readings fall outside [Low, High].
type ProximityThreshold struct {
	Low         uint8 `json:"low" yaml:"low" mapstructure:"low"`
	High        uint8 `json:"high" yaml:"high" mapstructure:"high"`
	Persistence uint8 `json:"persistence" yaml:"persistence" mapstructure:"persistence"` // 0-15
}

func (t ProximityThreshold) Validate() error {
	return checkRange("proximity persistence", int(t.Persistence), 0, 15)
}

// LEDConfig describes the IR LED pulse train used by the proximity or the
// gesture engine. Boost is a single setting shared by both engines.
type LEDConfig struct {
	PulseCount  uint8 `json:"pulse_count" yaml:"pulse_count" mapstructure:"pulse_count"`    // 0-63: 1-64 pulses
	PulseLength uint8 `json:"pulse_length" yaml:"pulse_length" mapstructure:"pulse_length"` // 0-3: 4, 8, 16, 32 us
	Drive       uint8 `json:"drive" yaml:"drive" mapstructure:"drive"`                      // 0-3: 100, 50, 25, 12.5 mA
	Boost       uint8 `json:"boost" yaml:"boost" mapstructure:"boost"`                      // 0-3: 100, 150, 200, 300 %
}

func (c LEDConfig) Validate() error {
	if err := checkRange("pulse count", int(c.PulseCount), 0, 63); err != nil {
		return err
	}
	if err := checkRange("pulse length", int(c.PulseLength), 0, 3); err != nil {
		return err
	}
	if err := checkRange("LED drive", int(c.Drive), 0, 3); err != nil {
		return err
	}
	return checkRange("LED boost", int(c.Boost), 0, 3)
}

func (c LEDConfig) Pulses() int {
	return int(c.PulseCount) + 1
}

func (c LEDConfig) PulseLengthMicros() int {
	return 4 << (c.PulseLength & 3)
}

func (c LEDConfig) DriveMilliamps() float64 {
	return 100 / float64(int(1)<<(c.Drive&3))
}

func (c LEDConfig) BoostPercent() int {
	return [4]int{100, 150, 200, 300}[c.Boost&3]
}

// Gain is the proximity or gesture photodiode gain: 0-3 for 1x, 2x, 4x, 8x.
type Gain uint8

func (g Gain) Validate() error {
	return checkRange("gain", int(g), 0, 3)
}

func (g Gain) Multiplier() int {
	return 1 << (g & 3)
}

// ColorGain is the color ADC gain: 0-3 for 1x, 4x, 16x, 64x.
type ColorGain uint8

func (g ColorGain) Validate() error {
	return checkRange("color gain", int(g), 0, 3)
}

func (g ColorGain) Multiplier() int {
	return 1 << (2 * (g & 3))
}

// GestureEngineConfig controls entry into and exit from the gesture loop.
type GestureEngineConfig struct {
	Entry       uint8 `json:"entry" yaml:"entry" mapstructure:"entry"`                   // proximity value that starts the loop
	Exit        uint8 `json:"exit" yaml:"exit" mapstructure:"exit"`                      // all channels below this count as exit
	Persistence uint8 `json:"persistence" yaml:"persistence" mapstructure:"persistence"` // 0-3: 1, 2, 4, 7 exit cycles
	WaitTime    uint8 `json:"wait_time" yaml:"wait_time" mapstructure:"wait_time"`       // 0-7 cycles between loop iterations
}

func (c GestureEngineConfig) Validate() error {
	if err := checkRange("gesture persistence", int(c.Persistence), 0, 3); err != nil {
		return err
	}
	return checkRange("gesture wait time", int(c.WaitTime), 0, 7)
}

func (c GestureEngineConfig) PersistenceCycles() int {
	return [4]int{1, 2, 4, 7}[c.Persistence&3]
}

// FIFOThreshold is the FIFO depth that raises the gesture interrupt:
// 0-3 for 1, 4, 8, 16 datasets.
type FIFOThreshold uint8

func (t FIFOThreshold) Validate() error {
	return checkRange("gesture FIFO threshold", int(t), 0, 3)
}

func (t FIFOThreshold) Datasets() int {
	return [4]int{1, 4, 8, 16}[t&3]
}

// Config is the complete engine configuration of the sensor.
type Config struct {
	ProximityThreshold   ProximityThreshold  `json:"proximity_threshold" yaml:"proximity_threshold" mapstructure:"proximity_threshold"`
	ProximityLED         LEDConfig           `json:"proximity_led" yaml:"proximity_led" mapstructure:"proximity_led"`
	ProximityGain        Gain                `json:"proximity_gain" yaml:"proximity_gain" mapstructure:"proximity_gain"`
	GestureEngine        GestureEngineConfig `json:"gesture_engine" yaml:"gesture_engine" mapstructure:"gesture_engine"`
	GestureLED           LEDConfig           `json:"gesture_led" yaml:"gesture_led" mapstructure:"gesture_led"`
	GestureGain          Gain                `json:"gesture_gain" yaml:"gesture_gain" mapstructure:"gesture_gain"`
	GestureFIFOThreshold FIFOThreshold       `json:"gesture_fifo_threshold" yaml:"gesture_fifo_threshold" mapstructure:"gesture_fifo_threshold"`
	ColorIntegrationTime int                 `json:"color_integration_time" yaml:"color_integration_time" mapstructure:"color_integration_time"` // 1-256 cycles
	ColorGain            ColorGain           `json:"color_gain" yaml:"color_gain" mapstructure:"color_gain"`
}

func (c Config) Validate() error {
	checks := []func() error{
		c.ProximityThreshold.Validate,
		c.ProximityLED.Validate,
		c.ProximityGain.Validate,
		c.GestureEngine.Validate,
		c.GestureLED.Validate,
		c.GestureGain.Validate,
		c.GestureFIFOThreshold.Validate,
		func() error { return checkRange("color integration time", c.ColorIntegrationTime, 1, 256) },
		c.ColorGain.Validate,
	}

	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// DefaultConfig is the baseline applied by Defaults.
var DefaultConfig = Config{
	ProximityThreshold:   ProximityThreshold{Low: 0, High: 5, Persistence: 4},
	ProximityLED:         LEDConfig{PulseCount: 7, PulseLength: 1, Drive: 0, Boost: 0},
	ProximityGain:        1,
	GestureEngine:        GestureEngineConfig{Entry: 5, Exit: 30, Persistence: 2, WaitTime: 1},
	GestureLED:           LEDConfig{PulseCount: 5, PulseLength: 2, Drive: 0, Boost: 0},
	GestureGain:          2,
	GestureFIFOThreshold: 2,
	ColorIntegrationTime: 74,
	ColorGain:            1,
}

/* Enable flags */

func (d *Device) Enabled() (bool, error) {
	return d.readBit(regEnable, bitEnablePON)
}

// SetEnabled powers the sensor on or puts it into its low power sleep
// state. I2C access keeps working while asleep.
func (d *Device) SetEnabled(enable bool) error {
	return d.setBit(regEnable, bitEnablePON, enable)
}

func (d *Device) ProximityEnabled() (bool, error) {
	return d.readBit(regEnable, bitEnablePEN)
}

func (d *Device) SetProximityEnabled(enable bool) error {
	return d.setBit(regEnable, bitEnablePEN, enable)
}

func (d *Device) GestureEnabled() (bool, error) {
	return d.readBit(regEnable, bitEnableGEN)
}

func (d *Device) SetGestureEnabled(enable bool) error {
	return d.setBit(regEnable, bitEnableGEN, enable)
}

func (d *Device) ColorEnabled() (bool, error) {
	return d.readBit(regEnable, bitEnableAEN)
}

func (d *Device) SetColorEnabled(enable bool) error {
	return d.setBit(regEnable, bitEnableAEN, enable)
}

func (d *Device) ProximityInterruptEnabled() (bool, error) {
	return d.readBit(regEnable, bitEnablePIEN)
}

// SetProximityInterruptEnabled routes the internal proximity interrupt to
// the INT pin.
func (d *Device) SetProximityInterruptEnabled(enable bool) error {
	return d.setBit(regEnable, bitEnablePIEN, enable)
}

func (d *Device) GestureInterruptEnabled() (bool, error) {
	return d.readBit(regGConf4, bitGConf4GIEN)
}

// SetGestureInterruptEnabled routes the internal gesture interrupt to the
// INT pin.
func (d *Device) SetGestureInterruptEnabled(enable bool) error {
	return d.setBit(regGConf4, bitGConf4GIEN, enable)
}

/* Proximity engine */

func (d *Device) ProximityThreshold() (ProximityThreshold, error) {
	var t ProximityThreshold
	var err error

	if t.Low, err = d.readByte(regPILT); err != nil {
		return t, err
	}
	if t.High, err = d.readByte(regPIHT); err != nil {
		return t, err
	}
	t.Persistence, err = d.getBits(fieldPPers)
	return t, err
}

func (d *Device) SetProximityThreshold(t ProximityThreshold) error {
	if err := t.Validate(); err != nil {
		return err
	}

	if err := d.writeByte(regPILT, t.Low); err != nil {
		return err
	}
	if err := d.writeByte(regPIHT, t.High); err != nil {
		return err
	}
	return d.setBits(fieldPPers, t.Persistence)
}

func (d *Device) readLED(pulse, length, drive field) (LEDConfig, error) {
	var c LEDConfig
	var err error

	if c.PulseCount, err = d.getBits(pulse); err != nil {
		return c, err
	}
	if c.PulseLength, err = d.getBits(length); err != nil {
		return c, err
	}
	if c.Drive, err = d.getBits(drive); err != nil {
		return c, err
	}
	c.Boost, err = d.getBits(fieldLEDBoost)
	return c, err
}

func (d *Device) writeLED(c LEDConfig, pulse, length, drive field) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := d.setBits(pulse, c.PulseCount); err != nil {
		return err
	}
	if err := d.setBits(length, c.PulseLength); err != nil {
		return err
	}
	if err := d.setBits(drive, c.Drive); err != nil {
		return err
	}
	return d.setBits(fieldLEDBoost, c.Boost)
}

func (d *Device) ProximityLED() (LEDConfig, error) {
	return d.readLED(fieldPPulse, fieldPPLen, fieldLDrive)
}

func (d *Device) SetProximityLED(c LEDConfig) error {
	return d.writeLED(c, fieldPPulse, fieldPPLen, fieldLDrive)
}

func (d *Device) ProximityGain() (Gain, error) {
	v, err := d.getBits(fieldPGain)
	return Gain(v), err
}

func (d *Device) SetProximityGain(g Gain) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return d.setBits(fieldPGain, byte(g))
}

/* Gesture engine */

func (d *Device) GestureEngine() (GestureEngineConfig, error) {
	var c GestureEngineConfig
	var err error

	if c.Entry, err = d.readByte(regGPEnTh); err != nil {
		return c, err
	}
	if c.Exit, err = d.readByte(regGExTh); err != nil {
		return c, err
	}
	if c.Persistence, err = d.getBits(fieldGExPers); err != nil {
		return c, err
	}
	c.WaitTime, err = d.getBits(fieldGWTime)
	return c, err
}

func (d *Device) SetGestureEngine(c GestureEngineConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := d.writeByte(regGPEnTh, c.Entry); err != nil {
		return err
	}
	if err := d.writeByte(regGExTh, c.Exit); err != nil {
		return err
	}
	if err := d.setBits(fieldGExPers, c.Persistence); err != nil {
		return err
	}
	return d.setBits(fieldGWTime, c.WaitTime)
}

func (d *Device) GestureLED() (LEDConfig, error) {
	return d.readLED(fieldGPulse, fieldGPLen, fieldGLDrive)
}

func (d *Device) SetGestureLED(c LEDConfig) error {
	return d.writeLED(c, fieldGPulse, fieldGPLen, fieldGLDrive)
}

func (d *Device) GestureGain() (Gain, error) {
	v, err := d.getBits(fieldGGain)
	return Gain(v), err
}

func (d *Device) SetGestureGain(g Gain) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return d.setBits(fieldGGain, byte(g))
}

func (d *Device) GestureFIFOThreshold() (FIFOThreshold, error) {
	v, err := d.getBits(fieldGFIFOTh)
	return FIFOThreshold(v), err
}

func (d *Device) SetGestureFIFOThreshold(t FIFOThreshold) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return d.setBits(fieldGFIFOTh, byte(t))
}

/* Color engine */

// ColorIntegrationTime returns the ADC integration time in cycles (1-256).
func (d *Device) ColorIntegrationTime() (int, error) {
	v, err := d.readByte(regATime)
	return 256 - int(v), err
}

func (d *Device) SetColorIntegrationTime(cycles int) error {
	if err := checkRange("color integration time", cycles, 1, 256); err != nil {
		return err
	}
	return d.writeByte(regATime, byte(256-cycles))
}

func (d *Device) ColorGain() (ColorGain, error) {
	v, err := d.getBits(fieldAGain)
	return ColorGain(v), err
}

func (d *Device) SetColorGain(g ColorGain) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return d.setBits(fieldAGain, byte(g))
}

/* Rotation */

// Rotation returns the mounting rotation applied to detected gestures.
func (d *Device) Rotation() int {
	return d.rotation
}

func (d *Device) SetRotation(degrees int) error {
	switch degrees {
	case 0, 90, 180, 270:
		d.rotation = degrees
		return nil
	}
	return &RangeError{Field: "rotation", Value: degrees, Min: 0, Max: 270}
}

/* Aggregate */

// ReadConfig reads every engine setting from the sensor.
func (d *Device) ReadConfig() (Config, error) {
	var c Config
	var err error

	if c.ProximityThreshold, err = d.ProximityThreshold(); err != nil {
		return c, err
	}
	if c.ProximityLED, err = d.ProximityLED(); err != nil {
		return c, err
	}
	if c.ProximityGain, err = d.ProximityGain(); err != nil {
		return c, err
	}
	if c.GestureEngine, err = d.GestureEngine(); err != nil {
		return c, err
	}
	if c.GestureLED, err = d.GestureLED(); err != nil {
		return c, err
	}
	if c.GestureGain, err = d.GestureGain(); err != nil {
		return c, err
	}
	if c.GestureFIFOThreshold, err = d.GestureFIFOThreshold(); err != nil {
		return c, err
	}
	if c.ColorIntegrationTime, err = d.ColorIntegrationTime(); err != nil {
		return c, err
	}
	c.ColorGain, err = d.ColorGain()
	return c, err
}

// ApplyConfig validates all of c and only then writes it. Both LED groups
// share one boost field: a boost that differs from the sensor's current
// value is applied to both, and if both differ the one of GestureLED wins.
func (d *Device) ApplyConfig(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}

	boost, err := d.getBits(fieldLEDBoost)
	if err != nil {
		return err
	}
	if c.GestureLED.Boost == boost {
		c.GestureLED.Boost = c.ProximityLED.Boost
	}
	c.ProximityLED.Boost = c.GestureLED.Boost

	steps := []func() error{
		func() error { return d.SetProximityThreshold(c.ProximityThreshold) },
		func() error { return d.SetProximityLED(c.ProximityLED) },
		func() error { return d.SetProximityGain(c.ProximityGain) },
		func() error { return d.SetGestureEngine(c.GestureEngine) },
		func() error { return d.SetGestureLED(c.GestureLED) },
		func() error { return d.SetGestureGain(c.GestureGain) },
		func() error { return d.SetGestureFIFOThreshold(c.GestureFIFOThreshold) },
		func() error { return d.SetColorIntegrationTime(c.ColorIntegrationTime) },
		func() error { return d.SetColorGain(c.ColorGain) },
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

/* Lifecycle */

// Power-on values of the configuration registers.
var resetValues = []struct {
	reg   register
	value byte
}{
	{regATime, 0xFF},
	{regWTime, 0xFF},
	{regPILT, 0x00},
	{regPIHT, 0x00},
	{regPers, 0x00},
	{regConfig1, 0x40},
	{regPPulse, 0x40},
	{regControl, 0x00},
	{regConfig2, 0x01},
	{regConfig3, 0x00},
	{regGPEnTh, 0x00},
	{regGExTh, 0x00},
	{regGConf1, 0x00},
	{regGConf2, 0x00},
	{regGPulse, 0x40},
	{regGConf3, 0x00},
	{regGConf4, 0x00},
}

// Reset disables all engines, restores the power-on configuration, flushes
// the gesture FIFO and interrupts, and power cycles the sensor. It returns
// after the wake delay, so the sensor is ready for use.
func (d *Device) Reset() error {
	d.log("Resetting sensor")

	if err := d.setBit(regEnable, bitEnablePEN|bitEnableGEN|bitEnableAEN|bitEnablePIEN, false); err != nil {
		return err
	}

	for _, m := range resetValues {
		if err := d.writeByte(m.reg, m.value); err != nil {
			return err
		}
	}

	if err := d.ClearGestureFIFO(); err != nil {
		return err
	}

	if err := d.ClearAllInterrupts(); err != nil {
		return err
	}

	if err := d.SetEnabled(false); err != nil {
		return err
	}
	d.sleep(sleepEntryDelay)

	if err := d.SetEnabled(true); err != nil {
		return err
	}
	d.sleep(wakeDelay)

	return nil
}

// Defaults applies DefaultConfig.
func (d *Device) Defaults() error {
	d.log("Applying default configuration")

	return d.ApplyConfig(DefaultConfig)
}
