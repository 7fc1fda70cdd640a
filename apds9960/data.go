package apds9960

import (
	"encoding/binary"
	"fmt"
)

// Proximity returns the latest proximity reading. Larger is closer.
func (d *Device) Proximity() (uint8, error) {
	return d.readByte(regPData)
}

// ColorData holds raw 16 bit counts of the color engine.
type ColorData struct {
	R uint16 `json:"r"`
	G uint16 `json:"g"`
	B uint16 `json:"b"`
	C uint16 `json:"c"`
}

// ColorData reads all four color channels in a single burst so they belong
// to the same integration cycle.
func (d *Device) ColorData() (ColorData, error) {
	var buf [8]byte
	if err := d.readBlock(regCDataL, buf[:]); err != nil {
		return ColorData{}, err
	}

	return ColorData{
		C: binary.LittleEndian.Uint16(buf[0:]),
		R: binary.LittleEndian.Uint16(buf[2:]),
		G: binary.LittleEndian.Uint16(buf[4:]),
		B: binary.LittleEndian.Uint16(buf[6:]),
	}, nil
}

type Status struct {
	ColorValid         bool `json:"color_valid"`
	ProximityValid     bool `json:"proximity_valid"`
	GestureInterrupt   bool `json:"gesture_interrupt"`
	ColorInterrupt     bool `json:"color_interrupt"`
	ProximityInterrupt bool `json:"proximity_interrupt"`
}

func (d *Device) Status() (Status, error) {
	v, err := d.readByte(regStatus)
	if err != nil {
		return Status{}, err
	}

	return Status{
		ColorValid:         v&bitStatusAVALID != 0,
		ProximityValid:     v&bitStatusPVALID != 0,
		GestureInterrupt:   v&bitStatusGINT != 0,
		ColorInterrupt:     v&bitStatusAINT != 0,
		ProximityInterrupt: v&bitStatusPINT != 0,
	}, nil
}

// GestureValid reports whether the gesture FIFO holds valid data.
func (d *Device) GestureValid() (bool, error) {
	return d.readBit(regGStatus, bitGStatusGValid)
}

func (d *Device) ClearProximityInterrupt() error {
	return d.writeCommand(regPIClear)
}

func (d *Device) ClearColorInterrupt() error {
	return d.writeCommand(regCIClear)
}

// ClearAllInterrupts clears every interrupt except the gesture one, which
// only a FIFO read or ClearGestureFIFO resets.
func (d *Device) ClearAllInterrupts() error {
	return d.writeCommand(regAIClear)
}

// ClearGestureFIFO empties the FIFO and clears the gesture interrupt,
// overflow flag and FIFO level. The clear bit resets itself.
func (d *Device) ClearGestureFIFO() error {
	return d.setBit(regGConf4, bitGConf4FIFOClr, true)
}

// GestureLooping reports whether the gesture state machine is running.
func (d *Device) GestureLooping() (bool, error) {
	return d.readBit(regGConf4, bitGConf4GMode)
}

// ForceGestureLoop enters or leaves the gesture loop regardless of the
// entry and exit thresholds.
func (d *Device) ForceGestureLoop(loop bool) error {
	return d.setBit(regGConf4, bitGConf4GMode, loop)
}

// RegisterValue is one line of a register dump.
type RegisterValue struct {
	RegisterInfo
	Value byte `json:"value"`
}

func (r RegisterValue) String() string {
	return fmt.Sprintf("%-12s 0x%02X | 0x%02X | b%08b | %3d", r.Name, r.Address, r.Value, r.Value, r.Value)
}

// DumpRegisters reads every register in ConfigRegisters.
func (d *Device) DumpRegisters() ([]RegisterValue, error) {
	result := make([]RegisterValue, 0, len(ConfigRegisters))

	for _, info := range ConfigRegisters {
		v, err := d.readByte(register(info.Address))
		if err != nil {
			return nil, err
		}
		result = append(result, RegisterValue{RegisterInfo: info, Value: v})
	}

	return result, nil
}
