package apds9960

import (
	"runtime"
	"time"
)

// Dataset is one gesture FIFO entry: the photodiode counts of the four
// directional channels.
type Dataset struct {
	Up    uint8 `json:"up"`
	Down  uint8 `json:"down"`
	Left  uint8 `json:"left"`
	Right uint8 `json:"right"`
}

// Valid reports whether the dataset carries usable signal. Saturated and
// empty readings are rejected, as is any reading with a channel below
// threshold.
func (s Dataset) Valid(threshold uint8) bool {
	if s.Up == 0xFF && s.Down == 0xFF && s.Left == 0xFF && s.Right == 0xFF {
		return false
	}
	if s.Up == 0 && s.Down == 0 && s.Left == 0 && s.Right == 0 {
		return false
	}
	return s.Up >= threshold && s.Down >= threshold && s.Left >= threshold && s.Right >= threshold
}

const overflowWaitCycles = 30

func (d *Device) gestureInterrupt() (bool, error) {
	return d.readBit(regStatus, bitStatusGINT)
}

// waitGestureInterrupt spins until the FIFO threshold interrupt is raised.
// There is no timeout: the caller asked to block.
func (d *Device) waitGestureInterrupt() error {
	for {
		gint, err := d.gestureInterrupt()
		if err != nil || gint {
			return err
		}
		runtime.Gosched()
	}
}

// recoverOverflow flushes an overflowed FIFO and gives a gesture in
// progress a few cycles to refill it.
func (d *Device) recoverOverflow() error {
	overflow, err := d.readBit(regGStatus, bitGStatusGFOV)
	if err != nil || !overflow {
		return err
	}

	d.log("Gesture FIFO overflow, flushing")

	if err := d.ClearGestureFIFO(); err != nil {
		return err
	}

	for i := 0; i < overflowWaitCycles; i++ {
		gint, err := d.gestureInterrupt()
		if err != nil || gint {
			return err
		}
		d.sleep(CycleTime)
	}

	return nil
}

// readBurst drains up to one FIFO's worth of datasets and appends the
// valid ones to frame.
func (d *Device) readBurst(frame []Dataset, level int) ([]Dataset, error) {
	n := level * fifoDatasetSize
	if n > fifoMaxBurst {
		n = fifoMaxBurst
	}

	var buf [fifoMaxBurst]byte
	if err := d.readBlock(regGFIFOU, buf[:n]); err != nil {
		return frame, err
	}

	for i := 0; i+fifoDatasetSize <= n; i += fifoDatasetSize {
		s := Dataset{Up: buf[i], Down: buf[i+1], Left: buf[i+2], Right: buf[i+3]}
		if s.Valid(d.highPass) {
			frame = append(frame, s)
		}
	}

	return frame, nil
}

// ReadDataframe collects the valid datasets currently in the gesture FIFO,
// plus whatever keeps arriving while it reads. With blocking set it first
// waits for the gesture interrupt. The result may exceed MaxDatasets by at
// most one FIFO burst. An empty result is not an error.
func (d *Device) ReadDataframe(blocking bool) ([]Dataset, error) {
	if blocking {
		if err := d.waitGestureInterrupt(); err != nil {
			return nil, err
		}
	}

	if err := d.recoverOverflow(); err != nil {
		return nil, err
	}

	level, err := d.readByte(regGFLvl)
	if err != nil || level == 0 {
		return nil, err
	}

	settle := time.Duration(d.highPass) * CycleTime

	var frame []Dataset
	for level > 0 {
		frame, err = d.readBurst(frame, int(level))
		if err != nil {
			return nil, err
		}

		if len(frame) > d.maxDatasets {
			break
		}

		d.sleep(settle)

		if level, err = d.readByte(regGFLvl); err != nil {
			return nil, err
		}
	}

	d.log("Dataframe of %d datasets", len(frame))

	return frame, nil
}
