package apds9960

import (
	"fmt"
	"strings"
)

// Gesture is a detected swipe direction. The numeric values are stable.
type Gesture int

const (
	None  Gesture = 0
	Up    Gesture = 1
	Down  Gesture = 2
	Left  Gesture = 3
	Right Gesture = 4
)

var gestureNames = [...]string{"None", "Up", "Down", "Left", "Right"}

func (g Gesture) String() string {
	if g < 0 || int(g) >= len(gestureNames) {
		return fmt.Sprintf("Gesture(%d)", int(g))
	}
	return gestureNames[g]
}

// ParseGesture is the inverse of Gesture.String. Case is ignored.
func ParseGesture(s string) (Gesture, error) {
	for i, name := range gestureNames {
		if strings.EqualFold(name, s) {
			return Gesture(i), nil
		}
	}
	return None, fmt.Errorf("apds9960: unknown gesture %q", s)
}

func (g Gesture) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *Gesture) UnmarshalText(text []byte) error {
	v, err := ParseGesture(string(text))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

const gestureDeltaThreshold = 30

// ratio returns the signed percentage difference of a and b, or 0 when
// both are zero.
func ratio(a, b uint8) int {
	sum := int(a) + int(b)
	if sum == 0 {
		return 0
	}
	return ((int(a) - int(b)) * 100) / sum
}

func axisState(delta int) int {
	switch {
	case delta >= gestureDeltaThreshold:
		return 1
	case delta <= -gestureDeltaThreshold:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Classify derives a gesture from the first and last dataset of a
// dataframe. Intermediate datasets are ignored.
func Classify(frame []Dataset) Gesture {
	if len(frame) < 2 {
		return None
	}

	first, last := frame[0], frame[len(frame)-1]

	deltaUD := ratio(last.Up, last.Down) - ratio(first.Up, first.Down)
	deltaLR := ratio(last.Left, last.Right) - ratio(first.Left, first.Right)

	verticalWins := abs(deltaUD) > abs(deltaLR)

	switch [2]int{axisState(deltaUD), axisState(deltaLR)} {
	case [2]int{-1, 0}:
		return Up
	case [2]int{1, 0}:
		return Down
	case [2]int{0, -1}:
		return Left
	case [2]int{0, 1}:
		return Right

	case [2]int{-1, 1}:
		if verticalWins {
			return Up
		}
		return Right
	case [2]int{1, -1}:
		if verticalWins {
			return Down
		}
		return Left
	case [2]int{-1, -1}:
		if verticalWins {
			return Up
		}
		return Left
	case [2]int{1, 1}:
		// Resolves to Left, not Right, on a tie or horizontal win.
		if verticalWins {
			return Down
		}
		return Left
	}

	return None
}

var rotationOrder = [4]Gesture{Up, Right, Down, Left}

// Rotate maps a gesture seen by a sensor mounted at rotation degrees back
// to the frame of the user. Rotation must be a multiple of 90.
func Rotate(g Gesture, rotation int) Gesture {
	if g == None || rotation == 0 {
		return g
	}

	for i, v := range rotationOrder {
		if v == g {
			steps := ((i+rotation/90)%4 + 4) % 4
			return rotationOrder[steps]
		}
	}

	return g
}

// Gesture reads a dataframe from the FIFO and classifies it, corrected for
// the mounting rotation. None means nothing recognisable happened.
func (d *Device) Gesture(blocking bool) (Gesture, error) {
	frame, err := d.ReadDataframe(blocking)
	if err != nil {
		return None, err
	}

	g := Rotate(Classify(frame), d.rotation)
	if g != None {
		d.log("Gesture %s from %d datasets", g, len(frame))
	}

	return g, nil
}
