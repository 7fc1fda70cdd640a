package gesturemqtt

import (
	"fmt"
	"strings"

	"github.com/BertoldVdb/GestureResearch/apds9960"
)

// Command is one Tasmota command: published as Payload to cmnd/<bulb>/<Op>.
type Command struct {
	Op      string
	Payload string
}

func (c Command) Topic(bulb string) string {
	return "cmnd/" + bulb + "/" + c.Op
}

func (c Command) String() string {
	return c.Op + " " + c.Payload
}

// ParseCommand parses "<op> <payload>", for example "Dimmer +".
func ParseCommand(s string) (Command, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Command{}, fmt.Errorf("gesturemqtt: invalid command %q, expected '<op> <payload>'", s)
	}
	return Command{Op: fields[0], Payload: fields[1]}, nil
}

// DefaultActions switches the bulb with vertical swipes and dims it with
// horizontal ones.
var DefaultActions = map[apds9960.Gesture]Command{
	apds9960.Up:    {"POWER", "ON"},
	apds9960.Down:  {"POWER", "OFF"},
	apds9960.Right: {"Dimmer", "+"},
	apds9960.Left:  {"Dimmer", "-"},
}

// ParseActions turns a gesture name to command string map, as found in the
// configuration file, into an action table. An empty map gives
// DefaultActions.
func ParseActions(m map[string]string) (map[apds9960.Gesture]Command, error) {
	if len(m) == 0 {
		return DefaultActions, nil
	}

	actions := make(map[apds9960.Gesture]Command)
	for name, cmd := range m {
		g, err := apds9960.ParseGesture(name)
		if err != nil {
			return nil, err
		}
		if g == apds9960.None {
			return nil, fmt.Errorf("gesturemqtt: no action can be bound to %s", g)
		}

		c, err := ParseCommand(cmd)
		if err != nil {
			return nil, err
		}
		actions[g] = c
	}

	return actions, nil
}
