package gesturemqtt

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/BertoldVdb/GestureResearch/apds9960"
	"github.com/sirupsen/logrus"
)

func TestParseActions(t *testing.T) {
	actions, err := ParseActions(nil)
	if err != nil || actions[apds9960.Up] != (Command{"POWER", "ON"}) {
		t.Errorf("defaults %v, %v", actions, err)
	}

	actions, err = ParseActions(map[string]string{"left": "CT 153", "Right": "CT  500"})
	if err != nil {
		t.Fatal(err)
	}
	if actions[apds9960.Left] != (Command{"CT", "153"}) || actions[apds9960.Right] != (Command{"CT", "500"}) {
		t.Errorf("parsed %v", actions)
	}
	if _, ok := actions[apds9960.Up]; ok {
		t.Errorf("defaults merged into explicit actions")
	}

	for _, bad := range []map[string]string{
		{"sideways": "POWER ON"},
		{"None": "POWER ON"},
		{"Up": "POWER"},
	} {
		if _, err := ParseActions(bad); err == nil {
			t.Errorf("%v: expected error", bad)
		}
	}
}

func TestCommandTopic(t *testing.T) {
	c := Command{"Dimmer", "+"}
	if c.Topic("livingroom") != "cmnd/livingroom/Dimmer" {
		t.Errorf("topic %q", c.Topic("livingroom"))
	}
	if c.String() != "Dimmer +" {
		t.Errorf("string %q", c.String())
	}
}

func newTestPublisher(t *testing.T, cfg Config) *Publisher {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	p, err := New(cfg, log)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPublishQueue(t *testing.T) {
	p := newTestPublisher(t, Config{Broker: "localhost:1883"})

	p.Publish(NewEvent("desk", apds9960.None))
	if len(p.queue) != 0 {
		t.Errorf("None was queued")
	}

	p.Publish(NewEvent("desk", apds9960.Left))
	if len(p.queue) != 1 {
		t.Fatalf("%d messages queued without bulb", len(p.queue))
	}

	m := <-p.queue
	if m.topic != "gestured/desk/gesture" {
		t.Errorf("topic %q", m.topic)
	}

	var ev Event
	if err := json.Unmarshal(m.payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Gesture != apds9960.Left || ev.Code != 3 || ev.Sensor != "desk" {
		t.Errorf("event %+v", ev)
	}

	for i := 0; i < cap(p.queue)+5; i++ {
		p.Publish(NewEvent("desk", apds9960.Up))
	}
	if len(p.queue) != cap(p.queue) {
		t.Errorf("queue length %d", len(p.queue))
	}
}

func TestNewRequiresBroker(t *testing.T) {
	if _, err := New(Config{}, logrus.New()); err == nil {
		t.Errorf("accepted empty broker")
	}
}

// readPacket reads one MQTT control packet.
func readPacket(r *bufio.Reader) (byte, []byte, error) {
	header, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}

	length, shift := 0, 0
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		length |= int(b&0x7F) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}

	body := make([]byte, length)
	_, err = io.ReadFull(r, body)
	return header, body, err
}

// fakeBroker accepts one MQTT connection and forwards every publish.
func fakeBroker(t *testing.T, conn net.Conn, published chan<- message) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	header, _, err := readPacket(r)
	if err != nil || header>>4 != 1 {
		t.Errorf("expected CONNECT, got 0x%02x (%v)", header, err)
		return
	}
	if _, err := conn.Write([]byte{0x20, 0x02, 0x00, 0x00}); err != nil {
		t.Errorf("CONNACK: %v", err)
		return
	}

	for {
		header, body, err := readPacket(r)
		if err != nil {
			return
		}
		if header>>4 != 3 {
			continue
		}

		n := int(binary.BigEndian.Uint16(body))
		published <- message{topic: string(body[2 : 2+n]), payload: body[2+n:]}
	}
}

func TestPublisherRun(t *testing.T) {
	p := newTestPublisher(t, Config{Broker: "broker:1883", Bulb: "bulb1"})

	server, client := net.Pipe()
	p.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		return client, nil
	}

	published := make(chan message, 4)
	go fakeBroker(t, server, published)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Publish(NewEvent("desk", apds9960.Down))

	receive := func() message {
		select {
		case m := <-published:
			return m
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for publish")
		}
		return message{}
	}

	m := receive()
	if m.topic != "gestured/desk/gesture" {
		t.Errorf("first topic %q", m.topic)
	}

	m = receive()
	if m.topic != "cmnd/bulb1/POWER" || string(m.payload) != "OFF" {
		t.Errorf("bulb command %q %q", m.topic, m.payload)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
