// Package gesturemqtt publishes detected gestures to an MQTT broker and
// optionally drives a Tasmota bulb with them.
package gesturemqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"time"

	"github.com/BertoldVdb/GestureResearch/apds9960"
	"github.com/sirupsen/logrus"
	mqtt "github.com/soypat/natiu-mqtt"
)

var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

// Event is a gesture seen by one sensor.
type Event struct {
	Sensor  string           `json:"sensor"`
	Gesture apds9960.Gesture `json:"gesture"`
	Code    int              `json:"code"`
	Time    time.Time        `json:"time"`
}

func NewEvent(sensor string, g apds9960.Gesture) Event {
	return Event{
		Sensor:  sensor,
		Gesture: g,
		Code:    int(g),
		Time:    time.Now(),
	}
}

type Config struct {
	Broker      string            `mapstructure:"broker" yaml:"broker"`
	ClientID    string            `mapstructure:"client_id" yaml:"client_id"`
	Username    string            `mapstructure:"username" yaml:"username"`
	Password    string            `mapstructure:"password" yaml:"password"`
	TopicPrefix string            `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	Bulb        string            `mapstructure:"bulb" yaml:"bulb"`
	Actions     map[string]string `mapstructure:"actions" yaml:"actions"`
}

// message is one publish on the wire.
type message struct {
	topic   string
	payload []byte
}

type Publisher struct {
	cfg     Config
	actions map[apds9960.Gesture]Command
	log     logrus.FieldLogger

	queue chan message
	dial  func(ctx context.Context, network, address string) (net.Conn, error)

	timeout    time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration
}

func New(cfg Config, log logrus.FieldLogger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("gesturemqtt: no broker configured")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gestured"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "gestured"
	}

	actions, err := ParseActions(cfg.Actions)
	if err != nil {
		return nil, err
	}

	var d net.Dialer

	return &Publisher{
		cfg:        cfg,
		actions:    actions,
		log:        log.WithField("broker", cfg.Broker),
		queue:      make(chan message, 32),
		dial:       d.DialContext,
		timeout:    5 * time.Second,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}, nil
}

func (p *Publisher) GestureTopic(sensor string) string {
	return p.cfg.TopicPrefix + "/" + sensor + "/gesture"
}

func (p *Publisher) enqueue(m message) {
	select {
	case p.queue <- m:
	default:
		p.log.Warnf("Queue full, dropping message for %s", m.topic)
	}
}

// Publish queues the event, plus the bulb command bound to its gesture.
// It never blocks; when the broker is unreachable messages are dropped once
// the queue is full.
func (p *Publisher) Publish(ev Event) {
	if ev.Gesture == apds9960.None {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Errorf("Failed to encode event: %v", err)
		return
	}
	p.enqueue(message{topic: p.GestureTopic(ev.Sensor), payload: payload})

	if p.cfg.Bulb == "" {
		return
	}
	if cmd, ok := p.actions[ev.Gesture]; ok {
		p.enqueue(message{topic: cmd.Topic(p.cfg.Bulb), payload: []byte(cmd.Payload)})
	}
}

func (p *Publisher) connect(ctx context.Context) (*mqtt.Client, net.Conn, error) {
	conn, err := p.dial(ctx, "tcp", p.cfg.Broker)
	if err != nil {
		return nil, nil, err
	}

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 1024)},
		OnPub: func(_ mqtt.Header, vp mqtt.VariablesPublish, _ io.Reader) error {
			p.log.Debugf("Ignoring message on %s", vp.TopicName)
			return nil
		},
	})

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(p.cfg.ClientID))
	varconn.KeepAlive = 0 // we only publish
	if p.cfg.Username != "" {
		varconn.Username = []byte(p.cfg.Username)
		varconn.Password = []byte(p.cfg.Password)
	}

	conn.SetDeadline(time.Now().Add(p.timeout))
	if err := client.StartConnect(conn, &varconn); err != nil {
		conn.Close()
		return nil, nil, err
	}

	for !client.IsConnected() {
		if err := client.HandleNext(); err != nil {
			conn.Close()
			return nil, nil, err
		}
	}
	conn.SetDeadline(time.Time{})

	return client, conn, nil
}

// serve publishes queued messages until the connection fails or ctx ends.
func (p *Publisher) serve(ctx context.Context, client *mqtt.Client, conn net.Conn) error {
	var packetID uint16

	for {
		select {
		case <-ctx.Done():
			client.Disconnect(errors.New("shutting down"))
			return nil

		case m := <-p.queue:
			packetID++
			vp := mqtt.VariablesPublish{
				TopicName:        []byte(m.topic),
				PacketIdentifier: packetID,
			}

			conn.SetWriteDeadline(time.Now().Add(p.timeout))
			if err := client.PublishPayload(pubFlags, vp, m.payload); err != nil {
				return err
			}
			p.log.Debugf("Published %s: %s", m.topic, m.payload)
		}

		if !client.IsConnected() {
			return client.Err()
		}
	}
}

// Run keeps a broker connection open and publishes queued events until ctx
// is done. Connection failures are retried with exponential backoff.
func (p *Publisher) Run(ctx context.Context) error {
	backoff := p.minBackoff

	for {
		client, conn, err := p.connect(ctx)
		if err == nil {
			p.log.Infof("Connected as %s", p.cfg.ClientID)
			backoff = p.minBackoff

			err = p.serve(ctx, client, conn)
			conn.Close()
		}

		if ctx.Err() != nil {
			return nil
		}

		p.log.Warnf("Connection lost: %v, retrying in %v", err, backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > p.maxBackoff {
			backoff = p.maxBackoff
		}
	}
}
