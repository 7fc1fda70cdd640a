package api

import (
	"context"
	"sync"
	"time"

	"github.com/BertoldVdb/GestureResearch/apds9960"
	"github.com/BertoldVdb/GestureResearch/gesturemqtt"
	"github.com/sirupsen/logrus"
)

// Device is the part of *apds9960.Device served over HTTP.
type Device interface {
	Address() uint16
	Rotation() int
	MaxDatasets() int
	HighPassThreshold() uint8

	Gesture(blocking bool) (apds9960.Gesture, error)
	Proximity() (uint8, error)
	ColorData() (apds9960.ColorData, error)
	Status() (apds9960.Status, error)

	ReadConfig() (apds9960.Config, error)
	ApplyConfig(c apds9960.Config) error
	DumpRegisters() ([]apds9960.RegisterValue, error)
	Reset() error
	Defaults() error

	SetEnabled(enable bool) error
	SetProximityEnabled(enable bool) error
	SetGestureEnabled(enable bool) error
	SetColorEnabled(enable bool) error
}

var _ Device = (*apds9960.Device)(nil)

// GestureEvent is a detected gesture with its position in the stream of
// events of one sensor.
type GestureEvent struct {
	Seq uint64 `json:"seq"`
	gesturemqtt.Event
}

// Poller owns a sensor: it polls the gesture FIFO and serialises every
// other access to the device.
type Poller struct {
	name     string
	interval time.Duration
	config   *apds9960.Config
	log      logrus.FieldLogger

	devMu sync.Mutex
	dev   Device

	mu          sync.Mutex
	last        GestureEvent
	notify      chan struct{}
	subscribers []func(gesturemqtt.Event)
}

// NewPoller creates a poller for dev. config, if not nil, is applied on
// top of the defaults whenever the sensor is set up.
func NewPoller(name string, dev Device, interval time.Duration, config *apds9960.Config, log logrus.FieldLogger) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		config:   config,
		log:      log.WithField("sensor", name),
		dev:      dev,
		notify:   make(chan struct{}),
	}
}

func (p *Poller) Name() string {
	return p.name
}

// Do runs f with exclusive access to the device.
func (p *Poller) Do(f func(dev Device) error) error {
	p.devMu.Lock()
	defer p.devMu.Unlock()

	return f(p.dev)
}

// Subscribe registers f to be called, from the polling goroutine, for every
// detected gesture. It must not block.
func (p *Poller) Subscribe(f func(gesturemqtt.Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers = append(p.subscribers, f)
}

func (p *Poller) setup(dev Device) error {
	if p.config != nil {
		if err := dev.ApplyConfig(*p.config); err != nil {
			return err
		}
	}

	for _, enable := range []func(bool) error{
		dev.SetProximityEnabled,
		dev.SetGestureEnabled,
		dev.SetColorEnabled,
		dev.SetEnabled,
	} {
		if err := enable(true); err != nil {
			return err
		}
	}
	return nil
}

// Setup applies the sensor configuration and powers up the engines.
func (p *Poller) Setup() error {
	return p.Do(p.setup)
}

// Reset returns the sensor to its power-on state and sets it up again.
func (p *Poller) Reset() error {
	return p.Do(func(dev Device) error {
		if err := dev.Reset(); err != nil {
			return err
		}
		if err := dev.Defaults(); err != nil {
			return err
		}
		return p.setup(dev)
	})
}

func (p *Poller) publish(g apds9960.Gesture) {
	p.mu.Lock()
	p.last = GestureEvent{
		Seq:   p.last.Seq + 1,
		Event: gesturemqtt.NewEvent(p.name, g),
	}
	ev := p.last
	close(p.notify)
	p.notify = make(chan struct{})
	subscribers := p.subscribers
	p.mu.Unlock()

	p.log.Debugf("Gesture %s (#%d)", g, ev.Seq)

	for _, f := range subscribers {
		f(ev.Event)
	}
}

func (p *Poller) poll() error {
	var g apds9960.Gesture

	err := p.Do(func(dev Device) error {
		var err error
		g, err = dev.Gesture(false)
		return err
	})
	if err != nil {
		return err
	}

	if g != apds9960.None {
		p.publish(g)
	}
	return nil
}

// Run sets the sensor up and polls it every interval until ctx is done.
// Bus errors are logged and polling continues.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Setup(); err != nil {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := p.poll(); err != nil {
			if !failing {
				p.log.Errorf("Polling failed: %v", err)
			}
			failing = true
			continue
		}

		if failing {
			p.log.Infoln("Polling recovered")
			failing = false
		}
	}
}

// Last returns the most recent gesture, if any was seen.
func (p *Poller) Last() (GestureEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.last, p.last.Seq > 0
}

// Seq returns the sequence number of the most recent gesture.
func (p *Poller) Seq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.last.Seq
}

// Wait blocks until a gesture newer than after is available or ctx is
// done. When several gestures arrived in between only the latest is
// returned.
func (p *Poller) Wait(ctx context.Context, after uint64) (GestureEvent, bool) {
	for {
		p.mu.Lock()
		if p.last.Seq > after {
			ev := p.last
			p.mu.Unlock()
			return ev, true
		}
		notify := p.notify
		p.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return GestureEvent{}, false
		}
	}
}
