package gestureclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BertoldVdb/GestureResearch/apds9960"
	"github.com/BertoldVdb/GestureResearch/discovery"
	"github.com/BertoldVdb/GestureResearch/gestureserver/api"
	"github.com/sirupsen/logrus"
)

// sensorStub implements the calls the API makes in these tests. Anything
// else panics through the nil embedded interface.
type sensorStub struct {
	api.Device

	gestures chan apds9960.Gesture
	config   apds9960.Config
	resets   int
}

func (s *sensorStub) Address() uint16          { return 0x39 }
func (s *sensorStub) Rotation() int            { return 180 }
func (s *sensorStub) MaxDatasets() int         { return 32 }
func (s *sensorStub) HighPassThreshold() uint8 { return 40 }

func (s *sensorStub) Gesture(bool) (apds9960.Gesture, error) {
	select {
	case g := <-s.gestures:
		return g, nil
	default:
		return apds9960.None, nil
	}
}

func (s *sensorStub) Proximity() (uint8, error) { return 77, nil }

func (s *sensorStub) ReadConfig() (apds9960.Config, error) { return s.config, nil }

func (s *sensorStub) ApplyConfig(c apds9960.Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.config = c
	return nil
}

func (s *sensorStub) Reset() error                   { s.resets++; return nil }
func (s *sensorStub) Defaults() error                { return s.ApplyConfig(apds9960.DefaultConfig) }
func (s *sensorStub) SetEnabled(bool) error          { return nil }
func (s *sensorStub) SetProximityEnabled(bool) error { return nil }
func (s *sensorStub) SetGestureEnabled(bool) error   { return nil }
func (s *sensorStub) SetColorEnabled(bool) error     { return nil }

func newTestServer(t *testing.T, user, password string) (*httptest.Server, *sensorStub) {
	t.Helper()

	stub := &sensorStub{
		gestures: make(chan apds9960.Gesture, 1),
		config:   apds9960.DefaultConfig,
	}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	poller := api.NewPoller("hall", stub, time.Millisecond, nil, log)
	a, err := api.New(poller)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go poller.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/hall/", http.StripPrefix("/hall", a))

	handler := http.Handler(mux)
	if user != "" {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != password {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			mux.ServeHTTP(w, r)
		})
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, stub
}

func TestClient(t *testing.T) {
	srv, stub := newTestServer(t, "", "")

	c, err := New(srv.URL + "/hall/")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	info := c.Info()
	if info.Name != "hall" || info.Rotation != 180 || info.MaxDatasets != 32 || info.HighPassThreshold != 40 {
		t.Errorf("info %+v", info)
	}

	ctx := context.Background()

	if _, ok, err := c.Last(ctx); ok || err != nil {
		t.Errorf("last before any gesture: %v, %v", ok, err)
	}

	if _, ok, err := c.NextGesture(ctx, 0, 10*time.Millisecond); ok || err != nil {
		t.Errorf("gesture without one pending: %v, %v", ok, err)
	}

	stub.gestures <- apds9960.Left
	ev, ok, err := c.NextGesture(ctx, 0, 2*time.Second)
	if err != nil || !ok || ev.Gesture != apds9960.Left || ev.Seq != 1 {
		t.Errorf("next gesture %+v, %v, %v", ev, ok, err)
	}

	if ev, ok, err := c.Last(ctx); !ok || err != nil || ev.Seq != 1 {
		t.Errorf("last %+v, %v, %v", ev, ok, err)
	}

	if p, err := c.Proximity(ctx); p != 77 || err != nil {
		t.Errorf("proximity %d, %v", p, err)
	}

	cfg, err := c.Config(ctx)
	if err != nil || cfg != apds9960.DefaultConfig {
		t.Errorf("config %+v, %v", cfg, err)
	}

	cfg.GestureEngine.Exit = 60
	got, err := c.SetConfig(ctx, cfg)
	if err != nil || got.GestureEngine.Exit != 60 {
		t.Errorf("set config %+v, %v", got, err)
	}

	cfg.ColorGain = 8
	if _, err := c.SetConfig(ctx, cfg); err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("out of range config accepted: %v", err)
	}

	if err := c.Reset(ctx); err != nil || stub.resets != 1 {
		t.Errorf("reset %v, %d", err, stub.resets)
	}
}

func TestClientAuth(t *testing.T) {
	srv, _ := newTestServer(t, "1700000000$test", "abcd")

	if _, err := New(srv.URL + "/hall"); err == nil {
		t.Errorf("connected without credentials")
	}

	c, err := NewWithAuth(srv.URL+"/hall", "1700000000$test", "abcd")
	if err != nil {
		t.Fatal(err)
	}
	if c.Info().Name != "hall" {
		t.Errorf("info %+v", c.Info())
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := New(url + "/hall"); err == nil {
		t.Fatal("no error from closed server")
	}

	c := &GestureClient{url: url}
	if _, err := c.Proximity(context.Background()); err == nil {
		t.Fatal("no error from closed server")
	}
}

func TestDiscoverWithAuth(t *testing.T) {
	srv, _ := newTestServer(t, "1700000000$hall", "abcd")

	var filter string
	browse = func(ctx context.Context, sensor string) (discovery.Result, error) {
		filter = sensor
		return discovery.Result{
			Instance: "gestured",
			Version:  1,
			Sensors:  []string{"hall"},
			Addr:     strings.TrimPrefix(srv.URL, "http://"),
		}, nil
	}
	defer func() { browse = discovery.Browse }()

	if _, err := Discover(context.Background(), "hall"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("discovered protected daemon without credentials: %v", err)
	}

	c, err := DiscoverWithAuth(context.Background(), "hall", "1700000000$hall", "abcd")
	if err != nil {
		t.Fatal(err)
	}
	if filter != "hall" || c.Info().Name != "hall" {
		t.Errorf("filter %q, info %+v", filter, c.Info())
	}

	browse = func(context.Context, string) (discovery.Result, error) {
		return discovery.Result{}, discovery.ErrNotFound
	}
	if _, err := DiscoverWithAuth(context.Background(), "hall", "", ""); err != discovery.ErrNotFound {
		t.Errorf("got %v", err)
	}
}
