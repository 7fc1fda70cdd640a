package gestureclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BertoldVdb/GestureResearch/apds9960"
	"github.com/BertoldVdb/GestureResearch/discovery"
	"github.com/BertoldVdb/GestureResearch/gestureserver/api"
)

// GestureClient talks to the API of one sensor of a gestured daemon.
type GestureClient struct {
	client http.Client
	url    string

	user, password string

	info api.Info
}

// New connects to the sensor API rooted at url, for example
// http://host:8067/hall.
func New(url string) (*GestureClient, error) {
	return NewWithAuth(url, "", "")
}

// NewWithAuth is New for a daemon that requires basic authentication.
func NewWithAuth(url string, user string, password string) (*GestureClient, error) {
	c := &GestureClient{
		client: http.Client{
			// Long polls return after at most api.MaxWait.
			Timeout: api.MaxWait + 10*time.Second,
		},

		url:      strings.TrimSuffix(url, "/"),
		user:     user,
		password: password,
	}

	if err := c.getJSON(context.Background(), "info", &c.info); err != nil {
		return nil, err
	}

	return c, nil
}

// browse is replaced in tests.
var browse = discovery.Browse

// Discover browses the local network for a daemon serving sensor and
// connects to it. An empty sensor selects the first sensor of the first
// daemon found.
func Discover(ctx context.Context, sensor string) (*GestureClient, error) {
	return DiscoverWithAuth(ctx, sensor, "", "")
}

// DiscoverWithAuth is Discover for daemons that require basic
// authentication.
func DiscoverWithAuth(ctx context.Context, sensor string, user string, password string) (*GestureClient, error) {
	res, err := browse(ctx, sensor)
	if err != nil {
		return nil, err
	}

	path := sensor
	if path == "" {
		path = "0"
	}

	return NewWithAuth("http://"+res.Addr+"/"+url.PathEscape(path), user, password)
}

func (c *GestureClient) doReq(ctx context.Context, method string, endpoint string, body []byte) ([]byte, int, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+"/"+endpoint, rdr)
	if err != nil {
		return nil, 0, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return nil, resp.StatusCode, fmt.Errorf("request error %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	return data, resp.StatusCode, nil
}

func (c *GestureClient) getJSON(ctx context.Context, endpoint string, v interface{}) error {
	data, _, err := c.doReq(ctx, "GET", endpoint, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (c *GestureClient) Info() api.Info {
	return c.info
}

// NextGesture waits up to wait for a gesture newer than after. It returns
// false when none arrived in time.
func (c *GestureClient) NextGesture(ctx context.Context, after uint64, wait time.Duration) (api.GestureEvent, bool, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	q.Set("wait", wait.String())

	var ev api.GestureEvent

	data, status, err := c.doReq(ctx, "GET", "gesture?"+q.Encode(), nil)
	if err != nil || status == http.StatusNoContent {
		return ev, false, err
	}

	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, false, err
	}
	return ev, true, nil
}

// Last returns the most recent gesture. It returns false if the sensor has
// not seen one yet.
func (c *GestureClient) Last(ctx context.Context) (api.GestureEvent, bool, error) {
	var ev api.GestureEvent

	data, status, err := c.doReq(ctx, "GET", "last", nil)
	if status == http.StatusNotFound {
		return ev, false, nil
	}
	if err != nil {
		return ev, false, err
	}

	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, false, err
	}
	return ev, true, nil
}

func (c *GestureClient) Proximity(ctx context.Context) (uint8, error) {
	var v struct {
		Proximity uint8 `json:"proximity"`
	}
	err := c.getJSON(ctx, "proximity", &v)
	return v.Proximity, err
}

func (c *GestureClient) Color(ctx context.Context) (apds9960.ColorData, error) {
	var v apds9960.ColorData
	err := c.getJSON(ctx, "color", &v)
	return v, err
}

func (c *GestureClient) Status(ctx context.Context) (apds9960.Status, error) {
	var v apds9960.Status
	err := c.getJSON(ctx, "status", &v)
	return v, err
}

func (c *GestureClient) Config(ctx context.Context) (apds9960.Config, error) {
	var v apds9960.Config
	err := c.getJSON(ctx, "config", &v)
	return v, err
}

// SetConfig writes cfg and returns the configuration read back from the
// sensor.
func (c *GestureClient) SetConfig(ctx context.Context, cfg apds9960.Config) (apds9960.Config, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return apds9960.Config{}, err
	}

	data, _, err := c.doReq(ctx, "POST", "config", body)
	if err != nil {
		return apds9960.Config{}, err
	}

	var v apds9960.Config
	err = json.Unmarshal(data, &v)
	return v, err
}

func (c *GestureClient) Registers(ctx context.Context) ([]apds9960.RegisterValue, error) {
	var v []apds9960.RegisterValue
	err := c.getJSON(ctx, "registers", &v)
	return v, err
}

func (c *GestureClient) Reset(ctx context.Context) error {
	_, _, err := c.doReq(ctx, "POST", "reset", nil)
	return err
}

func (c *GestureClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
