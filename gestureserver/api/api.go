package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BertoldVdb/GestureResearch/apds9960"
)

type API struct {
	mux    *http.ServeMux
	poller *Poller
}

const (
	ctJSON string = "application/json"
	ctText string = "text/plain; charset=utf-8"
)

// MaxWait bounds the long-poll of /gesture so a response is sent before the
// server write timeout.
const MaxWait = 25 * time.Second

const maxConfigSize = 8192

type Info struct {
	Name              string `json:"name"`
	Address           uint16 `json:"address"`
	Rotation          int    `json:"rotation"`
	MaxDatasets       int    `json:"max_datasets"`
	HighPassThreshold uint8  `json:"high_pass_threshold"`
}

func New(poller *Poller) (*API, error) {
	mux := &http.ServeMux{}

	s := &API{
		mux:    mux,
		poller: poller,
	}

	var info Info
	poller.Do(func(dev Device) error {
		info = Info{
			Name:              poller.Name(),
			Address:           dev.Address(),
			Rotation:          dev.Rotation(),
			MaxDatasets:       dev.MaxDatasets(),
			HighPassThreshold: dev.HighPassThreshold(),
		}
		return nil
	})

	infoJson, err := json.MarshalIndent(&info, "", "  ")
	if err != nil {
		return nil, err
	}

	mux.HandleFunc("/info", sendStatic(ctJSON, infoJson))
	mux.HandleFunc("/gesture", s.gestureHandler)
	mux.HandleFunc("/last", s.lastHandler)
	mux.HandleFunc("/proximity", s.proximityHandler)
	mux.HandleFunc("/color", s.colorHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/config", s.configHandler)
	mux.HandleFunc("/registers", s.registersHandler)
	mux.HandleFunc("/reset", s.resetHandler)

	return s, nil
}

func sendStatic(contentType string, data []byte) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}
}

func sendJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ctJSON)
	w.Write(data)
}

func checkMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// parseWait parses the wait parameter of /gesture. A missing value selects
// MaxWait.
func parseWait(s string) (time.Duration, error) {
	if s == "" {
		return MaxWait, nil
	}

	wait, err := time.ParseDuration(s)
	if err != nil {
		secs, serr := strconv.ParseFloat(s, 64)
		if serr != nil {
			return 0, err
		}
		wait = time.Duration(secs * float64(time.Second))
	}

	if wait < 0 {
		return 0, fmt.Errorf("negative wait %v", wait)
	}
	if wait > MaxWait {
		wait = MaxWait
	}
	return wait, nil
}

func (s *API) gestureHandler(w http.ResponseWriter, r *http.Request) {
	if !checkMethod(w, r, "GET") {
		return
	}

	q := r.URL.Query()

	wait, err := parseWait(q.Get("wait"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	after := s.poller.Seq()
	if v := q.Get("after"); v != "" {
		after, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	ev, ok := s.poller.Wait(ctx, after)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sendJSON(w, ev)
}

func (s *API) lastHandler(w http.ResponseWriter, r *http.Request) {
	if !checkMethod(w, r, "GET") {
		return
	}

	ev, ok := s.poller.Last()
	if !ok {
		http.Error(w, "No gesture seen yet", http.StatusNotFound)
		return
	}

	sendJSON(w, ev)
}

// read runs f on the device and answers with its result.
func read[T any](s *API, w http.ResponseWriter, r *http.Request, f func(dev Device) (T, error)) {
	if !checkMethod(w, r, "GET") {
		return
	}

	var result T
	err := s.poller.Do(func(dev Device) error {
		var err error
		result, err = f(dev)
		return err
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sendJSON(w, result)
}

func (s *API) proximityHandler(w http.ResponseWriter, r *http.Request) {
	read(s, w, r, func(dev Device) (map[string]uint8, error) {
		p, err := dev.Proximity()
		return map[string]uint8{"proximity": p}, err
	})
}

func (s *API) colorHandler(w http.ResponseWriter, r *http.Request) {
	read(s, w, r, Device.ColorData)
}

func (s *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	read(s, w, r, Device.Status)
}

func (s *API) configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		read(s, w, r, Device.ReadConfig)
		return
	}

	if !checkMethod(w, r, "POST") {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result apds9960.Config
	status := http.StatusInternalServerError

	err = s.poller.Do(func(dev Device) error {
		cfg, err := dev.ReadConfig()
		if err != nil {
			return err
		}

		// Fields missing from the request keep their current value.
		if err := json.Unmarshal(body, &cfg); err != nil {
			status = http.StatusBadRequest
			return err
		}

		if err := dev.ApplyConfig(cfg); err != nil {
			if errors.Is(err, apds9960.ErrOutOfRange) {
				status = http.StatusBadRequest
			}
			return err
		}

		result, err = dev.ReadConfig()
		return err
	})
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	sendJSON(w, result)
}

func (s *API) registersHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") != "text" {
		read(s, w, r, Device.DumpRegisters)
		return
	}

	if !checkMethod(w, r, "GET") {
		return
	}

	var dump []apds9960.RegisterValue
	if err := s.poller.Do(func(dev Device) (err error) {
		dump, err = dev.DumpRegisters()
		return
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var out strings.Builder
	for _, v := range dump {
		out.WriteString(v.String())
		out.WriteByte('\n')
	}

	w.Header().Set("Content-Type", ctText)
	io.WriteString(w, out.String())
}

func (s *API) resetHandler(w http.ResponseWriter, r *http.Request) {
	if !checkMethod(w, r, "POST") {
		return
	}

	if err := s.poller.Reset(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
