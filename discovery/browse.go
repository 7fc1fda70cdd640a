package discovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

var ErrNotFound = errors.New("discovery: no gesture daemon found")

type Result struct {
	Instance string
	Version  int
	Sensors  []string
	Addr     string
}

// HasSensor reports whether the daemon serves a sensor named name.
func (r Result) HasSensor(name string) bool {
	for _, s := range r.Sensors {
		if s == name {
			return true
		}
	}
	return false
}

func parseTXT(text []string) map[string]string {
	kv := make(map[string]string)
	for _, m := range text {
		parts := strings.SplitN(m, "=", 2)
		if len(parts) == 2 {
			kv[strings.ToLower(parts[0])] = parts[1]
		}
	}
	return kv
}

func parseEntry(entry *zeroconf.ServiceEntry) (Result, bool) {
	txt := parseTXT(entry.Text)

	version, err := strconv.Atoi(txt["version"])
	if err != nil {
		return Result{}, false
	}

	var sensors []string
	if names := txt["names"]; names != "" {
		sensors = strings.Split(names, ",")
	}

	var addr string
	switch {
	case len(entry.AddrIPv4) > 0:
		addr = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		addr = "[" + entry.AddrIPv6[0].String() + "]"
	default:
		return Result{}, false
	}

	return Result{
		Instance: entry.Instance,
		Version:  version,
		Sensors:  sensors,
		Addr:     fmt.Sprintf("%s:%d", addr, entry.Port),
	}, true
}

// Browse returns the first daemon that serves the named sensor. An empty
// filter accepts any daemon. ctx bounds the search.
func Browse(ctx context.Context, filter string) (Result, error) {
	/* A fresh resolver per call, since the network may have changed */
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, "local", entries); err != nil {
		return Result{}, err
	}

	for entry := range entries {
		result, ok := parseEntry(entry)
		if !ok || result.Version != protocolVersion {
			continue
		}

		if filter != "" && !result.HasSensor(filter) {
			continue
		}

		return result, nil
	}

	return Result{}, ErrNotFound
}
