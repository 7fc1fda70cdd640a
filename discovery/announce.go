// Package discovery announces gesture daemons on the local network and
// finds them again from clients.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// Service is the DNS-SD service type of the gesture daemon.
const Service = "_apds9960._tcp"

const protocolVersion = 1

type Announcer struct {
	name    string
	port    int
	sensors []string

	currentAddr string
	server      *zeroconf.Server
}

func NewAnnouncer(name string, port int, sensors []string) *Announcer {
	if name == "" {
		name = "gestured"
	}

	return &Announcer{
		name:    name,
		port:    port,
		sensors: sensors,
	}
}

func (a *Announcer) txtRecord() []string {
	return []string{
		"version=" + strconv.Itoa(protocolVersion),
		"sensors=" + strconv.Itoa(len(a.sensors)),
		"names=" + strings.Join(a.sensors, ","),
	}
}

// SetSensors updates the announced sensor list.
func (a *Announcer) SetSensors(sensors []string) {
	a.sensors = sensors

	if a.server != nil {
		a.server.SetText(a.txtRecord())
	}
}

func (a *Announcer) Stop() {
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.currentAddr = ""
}

func ifaceAddressV4(iface *net.Interface) (string, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return "", err
	}

	for _, m := range addrs {
		if k, ok := m.(*net.IPNet); ok && k.IP.To4() != nil {
			return k.IP.String(), nil
		}
	}

	return "", nil
}

// waitIfaceAddressV4 waits for the interface to obtain an IPv4 address, as
// happens right after boot or a network switch.
func waitIfaceAddressV4(iface *net.Interface, maxWait time.Duration) (string, error) {
	for deadline := time.Now().Add(maxWait); time.Now().Before(deadline); {
		addr, err := ifaceAddressV4(iface)
		if err != nil {
			return "", err
		}

		if addr != "" {
			return addr, nil
		}

		time.Sleep(250 * time.Millisecond)
	}

	return "", errors.New("timeout waiting for IPv4 address")
}

// Start announces the daemon on the named interface.
func (a *Announcer) Start(ifaceName string, maxWaitIP time.Duration) error {
	a.Stop()

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return err
	}

	addr, err := waitIfaceAddressV4(iface, maxWaitIP)
	if err != nil {
		return err
	}

	server, err := zeroconf.RegisterProxy(a.name, Service, "local.", a.port, a.name, []string{addr}, a.txtRecord(), []net.Interface{*iface})
	if err != nil {
		return err
	}
	server.TTL(60)

	a.currentAddr = fmt.Sprintf("%s:%d", addr, a.port)
	a.server = server
	return nil
}

func (a *Announcer) CurrentAddress() string {
	return a.currentAddr
}
