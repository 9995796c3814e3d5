package bluez

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

// ErrNoAdapter is returned when the daemon reports no adapter.
var ErrNoAdapter = errors.New("no BlueZ adapter found")

// Adapter wraps a BlueZ adapter (e.g. /org/bluez/hci0).
type Adapter struct {
	s    *Session
	name string
	path dbus.ObjectPath
}

// Adapter returns the adapter with the given name without checking that it
// exists.
func (s *Session) Adapter(name string) *Adapter {
	return &Adapter{s: s, name: name, path: AdapterPath(name)}
}

// AdapterNames lists the adapters known to the daemon in sorted order.
func (s *Session) AdapterNames(ctx context.Context) ([]string, error) {
	var out map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := s.call(ctx, bluezRoot, objectManagerInterface+".GetManagedObjects").Store(&out)
	if err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", err)
	}
	var names []string
	for path, ifaces := range out {
		p := string(path)
		if _, ok := ifaces[adapterInterface]; !ok {
			continue
		}
		// e.g. /org/bluez/hci0
		if strings.HasPrefix(p, adapterPrefix) && strings.Count(p, "/") == 3 {
			names = append(names, p[len(adapterPrefix):])
		}
	}
	sort.Strings(names)
	return names, nil
}

// DefaultAdapter returns the first BlueZ adapter (usually hci0).
func (s *Session) DefaultAdapter(ctx context.Context) (*Adapter, error) {
	names, err := s.AdapterNames(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoAdapter
	}
	return s.Adapter(names[0]), nil
}

// Name returns the adapter name, e.g. hci0.
func (a *Adapter) Name() string {
	return a.name
}

// Path returns the adapter object path.
func (a *Adapter) Path() dbus.ObjectPath {
	return a.path
}

// Device returns the device with the given address on this adapter.
func (a *Adapter) Device(addr bluetooth.MAC) *Device {
	return a.s.Device(a.name, addr)
}

// RegisterMonitor registers m with this adapter's advertisement monitor
// manager. See Session.RegisterMonitor.
func (a *Adapter) RegisterMonitor(ctx context.Context, m Monitor) (*MonitorHandle, error) {
	return a.s.registerMonitor(ctx, a.path, m)
}

// SetPowered switches the adapter radio on or off.
func (a *Adapter) SetPowered(ctx context.Context, on bool) error {
	return a.s.call(ctx, a.path, propertiesInterface+".Set", adapterInterface, "Powered", dbus.MakeVariant(on)).Err
}

// StartDiscovery starts device discovery.
func (a *Adapter) StartDiscovery(ctx context.Context) error {
	return a.s.call(ctx, a.path, adapterInterface+".StartDiscovery").Err
}

// StopDiscovery stops discovery.
func (a *Adapter) StopDiscovery(ctx context.Context) error {
	return a.s.call(ctx, a.path, adapterInterface+".StopDiscovery").Err
}

// SetDiscoveryFilter restricts discovery to LE and, when uuidStr is not
// empty, to devices advertising that service.
func (a *Adapter) SetDiscoveryFilter(ctx context.Context, uuidStr string) error {
	filter := map[string]dbus.Variant{
		"Transport": dbus.MakeVariant("le"),
	}
	if uuidStr != "" {
		filter["UUIDs"] = dbus.MakeVariant([]string{uuidStr})
	}
	return a.s.call(ctx, a.path, adapterInterface+".SetDiscoveryFilter", filter).Err
}
