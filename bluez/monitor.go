package bluez

import (
	"errors"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

const (
	monitorInterface        = "org.bluez.AdvertisementMonitor1"
	monitorManagerInterface = "org.bluez.AdvertisementMonitorManager1"
)

// ErrAlreadyRegistered is returned when a monitor object is armed for
// teardown a second time.
var ErrAlreadyRegistered = errors.New("bluez: monitor already registered")

// DeviceFound is passed to Monitor.DeviceFound.
type DeviceFound struct {
	// Adapter that saw the device, e.g. hci0.
	Adapter string
	Addr    bluetooth.MAC
}

// DeviceLost is passed to Monitor.DeviceLost.
type DeviceLost struct {
	Adapter string
	Addr    bluetooth.MAC
}

// Pattern matches advertising data of the given AD type at StartPosition.
type Pattern struct {
	StartPosition uint8
	ADType        uint8
	Content       []byte
}

// Monitor describes an advertisement monitor. Every handler is optional;
// requests for a missing handler are rejected. Handlers may be called
// concurrently and must do their own locking.
//
// Use Session.RegisterMonitor to register it.
type Monitor struct {
	Type               string
	RSSILowThreshold   int16
	RSSIHighThreshold  int16
	RSSILowTimeout     uint16
	RSSIHighTimeout    uint16
	RSSISamplingPeriod uint16
	Patterns           []Pattern

	Release     func() error
	Activate    func() error
	DeviceFound func(DeviceFound) (string, error)
	DeviceLost  func(DeviceLost) (string, error)
}

// DefaultMonitor returns an or_patterns monitor with no handlers.
func DefaultMonitor() Monitor {
	return Monitor{
		Type:               "or_patterns",
		RSSILowThreshold:   -90,
		RSSIHighThreshold:  20,
		RSSILowTimeout:     1,
		RSSIHighTimeout:    2,
		RSSISamplingPeriod: 1,
	}
}

// registeredMonitor is the object published for BlueZ to call. Its exported
// methods are exactly the methods of org.bluez.AdvertisementMonitor1.
type registeredMonitor struct {
	m   Monitor
	log *logrus.Entry

	mu   sync.Mutex
	drop *oneshot
}

func newRegisteredMonitor(m Monitor, log *logrus.Entry) *registeredMonitor {
	return &registeredMonitor{m: m, log: log}
}

// arm creates the teardown signal; onFire runs once when it fires. A
// monitor can be armed only once.
func (r *registeredMonitor) arm(onFire func()) (*oneshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drop != nil {
		return nil, ErrAlreadyRegistered
	}
	r.drop = newOneshot(onFire)
	return r.drop, nil
}

func (r *registeredMonitor) Release() *dbus.Error {
	if r.m.Release == nil {
		return ReqRejected.DBusError()
	}
	return r.reply(r.m.Release())
}

func (r *registeredMonitor) Activate() *dbus.Error {
	if r.m.Activate == nil {
		return ReqRejected.DBusError()
	}
	return r.reply(r.m.Activate())
}

func (r *registeredMonitor) DeviceFound(device dbus.ObjectPath) (string, *dbus.Error) {
	adapter, addr, err := r.parseDevicePath(device)
	if err != nil {
		return "", err
	}
	if r.m.DeviceFound == nil {
		return "", ReqRejected.DBusError()
	}
	s, herr := r.m.DeviceFound(DeviceFound{Adapter: adapter, Addr: addr})
	if herr != nil {
		return "", r.reply(herr)
	}
	return s, nil
}

func (r *registeredMonitor) DeviceLost(device dbus.ObjectPath) (string, *dbus.Error) {
	adapter, addr, err := r.parseDevicePath(device)
	if err != nil {
		return "", err
	}
	if r.m.DeviceLost == nil {
		return "", ReqRejected.DBusError()
	}
	s, herr := r.m.DeviceLost(DeviceLost{Adapter: adapter, Addr: addr})
	if herr != nil {
		return "", r.reply(herr)
	}
	return s, nil
}

func (r *registeredMonitor) parseDevicePath(device dbus.ObjectPath) (string, bluetooth.MAC, *dbus.Error) {
	adapter, addr, err := ParseDevicePath(device)
	if err != nil {
		r.log.WithError(err).WithField("device", device).Error("Cannot parse device path")
		return "", bluetooth.MAC{}, ReqRejected.DBusError()
	}
	return adapter, addr, nil
}

func (r *registeredMonitor) reply(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	var re ReqError
	if !errors.As(err, &re) {
		r.log.WithError(err).Debug("Handler error reported as rejection")
	}
	return toDBusError(err)
}

func (r *registeredMonitor) iface() string {
	return monitorInterface
}

func (r *registeredMonitor) properties() map[string]interface{} {
	props := map[string]interface{}{
		"Type":               r.m.Type,
		"RSSILowThreshold":   r.m.RSSILowThreshold,
		"RSSIHighThreshold":  r.m.RSSIHighThreshold,
		"RSSILowTimeout":     r.m.RSSILowTimeout,
		"RSSIHighTimeout":    r.m.RSSIHighTimeout,
		"RSSISamplingPeriod": r.m.RSSISamplingPeriod,
	}
	if len(r.m.Patterns) > 0 {
		props["Patterns"] = r.m.Patterns
	}
	return props
}

func (r *registeredMonitor) introspection() introspect.Interface {
	request := []introspect.Arg{
		{Name: "device", Type: "o", Direction: "in"},
		{Name: "tag", Type: "s", Direction: "out"},
	}
	ifc := introspect.Interface{
		Name: monitorInterface,
		Methods: []introspect.Method{
			{Name: "Release"},
			{Name: "Activate"},
			{Name: "DeviceFound", Args: request},
			{Name: "DeviceLost", Args: request},
		},
	}
	props := r.properties()
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ifc.Properties = append(ifc.Properties, introspect.Property{
			Name:   name,
			Type:   dbus.SignatureOf(props[name]).String(),
			Access: "read",
		})
	}
	return ifc
}
