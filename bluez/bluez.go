// Package bluez exposes application objects to BlueZ over D-Bus and wraps the
// daemon's adapter and device interfaces (Linux only, pure Go).
package bluez

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

const (
	bluezDest     = "org.bluez"
	bluezRoot     = "/"
	adapterPrefix = "/org/bluez/"

	// errPrefix is prepended to ReqError names in bus error replies.
	errPrefix = "org.bluez.Error."

	adapterInterface = "org.bluez.Adapter1"
	deviceInterface  = "org.bluez.Device1"

	propertiesInterface     = "org.freedesktop.DBus.Properties"
	objectManagerInterface  = "org.freedesktop.DBus.ObjectManager"
	introspectableInterface = "org.freedesktop.DBus.Introspectable"
)

// ErrInvalidDevicePath is returned when an object path does not name a
// BlueZ device.
var ErrInvalidDevicePath = errors.New("bluez: invalid device path")

// ParseDevicePath splits a device path such as
// /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF into its adapter name and address.
func ParseDevicePath(path dbus.ObjectPath) (string, bluetooth.MAC, error) {
	s := string(path)
	if !strings.HasPrefix(s, adapterPrefix) {
		return "", bluetooth.MAC{}, fmt.Errorf("%w: %q", ErrInvalidDevicePath, s)
	}
	adapter, leaf, ok := strings.Cut(s[len(adapterPrefix):], "/")
	if !ok || adapter == "" || strings.Contains(leaf, "/") {
		return "", bluetooth.MAC{}, fmt.Errorf("%w: %q", ErrInvalidDevicePath, s)
	}
	addr, err := parseDeviceLeaf(leaf)
	if err != nil {
		return "", bluetooth.MAC{}, fmt.Errorf("%w: %q: %v", ErrInvalidDevicePath, s, err)
	}
	return adapter, addr, nil
}

// parseDeviceLeaf converts dev_AA_BB_CC_DD_EE_FF into a MAC.
func parseDeviceLeaf(leaf string) (bluetooth.MAC, error) {
	hex, ok := strings.CutPrefix(leaf, "dev_")
	if !ok {
		return bluetooth.MAC{}, fmt.Errorf("missing dev_ prefix")
	}
	// six two-digit groups joined by five separators
	if len(hex) != 17 {
		return bluetooth.MAC{}, fmt.Errorf("bad address length %d", len(hex))
	}
	for i := 2; i < len(hex); i += 3 {
		if hex[i] != '_' {
			return bluetooth.MAC{}, fmt.Errorf("bad separator at %d", i)
		}
	}
	return bluetooth.ParseMAC(strings.ToUpper(strings.ReplaceAll(hex, "_", ":")))
}

// DevicePath converts an adapter name and address into the device object
// path (e.g. hci0, AA:BB:CC:DD:EE:FF -> /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF).
func DevicePath(adapter string, addr bluetooth.MAC) dbus.ObjectPath {
	s := strings.ReplaceAll(strings.ToUpper(addr.String()), ":", "_")
	return dbus.ObjectPath(adapterPrefix + adapter + "/dev_" + s)
}

// AdapterPath returns the object path of the named adapter.
func AdapterPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath(adapterPrefix + adapter)
}
