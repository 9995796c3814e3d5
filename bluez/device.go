package bluez

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

// Device is a remote Bluetooth device known to an adapter.
type Device struct {
	s       *Session
	adapter string
	addr    bluetooth.MAC
	path    dbus.ObjectPath
}

// Device returns the device with the given address on the named adapter.
func (s *Session) Device(adapter string, addr bluetooth.MAC) *Device {
	return &Device{s: s, adapter: adapter, addr: addr, path: DevicePath(adapter, addr)}
}

// AdapterName returns the name of the adapter the device belongs to.
func (d *Device) AdapterName() string { return d.adapter }

// Address returns the device address.
func (d *Device) Address() bluetooth.MAC { return d.addr }

// Path returns the device object path,
// e.g. /org/bluez/hci0/dev_B8_27_EB_B9_36_4E.
func (d *Device) Path() dbus.ObjectPath { return d.path }

func (d *Device) String() string {
	return fmt.Sprintf("Device{adapter: %s, address: %s}", d.adapter, d.addr)
}

func (d *Device) property(ctx context.Context, name string, dst interface{}) error {
	if err := d.s.getProperty(ctx, d.path, deviceInterface, name, dst); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// AddressType is "public" or "random".
func (d *Device) AddressType(ctx context.Context) (string, error) {
	var v string
	err := d.property(ctx, "AddressType", &v)
	return v, err
}

// Name is the remote name. Prefer Alias for display.
func (d *Device) Name(ctx context.Context) (string, error) {
	var v string
	err := d.property(ctx, "Name", &v)
	return v, err
}

// Alias is the display name; it falls back to Name when unset.
func (d *Device) Alias(ctx context.Context) (string, error) {
	var v string
	err := d.property(ctx, "Alias", &v)
	return v, err
}

// Icon is the freedesktop.org icon name proposed for the device.
func (d *Device) Icon(ctx context.Context) (string, error) {
	var v string
	err := d.property(ctx, "Icon", &v)
	return v, err
}

// Class is the Bluetooth class of device.
func (d *Device) Class(ctx context.Context) (uint32, error) {
	var v uint32
	err := d.property(ctx, "Class", &v)
	return v, err
}

// Appearance is the external appearance from the GAP service.
func (d *Device) Appearance(ctx context.Context) (uint16, error) {
	var v uint16
	err := d.property(ctx, "Appearance", &v)
	return v, err
}

// UUIDs lists the 128-bit service UUIDs of the device.
func (d *Device) UUIDs(ctx context.Context) ([]string, error) {
	var v []string
	err := d.property(ctx, "UUIDs", &v)
	return v, err
}

func (d *Device) Paired(ctx context.Context) (bool, error) {
	var v bool
	err := d.property(ctx, "Paired", &v)
	return v, err
}

func (d *Device) Connected(ctx context.Context) (bool, error) {
	var v bool
	err := d.property(ctx, "Connected", &v)
	return v, err
}

func (d *Device) Trusted(ctx context.Context) (bool, error) {
	var v bool
	err := d.property(ctx, "Trusted", &v)
	return v, err
}

// RSSI is the signal strength of the last inquiry or advertisement.
func (d *Device) RSSI(ctx context.Context) (int16, error) {
	var v int16
	err := d.property(ctx, "RSSI", &v)
	return v, err
}

// TxPower is the advertised transmit power level.
func (d *Device) TxPower(ctx context.Context) (int16, error) {
	var v int16
	err := d.property(ctx, "TxPower", &v)
	return v, err
}
