package bluez

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

// ErrPathInUse is returned when publishing on a path that already holds an
// object.
var ErrPathInUse = errors.New("bluez: object path already published")

// exportable is implemented by the objects a session publishes. Its methods
// are unexported so that they never show up as bus methods.
type exportable interface {
	iface() string
	properties() map[string]interface{}
	introspection() introspect.Interface
}

// ObjectTable is the set of objects a session has published on the bus.
// Publishing and removal are serialized; the lock is never held across a
// remote call.
type ObjectTable struct {
	exporter Exporter

	mu      sync.Mutex
	objects map[dbus.ObjectPath]exportable
}

func newObjectTable(exporter Exporter) *ObjectTable {
	return &ObjectTable{
		exporter: exporter,
		objects:  make(map[dbus.ObjectPath]exportable),
	}
}

func (t *ObjectTable) publish(path dbus.ObjectPath, obj exportable) error {
	if !path.IsValid() {
		return fmt.Errorf("publish %q: invalid object path", path)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.objects[path]; ok {
		return fmt.Errorf("publish %s: %w", path, ErrPathInUse)
	}

	node := &introspect.Node{
		Name:       string(path),
		Interfaces: []introspect.Interface{obj.introspection(), prop.IntrospectData},
	}
	exports := []struct {
		v     interface{}
		iface string
	}{
		{obj, obj.iface()},
		{&propertySet{iface: obj.iface(), values: obj.properties()}, propertiesInterface},
		{introspect.NewIntrospectable(node), introspectableInterface},
	}
	for i, e := range exports {
		if err := t.exporter.Export(e.v, path, e.iface); err != nil {
			for _, done := range exports[:i] {
				_ = t.exporter.Export(nil, path, done.iface)
			}
			return fmt.Errorf("publish %s: %w", path, err)
		}
	}
	t.objects[path] = obj
	return nil
}

func (t *ObjectTable) remove(path dbus.ObjectPath) (exportable, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.objects[path]
	if !ok {
		return nil, false
	}
	delete(t.objects, path)
	for _, iface := range []string{obj.iface(), propertiesInterface, introspectableInterface} {
		_ = t.exporter.Export(nil, path, iface)
	}
	return obj, true
}

// Lookup returns the object published at path.
func (t *ObjectTable) Lookup(path dbus.ObjectPath) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.objects[path]
	return obj, ok
}

// Len returns the number of published objects.
func (t *ObjectTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.objects)
}

// Paths returns the published paths in sorted order.
func (t *ObjectTable) Paths() []dbus.ObjectPath {
	t.mu.Lock()
	paths := make([]dbus.ObjectPath, 0, len(t.objects))
	for p := range t.objects {
		paths = append(paths, p)
	}
	t.mu.Unlock()
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

// propertySet serves org.freedesktop.DBus.Properties for one read-only
// interface.
type propertySet struct {
	iface  string
	values map[string]interface{}
}

func (p *propertySet) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	if iface != p.iface {
		return dbus.Variant{}, prop.ErrIfaceNotFound
	}
	v, ok := p.values[name]
	if !ok {
		return dbus.Variant{}, prop.ErrPropNotFound
	}
	return dbus.MakeVariant(v), nil
}

func (p *propertySet) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != p.iface {
		return nil, prop.ErrIfaceNotFound
	}
	out := make(map[string]dbus.Variant, len(p.values))
	for name, v := range p.values {
		out[name] = dbus.MakeVariant(v)
	}
	return out, nil
}

func (p *propertySet) Set(iface, name string, _ dbus.Variant) *dbus.Error {
	if iface != p.iface {
		return prop.ErrIfaceNotFound
	}
	if _, ok := p.values[name]; !ok {
		return prop.ErrPropNotFound
	}
	return prop.ErrReadOnly
}
