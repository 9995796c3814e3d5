package bluez

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"tinygo.org/x/bluetooth"
)

// busLog records exports and calls in the order they happened.
type busLog struct {
	mu     sync.Mutex
	events []string
}

func (l *busLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *busLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeExporter struct {
	log *busLog

	mu      sync.Mutex
	objects map[dbus.ObjectPath]map[string]interface{}
	failOn  string
}

func newFakeExporter(log *busLog) *fakeExporter {
	return &fakeExporter{log: log, objects: make(map[dbus.ObjectPath]map[string]interface{})}
}

func (e *fakeExporter) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v != nil && iface == e.failOn {
		return errors.New("export refused")
	}
	if v == nil {
		delete(e.objects[path], iface)
		if len(e.objects[path]) == 0 {
			delete(e.objects, path)
		}
		e.log.add("unexport %s %s", path, iface)
		return nil
	}
	if e.objects[path] == nil {
		e.objects[path] = make(map[string]interface{})
	}
	e.objects[path][iface] = v
	e.log.add("export %s %s", path, iface)
	return nil
}

func (e *fakeExporter) lookup(path dbus.ObjectPath, iface string) (interface{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.objects[path][iface]
	return v, ok
}

func (e *fakeExporter) paths() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.objects)
}

type fakeCall struct {
	Dest   string
	Path   dbus.ObjectPath
	Method string
	Args   []interface{}
}

// fakeCaller answers outbound calls from per-method handlers. Methods with
// no handler succeed with an empty body.
type fakeCaller struct {
	log *busLog

	mu       sync.Mutex
	calls    []fakeCall
	handlers map[string]func(fakeCall) *dbus.Call
}

func newFakeCaller(log *busLog) *fakeCaller {
	return &fakeCaller{log: log, handlers: make(map[string]func(fakeCall) *dbus.Call)}
}

func (c *fakeCaller) on(method string, h func(fakeCall) *dbus.Call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = h
}

func (c *fakeCaller) Call(ctx context.Context, dest string, path dbus.ObjectPath, method string, args ...interface{}) *dbus.Call {
	call := fakeCall{Dest: dest, Path: path, Method: method, Args: args}
	c.mu.Lock()
	c.calls = append(c.calls, call)
	h := c.handlers[method]
	c.mu.Unlock()

	c.log.add("call %s %v", method, args)
	if h == nil {
		return &dbus.Call{}
	}
	return h(call)
}

func (c *fakeCaller) callsTo(method string) []fakeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []fakeCall
	for _, call := range c.calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

const (
	registerMethod   = monitorManagerInterface + ".RegisterMonitor"
	unregisterMethod = monitorManagerInterface + ".UnregisterMonitor"
)

type testBus struct {
	log      *busLog
	exporter *fakeExporter
	caller   *fakeCaller
	hook     *test.Hook
	session  *Session
}

func newTestBus(t *testing.T) *testBus {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)

	log := &busLog{}
	b := &testBus{
		log:      log,
		exporter: newFakeExporter(log),
		caller:   newFakeCaller(log),
		hook:     hook,
	}
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	b.session = newSession(b.caller, b.exporter, cfg, logger.WithField("test", t.Name()))
	return b
}

// monitorAt returns the monitor object exported on path, as the bus would
// dispatch to it.
func (b *testBus) monitorAt(path dbus.ObjectPath) (*registeredMonitor, bool) {
	v, ok := b.exporter.lookup(path, monitorInterface)
	if !ok {
		return nil, false
	}
	m, ok := v.(*registeredMonitor)
	return m, ok
}

func mustMAC(t *testing.T, s string) bluetooth.MAC {
	t.Helper()
	mac, err := bluetooth.ParseMAC(s)
	if err != nil {
		t.Fatalf("ParseMAC(%q): %v", s, err)
	}
	return mac
}
