package bluez

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/godbus/dbus/v5"
)

// oneshot is a signal that fires at most once. onFire, if set, runs before
// the channel is closed.
type oneshot struct {
	once   sync.Once
	ch     chan struct{}
	onFire func()
}

func newOneshot(onFire func()) *oneshot {
	return &oneshot{ch: make(chan struct{}), onFire: onFire}
}

func (o *oneshot) fire() {
	o.once.Do(func() {
		if o.onFire != nil {
			o.onFire()
		}
		close(o.ch)
	})
}

func (o *oneshot) done() <-chan struct{} {
	return o.ch
}

// MonitorHandle keeps a monitor registered.
//
// Close it to unregister the monitor. A handle that is garbage collected
// without being closed unregisters the monitor as well.
type MonitorHandle struct {
	path dbus.ObjectPath
	drop *oneshot
}

func newMonitorHandle(path dbus.ObjectPath, drop *oneshot) *MonitorHandle {
	h := &MonitorHandle{path: path, drop: drop}
	runtime.AddCleanup(h, func(drop *oneshot) { drop.fire() }, drop)
	return h
}

// Close starts unregistering the monitor and returns without waiting for
// it. Closing more than once is a no-op.
func (h *MonitorHandle) Close() error {
	h.drop.fire()
	return nil
}

func (h *MonitorHandle) String() string {
	return fmt.Sprintf("MonitorHandle{%s}", h.path)
}
