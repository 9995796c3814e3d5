package bluez

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config controls how a Session talks to the Bluetooth daemon.
type Config struct {
	// Service is the bus name of the daemon.
	Service string
	// ManagerPath is the object implementing AdvertisementMonitorManager1.
	ManagerPath dbus.ObjectPath
	// PublishPrefix is the namespace monitors are exported under. It must be
	// a valid object path ending in '/'.
	PublishPrefix string
	// Timeout bounds every outbound method call.
	Timeout time.Duration
}

// DefaultConfig returns the settings for the first local adapter.
func DefaultConfig() Config {
	return Config{
		Service:       bluezDest,
		ManagerPath:   AdapterPath("hci0"),
		PublishPrefix: "/io/bluemon/hci0/",
		Timeout:       120 * time.Second,
	}
}

// Exporter publishes Go values as objects on the bus. Exporting nil removes
// the interface from the path. *dbus.Conn implements it.
type Exporter interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
}

// Caller issues method calls on remote objects.
type Caller interface {
	Call(ctx context.Context, dest string, path dbus.ObjectPath, method string, args ...interface{}) *dbus.Call
}

type connCaller struct {
	conn *dbus.Conn
}

func (c connCaller) Call(ctx context.Context, dest string, path dbus.ObjectPath, method string, args ...interface{}) *dbus.Call {
	return c.conn.Object(dest, path).CallWithContext(ctx, method, 0, args...)
}

// Session is a client's view of the Bluetooth daemon: outbound calls plus
// the table of objects it has published for the daemon to call back into.
type Session struct {
	cfg     Config
	caller  Caller
	objects *ObjectTable
	log     *logrus.Entry

	// teardowns in flight, counted from the moment a handle fires
	mu      sync.Mutex
	pending int
	idle    *sync.Cond
}

// NewSession creates a session on an established bus connection. Zero
// fields of cfg take their DefaultConfig values.
func NewSession(conn *dbus.Conn, cfg Config, log *logrus.Entry) *Session {
	return newSession(connCaller{conn: conn}, conn, cfg, log)
}

func newSession(caller Caller, exporter Exporter, cfg Config, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Session{
		cfg:     cfg.withDefaults(),
		caller:  caller,
		objects: newObjectTable(exporter),
		log:     log,
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Service == "" {
		c.Service = def.Service
	}
	if c.ManagerPath == "" {
		c.ManagerPath = def.ManagerPath
	}
	if c.PublishPrefix == "" {
		c.PublishPrefix = def.PublishPrefix
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// Objects returns the table of objects published by this session.
func (s *Session) Objects() *ObjectTable {
	return s.objects
}

// Wait blocks until every teardown started by a closed or collected handle
// has completed. Monitors whose handles are still open are not waited for.
func (s *Session) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
}

func (s *Session) teardownStarted() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
}

func (s *Session) teardownDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.pending == 0 {
		s.idle.Broadcast()
	}
}

func (s *Session) call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) *dbus.Call {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.caller.Call(ctx, s.cfg.Service, path, method, args...)
}

func (s *Session) getProperty(ctx context.Context, path dbus.ObjectPath, iface, name string, dst interface{}) error {
	var v dbus.Variant
	if err := s.call(ctx, path, propertiesInterface+".Get", iface, name).Store(&v); err != nil {
		return err
	}
	return v.Store(dst)
}

func (s *Session) monitorPath() dbus.ObjectPath {
	return dbus.ObjectPath(s.cfg.PublishPrefix + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// RegisterMonitor publishes m and registers it with the advertisement
// monitor manager. The monitor stays registered until the returned handle is
// closed or garbage collected.
func (s *Session) RegisterMonitor(ctx context.Context, m Monitor) (*MonitorHandle, error) {
	return s.registerMonitor(ctx, s.cfg.ManagerPath, m)
}

func (s *Session) registerMonitor(ctx context.Context, manager dbus.ObjectPath, m Monitor) (*MonitorHandle, error) {
	path := s.monitorPath()
	log := s.log.WithField("path", path)
	reg := newRegisteredMonitor(m, log)
	drop, err := reg.arm(s.teardownStarted)
	if err != nil {
		return nil, err
	}

	log.Trace("Publishing monitor")
	if err := s.objects.publish(path, reg); err != nil {
		return nil, err
	}

	log.Trace("Registering monitor")
	if err := s.call(ctx, manager, monitorManagerInterface+".RegisterMonitor", path).Err; err != nil {
		s.objects.remove(path)
		return nil, fmt.Errorf("RegisterMonitor: %w", err)
	}

	go func() {
		<-drop.done()
		defer s.teardownDone()

		log.Trace("Unregistering monitor")
		if err := s.call(context.Background(), manager, monitorManagerInterface+".UnregisterMonitor", path).Err; err != nil {
			log.WithError(err).Debug("UnregisterMonitor failed")
		}

		log.Trace("Unpublishing monitor")
		s.objects.remove(path)
	}()

	return newMonitorHandle(path, drop), nil
}
