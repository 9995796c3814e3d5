package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bluemon/bluez"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bluemon: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		adapter    string
		logLevel   string
	)
	flagSet := pflag.NewFlagSet("bluemon", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a TOML config file")
	flagSet.StringVar(&adapter, "adapter", "", "adapter to monitor on (default: first adapter)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := defaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = loadConfig(configPath); err != nil {
			return err
		}
	}
	if adapter != "" {
		cfg.Adapter = adapter
	}
	if logLevel != "" {
		lvl, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = lvl
	}

	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logger.WithField("component", "bluemon")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("dbus: %w", err)
	}
	defer conn.Close()

	session := bluez.NewSession(conn, cfg.Session, log)
	var a *bluez.Adapter
	if cfg.Adapter != "" {
		a = session.Adapter(cfg.Adapter)
	} else if a, err = session.DefaultAdapter(ctx); err != nil {
		return err
	}
	if err := a.SetPowered(ctx, true); err != nil {
		return fmt.Errorf("power on %s: %w", a.Name(), err)
	}

	statusCh := make(chan string, 32)
	publishStatus := func(s string) {
		select {
		case statusCh <- s:
		default:
		}
	}
	m := cfg.Monitor
	m.Activate = func() error {
		publishStatus("Monitor active")
		return nil
	}
	m.Release = func() error {
		publishStatus("Monitor released by daemon")
		return nil
	}
	m.DeviceFound = func(req bluez.DeviceFound) (string, error) {
		// property reads are round trips; keep them off the reply path
		go func() { publishStatus(describeDevice(ctx, session.Device(req.Adapter, req.Addr))) }()
		return req.Addr.String(), nil
	}
	m.DeviceLost = func(req bluez.DeviceLost) (string, error) {
		publishStatus(fmt.Sprintf("Device lost: %s", req.Addr))
		return req.Addr.String(), nil
	}

	var handle *bluez.MonitorHandle
	if cfg.Manager != "" {
		handle, err = session.RegisterMonitor(ctx, m)
	} else {
		handle, err = a.RegisterMonitor(ctx, m)
	}
	if err != nil {
		return err
	}
	fmt.Printf("--- bluemon: monitoring advertisements on %s ---\n", a.Name())
	log.WithField("handle", handle).Debug("Monitor registered")

	for {
		select {
		case status := <-statusCh:
			fmt.Printf("[System]: %s\n", status)
		case <-ctx.Done():
			fmt.Println("[System]: shutting down")
			_ = handle.Close()
			session.Wait()
			return nil
		}
	}
}

func describeDevice(ctx context.Context, d *bluez.Device) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Device found: %s on %s", d.Address(), d.AdapterName())
	if v, err := d.Alias(ctx); err == nil {
		fmt.Fprintf(&b, "\n    Alias:        %s", v)
	}
	if v, err := d.AddressType(ctx); err == nil {
		fmt.Fprintf(&b, "\n    Address type: %s", v)
	}
	if v, err := d.RSSI(ctx); err == nil {
		fmt.Fprintf(&b, "\n    RSSI:         %d", v)
	}
	if v, err := d.UUIDs(ctx); err == nil && len(v) > 0 {
		fmt.Fprintf(&b, "\n    UUIDs:        %s", strings.Join(v, ", "))
	}
	if v, err := d.Connected(ctx); err == nil {
		fmt.Fprintf(&b, "\n    Connected:    %t", v)
	}
	return b.String()
}
