package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"bluemon/bluez"

	"github.com/BurntSushi/toml"
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

type config struct {
	Adapter  string
	// Manager overrides the selected adapter as the monitor manager.
	Manager  dbus.ObjectPath
	LogLevel logrus.Level
	Session  bluez.Config
	Monitor  bluez.Monitor
}

func defaultConfig() config {
	return config{
		LogLevel: logrus.InfoLevel,
		Session:  bluez.DefaultConfig(),
		Monitor:  bluez.DefaultMonitor(),
	}
}

type filePattern struct {
	Start   uint8  `toml:"start"`
	ADType  uint8  `toml:"ad_type"`
	Content string `toml:"content_hex"`
}

type fileConfig struct {
	Adapter            string        `toml:"adapter"`
	LogLevel           string        `toml:"log_level"`
	Service            string        `toml:"service"`
	ManagerPath        string        `toml:"manager_path"`
	PublishPrefix      string        `toml:"publish_prefix"`
	Timeout            string        `toml:"timeout"`
	Type               string        `toml:"type"`
	RSSILowThreshold   int16         `toml:"rssi_low_threshold"`
	RSSIHighThreshold  int16         `toml:"rssi_high_threshold"`
	RSSILowTimeout     uint16        `toml:"rssi_low_timeout"`
	RSSIHighTimeout    uint16        `toml:"rssi_high_timeout"`
	RSSISamplingPeriod uint16        `toml:"rssi_sampling_period"`
	Patterns           []filePattern `toml:"pattern"`
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("adapter") {
		cfg.Adapter = strings.TrimSpace(raw.Adapter)
	}
	if meta.IsDefined("log_level") {
		lvl, err := logrus.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return config{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = lvl
	}
	if meta.IsDefined("service") {
		cfg.Session.Service = strings.TrimSpace(raw.Service)
	}
	if meta.IsDefined("manager_path") {
		path := dbus.ObjectPath(strings.TrimSpace(raw.ManagerPath))
		if !path.IsValid() {
			return config{}, fmt.Errorf("parse manager_path: invalid object path %q", path)
		}
		cfg.Manager = path
		cfg.Session.ManagerPath = path
	}
	if meta.IsDefined("publish_prefix") {
		prefix := strings.TrimSpace(raw.PublishPrefix)
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		if !dbus.ObjectPath(prefix + "x").IsValid() {
			return config{}, fmt.Errorf("parse publish_prefix: invalid object path %q", prefix)
		}
		cfg.Session.PublishPrefix = prefix
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return config{}, fmt.Errorf("parse timeout: %w", err)
		}
		if d <= 0 {
			return config{}, fmt.Errorf("parse timeout: must be positive, got %s", d)
		}
		cfg.Session.Timeout = d
	}

	if meta.IsDefined("type") {
		cfg.Monitor.Type = strings.TrimSpace(raw.Type)
	}
	if meta.IsDefined("rssi_low_threshold") {
		cfg.Monitor.RSSILowThreshold = raw.RSSILowThreshold
	}
	if meta.IsDefined("rssi_high_threshold") {
		cfg.Monitor.RSSIHighThreshold = raw.RSSIHighThreshold
	}
	if meta.IsDefined("rssi_low_timeout") {
		cfg.Monitor.RSSILowTimeout = raw.RSSILowTimeout
	}
	if meta.IsDefined("rssi_high_timeout") {
		cfg.Monitor.RSSIHighTimeout = raw.RSSIHighTimeout
	}
	if meta.IsDefined("rssi_sampling_period") {
		cfg.Monitor.RSSISamplingPeriod = raw.RSSISamplingPeriod
	}
	for i, p := range raw.Patterns {
		content, err := hex.DecodeString(strings.TrimSpace(p.Content))
		if err != nil {
			return config{}, fmt.Errorf("parse pattern %d: %w", i, err)
		}
		cfg.Monitor.Patterns = append(cfg.Monitor.Patterns, bluez.Pattern{
			StartPosition: p.Start,
			ADType:        p.ADType,
			Content:       content,
		})
	}

	return cfg, nil
}
