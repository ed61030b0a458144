package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBroker()
	c.normalizeHistory()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBroker() {
	if value, ok := os.LookupEnv("RELAY_HTTP_BIND"); ok && strings.TrimSpace(value) != "" {
		c.Broker.HTTPBind = value
	}
	if value, ok := os.LookupEnv("RELAY_SOCKET_BIND"); ok {
		c.Broker.SocketBind = value
	}
	c.Broker.HTTPBind = strings.TrimSpace(c.Broker.HTTPBind)
	if c.Broker.HTTPBind == "" {
		c.Broker.HTTPBind = defaultHTTPBind
	}
	c.Broker.SocketBind = strings.TrimSpace(c.Broker.SocketBind)
	if c.Broker.LogCapacity <= 0 {
		c.Broker.LogCapacity = defaultLogCapacity
	}
	if c.Broker.SocketWriteTimeout <= 0 {
		c.Broker.SocketWriteTimeout = defaultSocketWriteTimeout
	}
	if c.Broker.MaxRequestTimeout <= 0 {
		c.Broker.MaxRequestTimeout = defaultMaxRequestTimeout
	}
	if c.Broker.MaxCallsPerSecond < 0 {
		c.Broker.MaxCallsPerSecond = 0
	}
}

func (c *Config) normalizeHistory() {
	if c.History.RetentionDays < 0 {
		c.History.RetentionDays = 0
	}
	if c.History.BufferSize <= 0 {
		c.History.BufferSize = defaultHistoryBuffer
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
