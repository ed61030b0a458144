package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBroker(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBroker() error {
	if err := ensurePositiveMap(map[string]int{
		"broker.request_timeout":      c.Broker.RequestTimeout,
		"broker.max_request_timeout":  c.Broker.MaxRequestTimeout,
		"broker.liveness_threshold":   c.Broker.LivenessThreshold,
		"broker.log_capacity":         c.Broker.LogCapacity,
		"broker.socket_write_timeout": c.Broker.SocketWriteTimeout,
	}); err != nil {
		return err
	}
	if c.Broker.MaxRequestTimeout < c.Broker.RequestTimeout {
		return errors.New("broker.max_request_timeout must be >= broker.request_timeout")
	}
	if err := validateBind("broker.http_bind", c.Broker.HTTPBind); err != nil {
		return err
	}
	if c.Broker.SocketBind != "" {
		if err := validateBind("broker.socket_bind", c.Broker.SocketBind); err != nil {
			return err
		}
		if BindsConflict(c.Broker.HTTPBind, c.Broker.SocketBind) {
			return errors.New("broker.socket_bind must differ from broker.http_bind")
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func validateBind(key, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must be set", key)
	}
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

// BindsConflict reports whether two listen addresses name the same port.
// Port 0 asks the kernel for a free port and never conflicts.
func BindsConflict(a, b string) bool {
	hostA, portA, errA := net.SplitHostPort(a)
	hostB, portB, errB := net.SplitHostPort(b)
	if errA != nil || errB != nil {
		return a == b
	}
	if portA == "0" || portB == "0" || portA != portB {
		return false
	}
	return hostA == hostB || hostA == "" || hostB == "" || hostA == "0.0.0.0" || hostB == "0.0.0.0"
}
