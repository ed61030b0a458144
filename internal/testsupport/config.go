package testsupport

import (
	"path/filepath"
	"testing"

	"relay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Both transports bind ephemeral loopback ports.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Broker.HTTPBind = "127.0.0.1:0"
	cfgVal.Broker.SocketBind = "127.0.0.1:0"
	cfgVal.Broker.RequestTimeout = 2
	cfgVal.Broker.MaxRequestTimeout = 5
	cfgVal.Broker.SocketWriteTimeout = 1
	cfgVal.History.BufferSize = 16

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRequestTimeout overrides the default call timeout in seconds.
func WithRequestTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Broker.RequestTimeout = seconds
		b.cfg.Broker.MaxRequestTimeout = max(b.cfg.Broker.MaxRequestTimeout, seconds)
	}
}

// WithMaxCallsPerSecond enables per-host throttling of /request.
func WithMaxCallsPerSecond(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Broker.MaxCallsPerSecond = n
	}
}

// WithoutSocket disables the persistent-socket transport.
func WithoutSocket() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Broker.SocketBind = ""
	}
}

// WithHistoryDisabled turns off the history store.
func WithHistoryDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
