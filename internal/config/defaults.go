package config

const (
	defaultConfigPath         = "~/.config/relay/config.toml"
	defaultDataDir            = "~/.local/share/relay"
	defaultLogDir             = "~/.local/share/relay/logs"
	defaultHTTPBind           = "127.0.0.1:8090"
	defaultSocketBind         = "127.0.0.1:8091"
	defaultRequestTimeout     = 30
	defaultMaxRequestTimeout  = 300
	defaultLivenessThreshold  = 5
	defaultLogCapacity        = 100
	defaultSocketWriteTimeout = 10
	defaultHistoryRetention   = 30
	defaultHistoryBuffer      = 256
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Broker: Broker{
			HTTPBind:           defaultHTTPBind,
			SocketBind:         defaultSocketBind,
			RequestTimeout:     defaultRequestTimeout,
			MaxRequestTimeout:  defaultMaxRequestTimeout,
			LivenessThreshold:  defaultLivenessThreshold,
			LogCapacity:        defaultLogCapacity,
			SocketWriteTimeout: defaultSocketWriteTimeout,
		},
		History: History{
			Enabled:       true,
			RetentionDays: defaultHistoryRetention,
			BufferSize:    defaultHistoryBuffer,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
