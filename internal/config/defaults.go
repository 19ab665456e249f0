package config

// Default values for configuration options. These are layer 0 of the
// override chain and let ircup run against a local network with only
// [irc] server and [upload] server set.
const (
	defaultNick             = "ircup"
	defaultRealname         = "ircup file uploader"
	defaultConnectTimeout   = "15s"
	defaultRegisterTimeout  = "30s"
	defaultMaxFileSize      = "10MB"
	defaultUploadMessage    = "Uploaded file: %URL%"
	defaultChunkSize        = "2MiB"
	defaultParallelUploads  = 2
	defaultBandwidthLimit   = "0"
	defaultRequestTimeout   = "10s"
	defaultTokenValidity    = "15s"
	defaultUnsupportedTTL   = "5m"
	defaultSettleDelay      = "2s"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultMessageTagsCap   = "message-tags"
	defaultDatabaseFileName = "ircup.db"
	defaultPIDFileName      = "watch.pid"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		IRC:     defaultIRCConfig(),
		Upload:  defaultUploadConfig(),
		Token:   defaultTokenConfig(),
		Watch:   defaultWatchConfig(),
		Logging: defaultLoggingConfig(),
	}
}

func defaultIRCConfig() IRCConfig {
	return IRCConfig{
		Nick:            defaultNick,
		Realname:        defaultRealname,
		Caps:            []string{defaultMessageTagsCap},
		ConnectTimeout:  defaultConnectTimeout,
		RegisterTimeout: defaultRegisterTimeout,
	}
}

func defaultUploadConfig() UploadConfig {
	return UploadConfig{
		MaxFileSize:     defaultMaxFileSize,
		UploadMessage:   defaultUploadMessage,
		ChunkSize:       defaultChunkSize,
		ParallelUploads: defaultParallelUploads,
		BandwidthLimit:  defaultBandwidthLimit,
		Resume:          true,
	}
}

func defaultTokenConfig() TokenConfig {
	return TokenConfig{
		RequestTimeout: defaultRequestTimeout,
		Validity:       defaultTokenValidity,
		UnsupportedTTL: defaultUnsupportedTTL,
	}
}

func defaultWatchConfig() WatchConfig {
	return WatchConfig{
		SettleDelay: defaultSettleDelay,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
