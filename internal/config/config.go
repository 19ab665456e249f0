// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for ircup. Values are layered
// defaults -> config file -> environment -> CLI flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	DataDir string        `toml:"data_dir"`
	IRC     IRCConfig     `toml:"irc"`
	Upload  UploadConfig  `toml:"upload"`
	Token   TokenConfig   `toml:"token"`
	Watch   WatchConfig   `toml:"watch"`
	Logging LoggingConfig `toml:"logging"`
}

// IRCConfig describes the network uploads are announced on. Server accepts
// irc://, ircs://, ws:// and wss:// URLs.
type IRCConfig struct {
	Server          string   `toml:"server"`
	Nick            string   `toml:"nick"`
	Username        string   `toml:"username"`
	Realname        string   `toml:"realname"`
	Password        string   `toml:"password"`
	Target          string   `toml:"target"`
	Caps            []string `toml:"caps"`
	InsecureTLS     bool     `toml:"insecure_tls"`
	ConnectTimeout  string   `toml:"connect_timeout"`
	RegisterTimeout string   `toml:"register_timeout"`
}

// UploadConfig controls the tus endpoint, pre-upload checks and how
// completed uploads are shared.
type UploadConfig struct {
	Server           string   `toml:"server"`
	MaxFileSize      string   `toml:"max_file_size"`
	AllowedFileTypes []string `toml:"allowed_file_types"`
	UploadMessage    string   `toml:"upload_message"`
	ChunkSize        string   `toml:"chunk_size"`
	ParallelUploads  int      `toml:"parallel_uploads"`
	BandwidthLimit   string   `toml:"bandwidth_limit"`
	Resume           bool     `toml:"resume"`
}

// TokenConfig tunes EXTJWT token acquisition.
type TokenConfig struct {
	RequestTimeout string `toml:"request_timeout"`
	Validity       string `toml:"validity"`
	UnsupportedTTL string `toml:"unsupported_ttl"`
}

// WatchConfig controls "ircup watch". Ignore holds gitignore-style patterns
// matched against paths relative to the watched directory.
type WatchConfig struct {
	Ignore      []string `toml:"ignore"`
	SettleDelay string   `toml:"settle_delay"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish
// "not specified" (nil) from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Target     *string // --target flag
	Server     *string // --server flag
	Nick       *string // --nick flag
}

// mustDuration parses a duration that Validate has already accepted.
// Unparseable or empty values fall back to def.
func mustDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}

	return d
}

// ConnectTimeoutDuration returns connect_timeout as a time.Duration.
func (c *IRCConfig) ConnectTimeoutDuration() time.Duration {
	return mustDuration(c.ConnectTimeout, mustDuration(defaultConnectTimeout, 0))
}

// RegisterTimeoutDuration returns register_timeout as a time.Duration.
func (c *IRCConfig) RegisterTimeoutDuration() time.Duration {
	return mustDuration(c.RegisterTimeout, mustDuration(defaultRegisterTimeout, 0))
}

// RequestTimeoutDuration returns request_timeout as a time.Duration.
func (c *TokenConfig) RequestTimeoutDuration() time.Duration {
	return mustDuration(c.RequestTimeout, mustDuration(defaultRequestTimeout, 0))
}

// ValidityDuration returns validity as a time.Duration.
func (c *TokenConfig) ValidityDuration() time.Duration {
	return mustDuration(c.Validity, mustDuration(defaultTokenValidity, 0))
}

// UnsupportedTTLDuration returns unsupported_ttl as a time.Duration.
func (c *TokenConfig) UnsupportedTTLDuration() time.Duration {
	return mustDuration(c.UnsupportedTTL, mustDuration(defaultUnsupportedTTL, 0))
}

// SettleDelayDuration returns settle_delay as a time.Duration.
func (c *WatchConfig) SettleDelayDuration() time.Duration {
	return mustDuration(c.SettleDelay, mustDuration(defaultSettleDelay, 0))
}
