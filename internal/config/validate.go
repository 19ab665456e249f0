package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Validation range constants.
const (
	minParallelUploads = 1
	maxParallelUploads = 16
	minChunkBytes      = 64 << 10
	maxChunkBytes      = 512 << 20
	minConnectTimeout  = 1 * time.Second
	minRegisterTimeout = 1 * time.Second
	minRequestTimeout  = 1 * time.Second
	minTokenValidity   = 1 * time.Second
	minSettleDelay     = 100 * time.Millisecond
	urlPlaceholder     = "%URL%"
	maxNickLength      = 64
	channelPrefixChars = "#&+!"
	mimeWildcard       = "*"
)

var (
	ircSchemes    = map[string]bool{"irc": true, "ircs": true, "ws": true, "wss": true}
	uploadSchemes = map[string]bool{"http": true, "https": true}
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateIRC(&cfg.IRC)...)
	errs = append(errs, validateUpload(&cfg.Upload)...)
	errs = append(errs, validateToken(&cfg.Token)...)
	errs = append(errs, validateWatch(&cfg.Watch)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if cfg.DataDir != "" && !strings.HasPrefix(cfg.DataDir, "~") && !filepath.IsAbs(cfg.DataDir) {
		errs = append(errs, fmt.Errorf("data_dir: must be absolute, got %q", cfg.DataDir))
	}

	return errors.Join(errs...)
}

// RequireServers reports which of the two endpoints a command needs are
// still unset. Validate accepts empty servers so that "config show" works
// on a fresh install.
func RequireServers(cfg *Config) error {
	var errs []error

	if cfg.IRC.Server == "" {
		errs = append(errs, errors.New("irc.server: not configured"))
	}

	if cfg.Upload.Server == "" {
		errs = append(errs, errors.New("upload.server: not configured"))
	}

	return errors.Join(errs...)
}

func validateIRC(c *IRCConfig) []error {
	var errs []error

	if c.Server != "" {
		errs = append(errs, validateURL("irc.server", c.Server, ircSchemes)...)
	}

	errs = append(errs, validateNick(c.Nick)...)

	if strings.ContainsAny(c.Target, " ,\r\n") {
		errs = append(errs, fmt.Errorf("irc.target: must be a single channel or nick, got %q", c.Target))
	}

	for _, capability := range c.Caps {
		if capability == "" || strings.ContainsAny(capability, " \r\n") {
			errs = append(errs, fmt.Errorf("irc.caps: invalid capability %q", capability))
		}
	}

	errs = append(errs, validateDurationMin("irc.connect_timeout", c.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("irc.register_timeout", c.RegisterTimeout, minRegisterTimeout)...)

	return errs
}

func validateNick(nick string) []error {
	switch {
	case nick == "":
		return []error{errors.New("irc.nick: must not be empty")}
	case len(nick) > maxNickLength:
		return []error{fmt.Errorf("irc.nick: must be at most %d characters", maxNickLength)}
	case strings.ContainsAny(nick, " ,*?!@:\r\n"):
		return []error{fmt.Errorf("irc.nick: invalid character in %q", nick)}
	case strings.ContainsRune(channelPrefixChars, rune(nick[0])) || (nick[0] >= '0' && nick[0] <= '9'):
		return []error{fmt.Errorf("irc.nick: must not start with a digit or channel prefix, got %q", nick)}
	}

	return nil
}

func validateURL(field, raw string, schemes map[string]bool) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if !schemes[u.Scheme] {
		return []error{fmt.Errorf("%s: unsupported scheme %q", field, u.Scheme)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("%s: missing host in %q", field, raw)}
	}

	return nil
}

func validateUpload(u *UploadConfig) []error {
	var errs []error

	if u.Server != "" {
		errs = append(errs, validateURL("upload.server", u.Server, uploadSchemes)...)
	}

	if _, err := ParseSize(u.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("upload.max_file_size: %w", err))
	}

	for _, ft := range u.AllowedFileTypes {
		if err := validateFileType(ft); err != nil {
			errs = append(errs, err)
		}
	}

	if !strings.Contains(u.UploadMessage, urlPlaceholder) {
		errs = append(errs, fmt.Errorf("upload.upload_message: must contain %s", urlPlaceholder))
	}

	errs = append(errs, validateChunkSize(u.ChunkSize)...)

	if u.ParallelUploads < minParallelUploads || u.ParallelUploads > maxParallelUploads {
		errs = append(errs, fmt.Errorf("upload.parallel_uploads: must be between %d and %d, got %d",
			minParallelUploads, maxParallelUploads, u.ParallelUploads))
	}

	if _, err := ParseRate(u.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("upload.bandwidth_limit: %w", err))
	}

	return errs
}

// validateFileType accepts MIME types ("image/png"), MIME wildcards
// ("image/*") and file extensions (".png").
func validateFileType(ft string) error {
	if strings.HasPrefix(ft, ".") && len(ft) > 1 && !strings.ContainsAny(ft, "/ ") {
		return nil
	}

	major, minor, ok := strings.Cut(ft, "/")
	if !ok || major == "" || minor == "" || strings.Contains(minor, "/") {
		return fmt.Errorf("upload.allowed_file_types: %q is not a MIME type or .extension", ft)
	}

	if major == mimeWildcard {
		return fmt.Errorf("upload.allowed_file_types: wildcard only allowed in subtype, got %q", ft)
	}

	return nil
}

func validateChunkSize(s string) []error {
	n, err := ParseSize(s)
	if err != nil {
		return []error{fmt.Errorf("upload.chunk_size: %w", err)}
	}

	if n < minChunkBytes || n > maxChunkBytes {
		return []error{fmt.Errorf("upload.chunk_size: must be between 64KiB and 512MiB, got %s", s)}
	}

	return nil
}

func validateToken(t *TokenConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("token.request_timeout", t.RequestTimeout, minRequestTimeout)...)
	errs = append(errs, validateDurationMin("token.validity", t.Validity, minTokenValidity)...)
	errs = append(errs, validateDurationNonNeg("token.unsupported_ttl", t.UnsupportedTTL)...)

	return errs
}

func validateWatch(w *WatchConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("watch.settle_delay", w.SettleDelay, minSettleDelay)...)

	for _, p := range w.Ignore {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, errors.New("watch.ignore: patterns must not be empty"))
		}
	}

	return errs
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateDurationNonNeg(field, value string) []error {
	return validateDurationMin(field, value, 0)
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
