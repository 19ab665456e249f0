package config

import (
	"fmt"
	"io"
	"strings"
)

// redacted replaces secrets in rendered output.
const redacted = "(set)"

// RenderEffective writes the resolved configuration as an annotated TOML-ish
// summary to w. It powers "ircup config show". Passwords are never printed.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)
	ew.printf("data_dir = %q\n\n", cfg.DataDir)

	renderIRCSection(ew, &cfg.IRC)
	renderUploadSection(ew, &cfg.Upload)
	renderTokenSection(ew, &cfg.Token)
	renderWatchSection(ew, &cfg.Watch)
	renderLoggingSection(ew, &cfg.Logging)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderIRCSection(ew *errWriter, c *IRCConfig) {
	ew.printf("[irc]\n")
	ew.printf("  server           = %q\n", c.Server)
	ew.printf("  nick             = %q\n", c.Nick)

	if c.Username != "" {
		ew.printf("  username         = %q\n", c.Username)
	}

	ew.printf("  realname         = %q\n", c.Realname)

	if c.Password != "" {
		ew.printf("  password         = %s\n", redacted)
	}

	ew.printf("  target           = %q\n", c.Target)
	ew.printf("  caps             = [%s]\n", joinQuoted(c.Caps))
	ew.printf("  insecure_tls     = %t\n", c.InsecureTLS)
	ew.printf("  connect_timeout  = %q\n", c.ConnectTimeout)
	ew.printf("  register_timeout = %q\n", c.RegisterTimeout)
	ew.printf("\n")
}

func renderUploadSection(ew *errWriter, u *UploadConfig) {
	ew.printf("[upload]\n")
	ew.printf("  server           = %q\n", u.Server)
	ew.printf("  max_file_size    = %q\n", u.MaxFileSize)

	if len(u.AllowedFileTypes) > 0 {
		ew.printf("  allowed_file_types = [%s]\n", joinQuoted(u.AllowedFileTypes))
	}

	ew.printf("  upload_message   = %q\n", u.UploadMessage)
	ew.printf("  chunk_size       = %q\n", u.ChunkSize)
	ew.printf("  parallel_uploads = %d\n", u.ParallelUploads)
	ew.printf("  bandwidth_limit  = %q\n", u.BandwidthLimit)
	ew.printf("  resume           = %t\n", u.Resume)
	ew.printf("\n")
}

func renderTokenSection(ew *errWriter, t *TokenConfig) {
	ew.printf("[token]\n")
	ew.printf("  request_timeout = %q\n", t.RequestTimeout)
	ew.printf("  validity        = %q\n", t.Validity)
	ew.printf("  unsupported_ttl = %q\n", t.UnsupportedTTL)
	ew.printf("\n")
}

func renderWatchSection(ew *errWriter, w *WatchConfig) {
	ew.printf("[watch]\n")
	ew.printf("  settle_delay = %q\n", w.SettleDelay)

	if len(w.Ignore) > 0 {
		ew.printf("  ignore       = [%s]\n", joinQuoted(w.Ignore))
	}

	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
