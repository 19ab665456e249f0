package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func strPtr(s string) *string { return &s }

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
data_dir = "/var/lib/ircup"

[irc]
server = "wss://irc.example.net/webirc"
nick = "uploader"
username = "up"
realname = "File uploader"
target = "#uploads"
caps = ["message-tags", "server-time"]
insecure_tls = true
connect_timeout = "5s"
register_timeout = "20s"

[upload]
server = "https://files.example/files/"
max_file_size = "25MiB"
allowed_file_types = ["image/*", "application/pdf", ".txt"]
upload_message = "New upload: %URL%"
chunk_size = "1MiB"
parallel_uploads = 4
bandwidth_limit = "1MB/s"
resume = false

[token]
request_timeout = "3s"
validity = "30s"
unsupported_ttl = "10m"

[watch]
ignore = ["*.part", ".DS_Store"]
settle_delay = "500ms"

[logging]
log_level = "debug"
log_format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ircup", cfg.DataDir)
	assert.Equal(t, "wss://irc.example.net/webirc", cfg.IRC.Server)
	assert.Equal(t, "uploader", cfg.IRC.Nick)
	assert.Equal(t, "#uploads", cfg.IRC.Target)
	assert.Equal(t, []string{"message-tags", "server-time"}, cfg.IRC.Caps)
	assert.True(t, cfg.IRC.InsecureTLS)
	assert.Equal(t, "25MiB", cfg.Upload.MaxFileSize)
	assert.Equal(t, []string{"image/*", "application/pdf", ".txt"}, cfg.Upload.AllowedFileTypes)
	assert.Equal(t, 4, cfg.Upload.ParallelUploads)
	assert.False(t, cfg.Upload.Resume)
	assert.Equal(t, "30s", cfg.Token.Validity)
	assert.Equal(t, []string{"*.part", ".DS_Store"}, cfg.Watch.Ignore)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `
[irc]
server = "irc://localhost"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "irc://localhost", cfg.IRC.Server)
	assert.Equal(t, "ircup", cfg.IRC.Nick)
	assert.Equal(t, "Uploaded file: %URL%", cfg.Upload.UploadMessage)
	assert.Equal(t, "15s", cfg.Token.Validity)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[irc\nserver = ")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationErrorsAreCollected(t *testing.T) {
	path := writeTestConfig(t, `
[upload]
parallel_uploads = 0
upload_message = "no placeholder"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallel_uploads")
	assert.Contains(t, err.Error(), "upload_message")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Precedence(t *testing.T) {
	path := writeTestConfig(t, `
data_dir = "/from/file"

[irc]
server = "irc://file.example"
nick = "filenick"
target = "#file"
`)

	t.Run("file only", func(t *testing.T) {
		cfg, used, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
		require.NoError(t, err)

		assert.Equal(t, path, used)
		assert.Equal(t, "/from/file", cfg.DataDir)
		assert.Equal(t, "filenick", cfg.IRC.Nick)
		assert.Equal(t, "#file", cfg.IRC.Target)
	})

	t.Run("env beats file", func(t *testing.T) {
		cfg, _, err := Resolve(EnvOverrides{
			ConfigPath: path,
			DataDir:    "/from/env",
			Nick:       "envnick",
			Password:   "pw",
		}, CLIOverrides{})
		require.NoError(t, err)

		assert.Equal(t, "/from/env", cfg.DataDir)
		assert.Equal(t, "envnick", cfg.IRC.Nick)
		assert.Equal(t, "pw", cfg.IRC.Password)
	})

	t.Run("cli beats env", func(t *testing.T) {
		cfg, _, err := Resolve(EnvOverrides{ConfigPath: path, Nick: "envnick"}, CLIOverrides{
			Nick:   strPtr("clinick"),
			Target: strPtr("#cli"),
			Server: strPtr("ircs://cli.example"),
		})
		require.NoError(t, err)

		assert.Equal(t, "clinick", cfg.IRC.Nick)
		assert.Equal(t, "#cli", cfg.IRC.Target)
		assert.Equal(t, "ircs://cli.example", cfg.IRC.Server)
	})

	t.Run("cli config path beats env", func(t *testing.T) {
		other := writeTestConfig(t, "[irc]\nnick = \"other\"\n")

		cfg, used, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{ConfigPath: other})
		require.NoError(t, err)

		assert.Equal(t, other, used)
		assert.Equal(t, "other", cfg.IRC.Nick)
	})
}

func TestResolve_DataDirDefaultsAndExpands(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.toml")

	cfg, _, err := Resolve(EnvOverrides{ConfigPath: missing}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, DefaultDataDir(), cfg.DataDir)

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, _, err = Resolve(EnvOverrides{ConfigPath: missing, DataDir: "~/ircup-data"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "ircup-data"), cfg.DataDir)
}

func TestResolve_InvalidOverrideFailsValidation(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.toml")

	_, _, err := Resolve(EnvOverrides{ConfigPath: missing}, CLIOverrides{Server: strPtr("http://not-irc")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "irc.server")
}
