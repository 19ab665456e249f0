package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvDataDir, "/custom/data")
	t.Setenv(EnvNick, "bot")
	t.Setenv(EnvPassword, "s3cret")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "/custom/data", overrides.DataDir)
	assert.Equal(t, "bot", overrides.Nick)
	assert.Equal(t, "s3cret", overrides.Password)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvNick, "")
	t.Setenv(EnvPassword, "")

	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "IRCUP_CONFIG", EnvConfig)
	assert.Equal(t, "IRCUP_DATA_DIR", EnvDataDir)
}
