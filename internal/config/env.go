package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "IRCUP_CONFIG"
	EnvDataDir  = "IRCUP_DATA_DIR"
	EnvNick     = "IRCUP_NICK"
	EnvPassword = "IRCUP_PASSWORD"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // IRCUP_CONFIG: override config file path
	DataDir    string // IRCUP_DATA_DIR: database and PID file location
	Nick       string // IRCUP_NICK: nickname override
	Password   string // IRCUP_PASSWORD: server password, kept out of config files
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DataDir:    os.Getenv(EnvDataDir),
		Nick:       os.Getenv(EnvNick),
		Password:   os.Getenv(EnvPassword),
	}
}
