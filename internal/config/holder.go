package config

import "sync"

// Holder gives the watch loop a config that can be swapped on SIGHUP while
// uploads read it. The file path is fixed for the life of the Holder.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder wraps the config resolved at startup and the file it came from.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the current snapshot. Callers must not modify it.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file Reload reads.
func (h *Holder) Path() string {
	return h.path
}

// Reload re-reads the config file and swaps it in. The [irc] section and
// data_dir keep their current values, since the connection and the upload
// store outlive a reload. A file that fails to load or validate leaves the
// held config untouched.
func (h *Holder) Reload() (*Config, error) {
	next, err := Load(h.path)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next.IRC = h.cfg.IRC
	next.DataDir = h.cfg.DataDir
	h.cfg = next

	return next, nil
}
