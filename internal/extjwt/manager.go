package extjwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tonimelisma/ircup/internal/cacheloader"
	"github.com/tonimelisma/ircup/internal/events"
)

// Command is the IRC extension command that requests a token.
const Command = "EXTJWT"

// numericUnknownCommand is ERR_UNKNOWNCOMMAND.
const numericUnknownCommand = "421"

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultValidity       = 15 * time.Second
	DefaultUnsupportedTTL = 5 * time.Minute
)

// Network is a logical IRC connection. The interface value is used as a map
// key, so implementations must be comparable and stable for the lifetime of
// the connection (a pointer type is the usual choice).
type Network interface {
	Raw(line string) error
}

// Bus is the event subscription capability the manager listens on. Replies
// arrive as "irc.raw.<COMMAND>" events whose Network field names the
// connection they came from.
type Bus interface {
	Subscribe(name string, h events.Handler) events.ListenerID
	Unsubscribe(name string, id events.ListenerID)
}

// Record is an issued token and the time it was received.
type Record struct {
	Token      string
	AcquiredAt time.Time
}

// Config tunes the manager's timing. Zero fields take the defaults.
type Config struct {
	RequestTimeout time.Duration
	Validity       time.Duration
	UnsupportedTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}

	if c.Validity <= 0 {
		c.Validity = DefaultValidity
	}

	if c.UnsupportedTTL <= 0 {
		c.UnsupportedTTL = DefaultUnsupportedTTL
	}

	return c
}

// Manager owns the token cache and the unsupported-network marks. Get is
// the only entry point the upload pipeline needs. Safe for concurrent use.
type Manager struct {
	bus     Bus
	cfg     Config
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests

	cache *cacheloader.Loader[Network, Record]

	mu          sync.Mutex
	unsupported map[Network]time.Time
}

// NewManager creates a Manager that listens for replies on bus.
func NewManager(bus Bus, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		bus:         bus,
		cfg:         cfg.withDefaults(),
		logger:      logger,
		nowFunc:     time.Now,
		unsupported: make(map[Network]time.Time),
	}

	m.cache = cacheloader.New(m.requestToken, m.assertValid, logger)

	return m
}

// Get returns a token for network. The result is unsupported, without any
// protocol traffic, while network carries an unexpired unsupported mark. A
// cached token younger than the validity window comes back ready. Otherwise
// the result is pending on a request shared by every concurrent caller for
// the same network.
func (m *Manager) Get(network Network) Result {
	if m.isUnsupported(network) {
		return unsupportedResult()
	}

	lookup := m.cache.Get(network)
	if rec, ok := lookup.Ready(); ok {
		return readyResult(rec.Token)
	}

	future, _ := lookup.Pending()

	return Result{kind: KindPending, pending: &Pending{future: future}}
}

// Forget drops the cached token and any unsupported mark for network.
// Call it when the connection goes away.
func (m *Manager) Forget(network Network) {
	m.cache.Forget(network)

	m.mu.Lock()
	delete(m.unsupported, network)
	m.mu.Unlock()
}

// Close cancels requests still waiting for a reply.
func (m *Manager) Close() {
	m.cache.Close()
}

// isUnsupported reports whether network has an unexpired unsupported mark.
// Expired marks are removed.
func (m *Manager) isUnsupported(network Network) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.unsupported[network]
	if !ok {
		return false
	}

	if m.nowFunc().Sub(at) < m.cfg.UnsupportedTTL {
		return true
	}

	delete(m.unsupported, network)

	return false
}

func (m *Manager) markUnsupported(network Network) {
	m.mu.Lock()
	m.unsupported[network] = m.nowFunc()
	m.mu.Unlock()
}

// assertValid rejects records older than the validity window.
func (m *Manager) assertValid(rec Record) error {
	age := m.nowFunc().Sub(rec.AcquiredAt)
	if age > m.cfg.Validity {
		return &StaleError{Age: age, Limit: m.cfg.Validity}
	}

	return nil
}

type reply struct {
	token string
	err   error
}

// requestToken sends EXTJWT on network and waits for the correlated reply.
// It is the cache's load function, so at most one call per network is ever
// in flight.
func (m *Manager) requestToken(ctx context.Context, network Network) (Record, error) {
	replies := make(chan reply, 1)

	var (
		once     sync.Once
		subMu    sync.Mutex // guards the ids against a reply racing the second Subscribe
		id421    events.ListenerID
		idExtJWT events.ListenerID
	)

	removeEvents := func() {
		subMu.Lock()
		defer subMu.Unlock()

		m.bus.Unsubscribe(events.RawEvent(numericUnknownCommand), id421)
		m.bus.Unsubscribe(events.RawEvent(Command), idExtJWT)
	}

	finish := func(r reply) {
		once.Do(func() {
			removeEvents()
			replies <- r
		})
	}

	handler := func(ev *events.Event) {
		if ev.Handled || ev.Network != any(network) {
			return
		}

		if ev.Command == numericUnknownCommand {
			if len(ev.Params) > 1 && strings.EqualFold(ev.Params[1], Command) {
				ev.Handled = true
				finish(reply{err: ErrUnsupported})
			}

			return
		}

		if len(ev.Params) == 0 {
			return
		}

		ev.Handled = true
		finish(reply{token: ev.Params[len(ev.Params)-1]})
	}

	subMu.Lock()
	id421 = m.bus.Subscribe(events.RawEvent(numericUnknownCommand), handler)
	idExtJWT = m.bus.Subscribe(events.RawEvent(Command), handler)
	subMu.Unlock()

	// Covers the timeout, cancellation and send-failure paths.
	defer removeEvents()

	m.logger.Debug("requesting token", slog.String("command", Command))

	// The deadline covers the write too, which can block on a stalled
	// connection.
	timer := time.NewTimer(m.cfg.RequestTimeout)
	defer timer.Stop()

	sent := make(chan error, 1)

	go func() { sent <- network.Raw(Command) }()

	for {
		select {
		case err := <-sent:
			if err != nil {
				return Record{}, fmt.Errorf("extjwt: sending %s: %w", Command, err)
			}

			sent = nil

		case r := <-replies:
			if r.err != nil {
				if errors.Is(r.err, ErrUnsupported) {
					m.markUnsupported(network)
					m.logger.Debug("network does not support EXTJWT",
						slog.Duration("retry_after", m.cfg.UnsupportedTTL),
					)
				}

				return Record{}, r.err
			}

			rec := Record{Token: r.token, AcquiredAt: m.nowFunc()}
			m.logToken(rec.Token)

			return rec, nil

		case <-timer.C:
			m.logger.Warn("token request timed out",
				slog.Duration("timeout", m.cfg.RequestTimeout),
			)

			return Record{}, ErrTimeout

		case <-ctx.Done():
			return Record{}, fmt.Errorf("extjwt: waiting for reply: %w", ctx.Err())
		}
	}
}

// logToken records what the token claims to be. Tokens that do not decode
// as JWTs are still accepted.
func (m *Manager) logToken(token string) {
	claims, err := Inspect(token)
	if err != nil {
		m.logger.Debug("token acquired (claims not decodable)",
			slog.String("error", err.Error()),
		)

		return
	}

	m.logger.Debug("token acquired",
		slog.String("subject", claims.Subject),
		slog.String("issuer", claims.Issuer),
		slog.String("account", claims.Account),
	)
}
