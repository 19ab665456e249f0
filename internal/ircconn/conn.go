// Package ircconn is a small IRC client connection: enough of the protocol
// to register, negotiate IRCv3 capabilities, track ISUPPORT, join channels
// and send messages. Every inbound line is published on an events.Bus as
// "irc.raw.<COMMAND>" so that other components (the EXTJWT token manager in
// particular) can correlate replies without owning the socket.
package ircconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"

	"github.com/tonimelisma/ircup/internal/events"
)

// Sentinel errors. Use errors.Is to check.
var (
	ErrClosed            = errors.New("ircconn: connection closed")
	ErrUnsupportedScheme = errors.New("ircconn: unsupported server URL scheme")
	ErrNickInUse         = errors.New("ircconn: nickname in use")
)

// Defaults applied by Options.withDefaults.
const (
	defaultDialTimeout     = 15 * time.Second
	defaultRegisterTimeout = 30 * time.Second
	defaultRealname        = "ircup"
	quitGrace              = 2 * time.Second
	maxNickRetries         = 3
)

// CapMessageTags is the IRCv3 capability required for client-only tags.
const CapMessageTags = "message-tags"

// Numerics the connection reacts to.
const (
	rplWelcome       = "001"
	rplISupport      = "005"
	rplEndOfMOTD     = "376"
	errNoMOTD        = "422"
	errNicknameInUse = "433"
)

// joinErrorNumerics are the replies that reject a JOIN for a named channel.
var joinErrorNumerics = []string{"403", "405", "471", "473", "474", "475"}

// Options configures a connection.
type Options struct {
	URL             string // irc://, ircs://, ws:// or wss://
	Nick            string
	Username        string
	Realname        string
	Password        string
	Caps            []string // requested when offered; defaults to message-tags
	DialTimeout     time.Duration
	RegisterTimeout time.Duration
	InsecureTLS     bool
}

func (o Options) withDefaults() Options {
	if o.Username == "" {
		o.Username = o.Nick
	}

	if o.Realname == "" {
		o.Realname = defaultRealname
	}

	if o.Caps == nil {
		o.Caps = []string{CapMessageTags}
	}

	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}

	if o.RegisterTimeout <= 0 {
		o.RegisterTimeout = defaultRegisterTimeout
	}

	return o
}

// JoinError reports a numeric that rejected a JOIN.
type JoinError struct {
	Channel string
	Numeric string
	Reason  string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("ircconn: cannot join %s (%s): %s", e.Channel, e.Numeric, e.Reason)
}

// ServerError is the reason given by a server ERROR line.
type ServerError struct {
	Reason string
}

func (e *ServerError) Error() string {
	return "ircconn: server closed link: " + e.Reason
}

// Conn is one registered IRC connection. Its pointer identity is what the
// token manager keys on, so a reconnect must produce a new Conn.
type Conn struct {
	opts   Options
	bus    *events.Bus
	logger *slog.Logger
	t      transport

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	nick        string
	nickRetries int
	welcomed    bool
	isupport    map[string]string
	capsOffered map[string]bool
	capsAcked   map[string]bool
	err         error

	registered chan struct{}
	regOnce    sync.Once
	done       chan struct{}
	closeOnce  sync.Once
}

// Dial connects, registers and waits for the end of the welcome burst, so
// ISupport is populated when Dial returns.
func Dial(ctx context.Context, opts Options, bus *events.Bus, logger *slog.Logger) (*Conn, error) {
	opts = opts.withDefaults()

	t, err := dialTransport(ctx, opts.URL, opts.DialTimeout, opts.InsecureTLS)
	if err != nil {
		return nil, err
	}

	c := newConn(t, opts, bus, logger)

	if err := c.register(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func newConn(t transport, opts Options, bus *events.Bus, logger *slog.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Conn{
		opts:        opts,
		bus:         bus,
		logger:      logger.With(slog.String("server", redactURL(opts.URL))),
		t:           t,
		ctx:         ctx,
		cancel:      cancel,
		nick:        opts.Nick,
		isupport:    make(map[string]string),
		capsOffered: make(map[string]bool),
		capsAcked:   make(map[string]bool),
		registered:  make(chan struct{}),
		done:        make(chan struct{}),
	}

	go c.readLoop()

	return c
}

func (c *Conn) register(ctx context.Context) error {
	regCtx, cancel := context.WithTimeout(ctx, c.opts.RegisterTimeout)
	defer cancel()

	if err := c.send("CAP", "LS", "302"); err != nil {
		return err
	}

	if c.opts.Password != "" {
		if err := c.send("PASS", c.opts.Password); err != nil {
			return err
		}
	}

	if err := c.send("NICK", c.opts.Nick); err != nil {
		return err
	}

	if err := c.send("USER", c.opts.Username, "0", "*", c.opts.Realname); err != nil {
		return err
	}

	select {
	case <-c.registered:
		c.logger.Info("registered",
			slog.String("nick", c.Nick()),
			slog.Bool("message_tags", c.HasCap(CapMessageTags)),
		)

		return nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return fmt.Errorf("ircconn: registration: %w", err)
		}

		return ErrClosed
	case <-regCtx.Done():
		return fmt.Errorf("ircconn: registration: %w", regCtx.Err())
	}
}

// Raw sends a line verbatim.
func (c *Conn) Raw(line string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.logger.Debug("irc send", slog.String("line", line))

	if err := c.t.WriteLine(c.ctx, line); err != nil {
		return fmt.Errorf("ircconn: writing line: %w", err)
	}

	return nil
}

// send builds and writes a message from a command and its parameters.
func (c *Conn) send(command string, params ...string) error {
	msg := ircmsg.MakeMessage(nil, "", command, params...)

	line, err := msg.Line()
	if err != nil {
		return fmt.Errorf("ircconn: encoding %s: %w", command, err)
	}

	return c.Raw(strings.TrimRight(line, "\r\n"))
}

// Nick returns the nickname the server knows us by.
func (c *Conn) Nick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.nick
}

// ISupport returns the value of an RPL_ISUPPORT token. Tokens advertised
// without a value report "" and true.
func (c *Conn) ISupport(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.isupport[strings.ToUpper(name)]

	return v, ok
}

// HasCap reports whether the server acknowledged capability name.
func (c *Conn) HasCap(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.capsAcked[name]
}

// Done is closed when the connection has stopped reading.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection stopped, if any.
func (c *Conn) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.err
}

// String identifies the connection in logs.
func (c *Conn) String() string {
	return redactURL(c.opts.URL)
}

// Join joins channel and waits for the server to confirm it.
func (c *Conn) Join(ctx context.Context, channel string) error {
	result := make(chan error, 1)

	var once sync.Once

	finish := func(err error) {
		once.Do(func() { result <- err })
	}

	onJoin := func(ev *events.Event) {
		if ev.Network != c || len(ev.Params) == 0 {
			return
		}

		if strings.EqualFold(nickOf(ev.Source), c.Nick()) && strings.EqualFold(ev.Params[0], channel) {
			finish(nil)
		}
	}

	onError := func(ev *events.Event) {
		if ev.Network != c || len(ev.Params) < 2 || !strings.EqualFold(ev.Params[1], channel) {
			return
		}

		ev.Handled = true
		finish(&JoinError{Channel: channel, Numeric: ev.Command, Reason: ev.Params[len(ev.Params)-1]})
	}

	ids := map[string]events.ListenerID{
		events.RawEvent("JOIN"): c.bus.Subscribe(events.RawEvent("JOIN"), onJoin),
	}

	for _, numeric := range joinErrorNumerics {
		name := events.RawEvent(numeric)
		ids[name] = c.bus.Subscribe(name, onError)
	}

	defer func() {
		for name, id := range ids {
			c.bus.Unsubscribe(name, id)
		}
	}()

	if err := c.send("JOIN", channel); err != nil {
		return err
	}

	select {
	case err := <-result:
		if err == nil {
			c.logger.Info("joined channel", slog.String("channel", channel))
		}

		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("ircconn: joining %s: %w", channel, ctx.Err())
	}
}

// Say sends a PRIVMSG to target. Client-only tags are attached only when the
// server acknowledged message-tags; otherwise they are dropped.
func (c *Conn) Say(target, text string, tags map[string]string) error {
	msg := ircmsg.MakeMessage(nil, "", "PRIVMSG", target, text)

	line, err := msg.Line()
	if err != nil {
		return fmt.Errorf("ircconn: encoding PRIVMSG: %w", err)
	}

	line = strings.TrimRight(line, "\r\n")

	if c.HasCap(CapMessageTags) {
		if prefix := c.encodeTags(tags); prefix != "" {
			line = prefix + " " + line
		}
	}

	return c.Raw(line)
}

// encodeTags renders tags as an "@key=value;..." prefix in key order.
// ircmsg only accepts tag names made of letters, digits, '-', '.' and '/',
// which rejects names like +kiwiirc.com/fileuploader/file_size, so names
// are checked here only for characters that would break the line.
func (c *Conn) encodeTags(tags map[string]string) string {
	var b strings.Builder

	for _, key := range slices.Sorted(maps.Keys(tags)) {
		if !validTagName(key) {
			c.logger.Debug("dropping message tag with invalid name", slog.String("tag", key))
			continue
		}

		if b.Len() == 0 {
			b.WriteByte('@')
		} else {
			b.WriteByte(';')
		}

		b.WriteString(key)

		if v := tags[key]; v != "" {
			b.WriteByte('=')
			b.WriteString(ircmsg.EscapeTagValue(v))
		}
	}

	return b.String()
}

func validTagName(name string) bool {
	if strings.TrimPrefix(name, "+") == "" {
		return false
	}

	return !strings.ContainsFunc(name, func(r rune) bool {
		return r <= ' ' || r == 0x7f || r == ';' || r == '=' || r == '@'
	})
}

// Quit sends QUIT and closes the connection once the server hangs up or a
// short grace period passes.
func (c *Conn) Quit(reason string) {
	if err := c.send("QUIT", reason); err == nil {
		select {
		case <-c.done:
		case <-time.After(quitGrace):
		}
	}

	c.Close()
}

// Close tears the connection down and waits for the read loop to exit.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.cancel()

		if err := c.t.Close(); err != nil {
			c.logger.Debug("closing transport", slog.String("error", err.Error()))
		}
	})

	<-c.done
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		line, err := c.t.ReadLine(c.ctx)
		if err != nil {
			c.setErr(err)
			c.logger.Debug("read loop stopped", slog.String("error", err.Error()))

			return
		}

		if line == "" {
			continue
		}

		msg, err := ircmsg.ParseLine(line)
		if err != nil {
			c.logger.Debug("ignoring unparsable line",
				slog.String("line", line),
				slog.String("error", err.Error()),
			)

			continue
		}

		c.logger.Debug("irc recv", slog.String("line", line))
		c.handle(&msg)
	}
}

// handle applies connection-level bookkeeping and then publishes the line.
func (c *Conn) handle(msg *ircmsg.Message) {
	switch msg.Command {
	case "PING":
		if err := c.send("PONG", msg.Params...); err != nil {
			c.logger.Warn("failed to answer PING", slog.String("error", err.Error()))
		}
	case "CAP":
		c.handleCap(msg.Params)
	case rplWelcome:
		c.mu.Lock()
		c.welcomed = true
		if len(msg.Params) > 0 {
			c.nick = msg.Params[0]
		}
		c.mu.Unlock()
	case rplISupport:
		c.handleISupport(msg.Params)
	case rplEndOfMOTD, errNoMOTD:
		c.regOnce.Do(func() { close(c.registered) })
	case errNicknameInUse:
		c.handleNickInUse()
	case "ERROR":
		reason := ""
		if len(msg.Params) > 0 {
			reason = msg.Params[len(msg.Params)-1]
		}

		c.setErr(&ServerError{Reason: reason})
	}

	ev := &events.Event{
		Name:    events.RawEvent(msg.Command),
		Network: c,
		Source:  msg.Source,
		Command: msg.Command,
		Params:  msg.Params,
	}
	c.bus.Emit(ev)
}

// handleCap drives CAP LS / ACK / NAK during registration.
func (c *Conn) handleCap(params []string) {
	if len(params) < 3 {
		return
	}

	sub := strings.ToUpper(params[1])
	list := strings.Fields(params[len(params)-1])

	c.mu.Lock()
	welcomed := c.welcomed
	c.mu.Unlock()

	switch sub {
	case "LS":
		c.mu.Lock()
		for _, capability := range list {
			name, _, _ := strings.Cut(capability, "=")
			c.capsOffered[name] = true
		}
		c.mu.Unlock()

		// "CAP * LS * :..." means more lines follow.
		if len(params) > 3 && params[2] == "*" {
			return
		}

		if welcomed {
			return
		}

		var req []string

		c.mu.RLock()
		for _, want := range c.opts.Caps {
			if c.capsOffered[want] {
				req = append(req, want)
			}
		}
		c.mu.RUnlock()

		if len(req) == 0 {
			c.sendOrWarn("CAP", "END")
			return
		}

		c.sendOrWarn("CAP", "REQ", strings.Join(req, " "))
	case "ACK":
		c.mu.Lock()
		for _, capability := range list {
			c.capsAcked[strings.TrimPrefix(capability, "-")] = !strings.HasPrefix(capability, "-")
		}
		c.mu.Unlock()

		if !welcomed {
			c.sendOrWarn("CAP", "END")
		}
	case "NAK":
		if !welcomed {
			c.sendOrWarn("CAP", "END")
		}
	}
}

// handleISupport records "KEY=VALUE", "KEY" and "-KEY" tokens. The first
// parameter is our nick and the last is the human-readable trailer.
func (c *Conn) handleISupport(params []string) {
	if len(params) < 3 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, token := range params[1 : len(params)-1] {
		if strings.HasPrefix(token, "-") {
			delete(c.isupport, strings.ToUpper(token[1:]))
			continue
		}

		key, value, _ := strings.Cut(token, "=")
		c.isupport[strings.ToUpper(key)] = value
	}
}

func (c *Conn) handleNickInUse() {
	c.mu.Lock()
	if c.welcomed {
		c.mu.Unlock()
		return
	}

	if c.nickRetries >= maxNickRetries {
		c.err = fmt.Errorf("%w: %s", ErrNickInUse, c.nick)
		c.mu.Unlock()
		c.cancel()
		_ = c.t.Close()

		return
	}

	c.nickRetries++
	c.nick += "_"
	nick := c.nick
	c.mu.Unlock()

	c.logger.Info("nickname in use, retrying", slog.String("nick", nick))
	c.sendOrWarn("NICK", nick)
}

func (c *Conn) sendOrWarn(command string, params ...string) {
	if err := c.send(command, params...); err != nil {
		c.logger.Warn("send failed",
			slog.String("command", command),
			slog.String("error", err.Error()),
		)
	}
}

// setErr records the first error that ended the connection.
func (c *Conn) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

// nickOf extracts the nickname from a nick!user@host prefix.
func nickOf(source string) string {
	nick, _, _ := strings.Cut(source, "!")
	return nick
}

// redactURL drops credentials from a server URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.Redacted()
}
