package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tonimelisma/ircup/internal/config"
	"github.com/tonimelisma/ircup/internal/events"
	"github.com/tonimelisma/ircup/internal/extjwt"
	"github.com/tonimelisma/ircup/internal/ircconn"
	"github.com/tonimelisma/ircup/internal/upload"
	"github.com/tonimelisma/ircup/internal/uploadstore"
)

// defaultChanTypes applies when the server does not advertise CHANTYPES.
const defaultChanTypes = "#&"

// quitMessage is sent when a command finishes.
const quitMessage = "ircup done"

// Session holds the live IRC connection and everything built on it for one
// command run: the token manager, the upload store and the target buffer.
// Config is read through a Holder so watch mode can reload it.
type Session struct {
	Conn   *ircconn.Conn
	Bus    *events.Bus
	Tokens *extjwt.Manager
	Store  *uploadstore.Store
	Target string

	holder *config.Holder
	logger *slog.Logger
}

// NewSession connects to the configured network, joins the target when it
// is a channel and opens the upload store.
func NewSession(ctx context.Context, holder *config.Holder, logger *slog.Logger) (*Session, error) {
	cfg := holder.Config()

	if err := config.RequireServers(cfg); err != nil {
		return nil, err
	}

	store, err := uploadstore.Open(ctx, config.DatabasePath(cfg.DataDir), logger)
	if err != nil {
		return nil, err
	}

	if _, err := store.CleanStale(ctx, uploadstore.StaleResumeAge); err != nil {
		logger.Warn("cleaning stale resume entries failed", slog.String("error", err.Error()))
	}

	bus := events.NewBus()

	conn, err := ircconn.Dial(ctx, ircconn.Options{
		URL:             cfg.IRC.Server,
		Nick:            cfg.IRC.Nick,
		Username:        cfg.IRC.Username,
		Realname:        cfg.IRC.Realname,
		Password:        cfg.IRC.Password,
		Caps:            cfg.IRC.Caps,
		DialTimeout:     cfg.IRC.ConnectTimeoutDuration(),
		RegisterTimeout: cfg.IRC.RegisterTimeoutDuration(),
		InsecureTLS:     cfg.IRC.InsecureTLS,
	}, bus, logger)
	if err != nil {
		store.Close()

		if errors.Is(err, ircconn.ErrNickInUse) {
			return nil, fmt.Errorf("nick %q is in use; set irc.nick or pass --nick", cfg.IRC.Nick)
		}

		return nil, err
	}

	s := &Session{
		Conn:   conn,
		Bus:    bus,
		Store:  store,
		Target: cfg.IRC.Target,
		holder: holder,
		logger: logger,
	}

	s.Tokens = extjwt.NewManager(bus, extjwt.Config{
		RequestTimeout: cfg.Token.RequestTimeoutDuration(),
		Validity:       cfg.Token.ValidityDuration(),
		UnsupportedTTL: cfg.Token.UnsupportedTTLDuration(),
	}, logger)

	if s.isChannel(s.Target) {
		if err := conn.Join(ctx, s.Target); err != nil {
			s.Close()
			return nil, err
		}
	}

	logger.Info("connected",
		slog.String("server", conn.String()),
		slog.String("nick", conn.Nick()),
		slog.String("target", s.Target),
	)

	return s, nil
}

func (s *Session) isChannel(name string) bool {
	if name == "" {
		return false
	}

	chanTypes, ok := s.Conn.ISupport("CHANTYPES")
	if !ok {
		chanTypes = defaultChanTypes
	}

	return strings.ContainsRune(chanTypes, rune(name[0]))
}

// Pipeline builds an upload pipeline from the current config snapshot.
func (s *Session) Pipeline() (*upload.Pipeline, error) {
	return buildPipeline(s.holder, s.Bus, s.Tokens, s.Store, s.logger)
}

// File builds an upload.File aimed at the session's target.
func (s *Session) File(path string) (*upload.File, error) {
	return upload.NewFile(path, upload.Target{Network: s.Conn, Buffer: s.Target})
}

// Close quits the network and releases everything the session opened.
func (s *Session) Close() {
	s.Tokens.Forget(s.Conn)
	s.Tokens.Close()
	s.Conn.Quit(quitMessage)
	s.Conn.Close()

	if err := s.Store.Close(); err != nil {
		s.logger.Warn("closing upload store", slog.String("error", err.Error()))
	}
}

// buildPipeline wires checker, authorizer, tus uploader and sharer from
// the config held by holder. The share message is read through holder on
// every upload.
func buildPipeline(
	holder *config.Holder, bus *events.Bus, tokens upload.TokenSource, store *uploadstore.Store, logger *slog.Logger,
) (*upload.Pipeline, error) {
	cfg := holder.Config()

	maxSize, err := config.ParseSize(cfg.Upload.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("upload.max_file_size: %w", err)
	}

	chunkSize, err := config.ParseSize(cfg.Upload.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("upload.chunk_size: %w", err)
	}

	limiter, err := upload.NewBandwidthLimiter(cfg.Upload.BandwidthLimit, logger)
	if err != nil {
		return nil, err
	}

	opts := upload.UploaderOptions{
		ChunkSize:  chunkSize,
		Limiter:    limiter,
		HTTPClient: defaultHTTPClient(),
	}

	var history upload.History

	if store != nil {
		history = store

		if cfg.Upload.Resume {
			opts.Store = store.TusStore()
		}
	}

	checker := &upload.Checker{MaxSize: maxSize, Allowed: cfg.Upload.AllowedFileTypes}
	uploader := upload.NewUploader(cfg.Upload.Server, opts, logger)
	sharer := upload.NewSharer(bus, func() string { return holder.Config().Upload.UploadMessage }, logger)

	return upload.NewPipeline(
		checker, upload.NewAuthorizer(tokens, logger), uploader, sharer, history,
		cfg.Upload.ParallelUploads, logger,
	), nil
}
