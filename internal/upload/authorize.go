package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/ircup/internal/extjwt"
)

// isupportEXTJWT is the ISUPPORT token advertising EXTJWT, and the only
// version this client speaks.
const (
	isupportEXTJWT = "EXTJWT"
	extjwtVersion  = "1"
)

// TokenSource hands out EXTJWT tokens per network. *extjwt.Manager
// satisfies it.
type TokenSource interface {
	Get(network extjwt.Network) extjwt.Result
}

// Authorizer runs before uploads start and decides the Authorization header
// for every file.
type Authorizer struct {
	tokens TokenSource
	logger *slog.Logger
}

// NewAuthorizer creates an Authorizer backed by tokens.
func NewAuthorizer(tokens TokenSource, logger *slog.Logger) *Authorizer {
	return &Authorizer{tokens: tokens, logger: logger}
}

// Acquire returns the token to send for each file. Files absent from the
// map upload without an Authorization header: their network does not
// advertise EXTJWT=1, rejected the command, or failed to answer. Only
// cancellation of ctx is returned as an error.
//
// Cached tokens are assigned immediately; pending requests are awaited
// concurrently and Acquire returns once all of them have settled.
func (a *Authorizer) Acquire(ctx context.Context, files []*File) (map[*File]string, error) {
	var mu sync.Mutex

	tokens := make(map[*File]string, len(files))
	assign := func(f *File, token string) {
		mu.Lock()
		tokens[f] = token
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, f := range files {
		network := f.Target.Network

		if v, ok := network.ISupport(isupportEXTJWT); !ok || v != extjwtVersion {
			a.logger.Debug("network does not advertise EXTJWT=1, uploading without token",
				slog.String("file", f.Name),
			)

			continue
		}

		res := a.tokens.Get(network)

		switch res.Kind() {
		case extjwt.KindReady:
			token, _ := res.Token()
			assign(f, token)
		case extjwt.KindUnsupported:
			a.logger.Debug("network rejected EXTJWT, uploading without token",
				slog.String("file", f.Name),
			)
		case extjwt.KindPending:
			pending := res.Pending()

			g.Go(func() error {
				final, err := pending.Wait(gctx)
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return ctxErr
					}

					a.logger.Warn("token request failed, uploading without token",
						slog.String("file", f.Name),
						slog.String("error", err.Error()),
					)

					return nil
				}

				if token, ok := final.Token(); ok {
					assign(f, token)
				}

				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("upload: acquiring tokens: %w", err)
	}

	a.logger.Debug("token acquisition complete",
		slog.Int("files", len(files)),
		slog.Int("authorized", len(tokens)),
	)

	return tokens, nil
}
