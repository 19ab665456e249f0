package extjwt

import (
	"context"
	"errors"

	"github.com/tonimelisma/ircup/internal/cacheloader"
)

// Kind discriminates the three shapes a Get result can take.
type Kind int

// Result kinds.
const (
	// KindReady carries a valid token that was available without waiting.
	KindReady Kind = iota + 1
	// KindPending carries a request in flight; call Pending().Wait.
	KindPending
	// KindUnsupported means the network does not issue tokens. Uploads
	// should proceed without an Authorization header.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindReady:
		return "ready"
	case KindPending:
		return "pending"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of Manager.Get.
type Result struct {
	kind    Kind
	token   string
	pending *Pending
}

func readyResult(token string) Result { return Result{kind: KindReady, token: token} }

func unsupportedResult() Result { return Result{kind: KindUnsupported} }

// Kind reports which variant r is.
func (r Result) Kind() Kind { return r.kind }

// Token returns the token of a ready result.
func (r Result) Token() (string, bool) {
	return r.token, r.kind == KindReady
}

// Pending returns the in-flight request of a pending result, or nil.
func (r Result) Pending() *Pending {
	return r.pending
}

// Pending is a token request in flight. Several callers may hold Pendings
// backed by the same request.
type Pending struct {
	future *cacheloader.Future[Record]
}

// Done is closed once the underlying request has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.future.Done()
}

// Wait blocks until the request finishes. It returns a ready result with the
// token, or an unsupported result when the network rejected EXTJWT. Timeouts
// and transport failures are returned as errors; ErrUnsupported never is.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	rec, err := p.future.Wait(ctx)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return unsupportedResult(), nil
		}

		return Result{}, err
	}

	return readyResult(rec.Token), nil
}

// Resolve collapses any result into a final token. ok is false for
// unsupported networks. Pending results are waited on.
func (r Result) Resolve(ctx context.Context) (token string, ok bool, err error) {
	switch r.kind {
	case KindReady:
		return r.token, true, nil
	case KindPending:
		final, err := r.pending.Wait(ctx)
		if err != nil {
			return "", false, err
		}

		tok, ok := final.Token()

		return tok, ok, nil
	default:
		return "", false, nil
	}
}
