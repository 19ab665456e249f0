package uploadstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/eventials/go-tus"
)

// resumeOpTimeout bounds each tus store call, which carries no context.
const resumeOpTimeout = 5 * time.Second

// tusStore adapts Store to the go-tus resume store interface. go-tus
// swallows store failures, so they are logged here instead.
type tusStore struct {
	s *Store
}

var _ tus.Store = tusStore{}

// TusStore returns a go-tus Store backed by the resume_urls table. Closing
// it is a no-op; the database is owned by s.
func (s *Store) TusStore() tus.Store {
	return tusStore{s: s}
}

func (t tusStore) Get(fingerprint string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), resumeOpTimeout)
	defer cancel()

	u, ok, err := t.s.ResumeURL(ctx, fingerprint)
	if err != nil {
		t.s.logger.Warn("resume lookup failed", slog.String("error", err.Error()))
		return "", false
	}

	return u, ok
}

func (t tusStore) Set(fingerprint, uploadURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), resumeOpTimeout)
	defer cancel()

	if err := t.s.SaveResumeURL(ctx, fingerprint, uploadURL); err != nil {
		t.s.logger.Warn("resume save failed", slog.String("error", err.Error()))
	}
}

func (t tusStore) Delete(fingerprint string) {
	ctx, cancel := context.WithTimeout(context.Background(), resumeOpTimeout)
	defer cancel()

	if err := t.s.DeleteResumeURL(ctx, fingerprint); err != nil {
		t.s.logger.Warn("resume delete failed", slog.String("error", err.Error()))
	}
}

func (t tusStore) Close() {}
