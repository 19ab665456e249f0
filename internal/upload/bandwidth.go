package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/tonimelisma/ircup/internal/config"
)

// burstMultiplier sizes the token bucket burst relative to the per-second
// rate.
const burstMultiplier = 2

// BandwidthLimiter is one token bucket shared by every concurrent upload,
// so aggregate throughput stays within bandwidth_limit.
type BandwidthLimiter struct {
	limiter *rate.Limiter
}

// NewBandwidthLimiter creates a limiter from a bandwidth_limit string.
// Returns nil for "0" or "" (unlimited); a nil limiter is valid to use.
func NewBandwidthLimiter(limit string, logger *slog.Logger) (*BandwidthLimiter, error) {
	bytesPerSec, err := config.ParseRate(limit)
	if err != nil {
		return nil, fmt.Errorf("upload: parse bandwidth limit %q: %w", limit, err)
	}

	if bytesPerSec == 0 {
		return nil, nil //nolint:nilnil // nil limiter = unlimited
	}

	burst := int(bytesPerSec) * burstMultiplier

	logger.Debug("bandwidth limiter created",
		slog.Int64("bytes_per_sec", bytesPerSec),
		slog.Int("burst", burst),
	)

	return &BandwidthLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}, nil
}

// WrapReadSeeker returns a rate-limited view of rs. Seeking is passed
// through unthrottled. If bl is nil, rs is returned unchanged.
func (bl *BandwidthLimiter) WrapReadSeeker(ctx context.Context, rs io.ReadSeeker) io.ReadSeeker {
	if bl == nil {
		return rs
	}

	return &rateLimitedReadSeeker{rs: rs, limiter: bl.limiter, ctx: ctx}
}

// rateLimitedReadSeeker blocks after each read until the limiter allows the
// bytes consumed.
type rateLimitedReadSeeker struct {
	rs      io.ReadSeeker
	limiter *rate.Limiter
	ctx     context.Context
}

func (r *rateLimitedReadSeeker) Read(p []byte) (int, error) {
	n, err := r.rs.Read(p)
	if n > 0 {
		if waitErr := waitN(r.ctx, r.limiter, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

func (r *rateLimitedReadSeeker) Seek(offset int64, whence int) (int64, error) {
	return r.rs.Seek(offset, whence)
}

// waitN splits a large token request into burst-sized chunks, because
// rate.Limiter.WaitN rejects requests exceeding the burst.
func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()

	for n > 0 {
		take := min(n, burst)

		if err := limiter.WaitN(ctx, take); err != nil {
			return err
		}

		n -= take
	}

	return nil
}
