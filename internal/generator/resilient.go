package generator

import (
	"context"
	"log/slog"
	"time"
)

// maxEmotionShift bounds generator-declared shifts; anything outside is
// treated as a malformed response.
const maxEmotionShift = 2

// Resilient wraps a primary generator with the mandatory fallback
// branch: any error, timeout, absent primary, or malformed reply is
// recovered locally with the deterministic canned response. Reply
// never returns an error, so callers have no failure path to surface
// to the learner.
type Resilient struct {
	primary  Generator
	fallback Generator
	timeout  time.Duration
}

// NewResilient builds the wrapper. primary may be nil (no configured
// remote service); timeout <= 0 disables the per-call deadline.
func NewResilient(primary Generator, fallback Generator, timeout time.Duration) *Resilient {
	return &Resilient{primary: primary, fallback: fallback, timeout: timeout}
}

// Reply returns the primary's reply when it is well-formed, the
// fallback's otherwise.
func (r *Resilient) Reply(ctx context.Context, req Request) (*Reply, error) {
	if r.primary == nil {
		return r.fallback.Reply(ctx, req)
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	reply, err := r.primary.Reply(callCtx, req)
	if err != nil {
		slog.Warn("generator failed, using fallback", "error", err)
		return r.fallback.Reply(ctx, req)
	}
	if reply == nil || reply.Text == "" {
		slog.Warn("generator returned empty reply, using fallback")
		return r.fallback.Reply(ctx, req)
	}
	if reply.EmotionShift < -maxEmotionShift || reply.EmotionShift > maxEmotionShift {
		slog.Warn("generator declared out-of-range emotion shift, using fallback", "shift", reply.EmotionShift)
		return r.fallback.Reply(ctx, req)
	}

	return reply, nil
}
