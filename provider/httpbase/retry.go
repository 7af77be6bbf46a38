package httpbase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/hoot/pkg/slogx"
	"github.com/casualjim/hoot/provider"
)

// DefaultMaxAttempts bounds the attempts against one endpoint on transient failures.
const DefaultMaxAttempts = 3

type attemptFunc func(ctx context.Context, ep Endpoint, rc *provider.RawCompletion) error

// withRetry runs attempt until it succeeds or fails for good.
//
// Transient network failures are retried against the same endpoint up to
// MaxAttempts times. Rate limits and outages on a regional endpoint exclude
// the region from the call and move on to another one. Everything else is returned as
// is. canRetry is consulted before any retry, a stream that already handed
// output to its consumer can not be retried.
func (b *Base[Req, Resp]) withRetry(ctx context.Context, call *provider.Call, model string, stream bool, attempt attemptFunc, canRetry func() bool) error {
	name := b.adapter.Name()
	transient := 0
	var (
		ep      Endpoint
		haveEp  bool
		lastErr *provider.Error
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !haveEp {
			next, err := b.adapter.RequestURL(call, model, stream)
			if err != nil {
				pe := asProviderError(err).WithProvider(name, model, "")
				if lastErr != nil && pe.Err == nil {
					pe.Err = lastErr
					if pe.StatusCode == 0 {
						pe.StatusCode = lastErr.StatusCode
					}
				}
				return pe
			}
			ep, haveEp = next, true
		}

		rc := provider.NewRawCompletion(ep.Region)
		call.AddCompletion(rc)

		err := attempt(ctx, ep, rc)
		if err == nil {
			rc.Finish(nil)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			rc.Finish(ctxErr)
			return ctxErr
		}

		pe := asProviderError(err).WithProvider(name, model, ep.Region)
		if pe.Kind == provider.KindMissingModel && b.sharedConfig {
			pe.Capture = true
		}
		rc.Finish(pe)
		lastErr = pe

		if !canRetry() {
			return pe
		}

		switch {
		case pe.Kind.Transient():
			transient++
			if transient >= b.maxAttempts {
				return provider.NewError(provider.KindProviderUnavailable,
					fmt.Sprintf("giving up after %d attempts", transient),
					provider.WithCause(pe)).WithProvider(name, model, ep.Region)
			}
			slog.DebugContext(ctx, "retrying after transient failure",
				slogx.Provider(name), slogx.Model(model), slogx.Region(ep.Region),
				slog.Int("attempt", transient), slogx.Error(pe))
			if err := b.sleep(ctx); err != nil {
				return err
			}

		case pe.FailoverCandidate() && ep.Region != "":
			call.ExcludeRegion(ep.Region)
			haveEp = false
			slog.WarnContext(ctx, "region unavailable, failing over",
				slogx.Provider(name), slogx.Model(model), slogx.Region(ep.Region), slogx.Error(pe))

		default:
			return pe
		}
	}
}

func (b *Base[Req, Resp]) sleep(ctx context.Context) error {
	if b.backoff <= 0 {
		return nil
	}
	t := time.NewTimer(b.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
