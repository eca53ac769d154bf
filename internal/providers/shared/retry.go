package shared

import (
	"context"
	"errors"
	"time"
)

// Policy retries a call against an ordered list of endpoints. Each
// endpoint gets up to Attempts tries with a linearly growing pause
// between them; auth and entitlement failures abort the whole sequence
// immediately, other failures fall through to the next endpoint once the
// attempts are spent.
type Policy struct {
	Attempts int
	Backoff  time.Duration

	// sleep is swappable in tests.
	sleep func(context.Context, time.Duration) error
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Backoff: time.Second}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn against each endpoint in order until one succeeds. The
// error of the last attempt is returned when everything is exhausted.
func (p Policy) Do(ctx context.Context, endpoints []string, fn func(ctx context.Context, endpoint string) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for _, endpoint := range endpoints {
		for attempt := 1; attempt <= p.Attempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			err := fn(ctx, endpoint)
			if err == nil {
				return nil
			}
			lastErr = err

			if errors.Is(err, ErrAuth) || errors.Is(err, ErrForbidden) {
				return err
			}
			if !Retryable(err) {
				// Hard client error: this endpoint will not change its
				// mind, try the next one.
				break
			}
			if attempt < p.Attempts {
				if err := sleep(ctx, p.Backoff*time.Duration(attempt)); err != nil {
					return err
				}
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoints to try")
	}
	return lastErr
}

// DoWithAuthRetry runs call with the current access token. On an auth
// rejection it refreshes exactly once, retries with the new token, and
// gives up if that also fails authentication.
func DoWithAuthRetry(ctx context.Context, token string, refresh func(context.Context) (string, error), call func(ctx context.Context, token string) error) error {
	err := call(ctx, token)
	if err == nil || !errors.Is(err, ErrAuth) {
		return err
	}
	if refresh == nil {
		return err
	}
	fresh, refreshErr := refresh(ctx)
	if refreshErr != nil {
		return errors.Join(err, refreshErr)
	}
	return call(ctx, fresh)
}
