package sensor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds the hardware read attempts made within a single tick.
type RetryPolicy struct {
	MaxAttempts uint
	Backoff     time.Duration
}

// DefaultRetryPolicy is three attempts one second apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: time.Second}

// retry runs op until it succeeds, the attempts are exhausted or op fails with
// an error for which retryable returns false. notify is called before every pause.
func retry[T any](p RetryPolicy, op func() (T, error), retryable func(error) bool, notify func(attempt uint, err error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	var n uint
	wrapped := func() (T, error) {
		n++
		v, err := op()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, _ time.Duration) { notify(n, err) }
	}
	v, err := backoff.Retry(context.Background(), wrapped,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Backoff)),
		backoff.WithMaxTries(attempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(onRetry),
	)
	// the last attempt is returned as-is, still wrapped when it was permanent
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return v, err
}

func isTimeout(err error) bool { return errors.Is(err, ErrReadTimeout) }
