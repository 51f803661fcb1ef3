// ABOUTME: Timeout decorator that owns the processing time budget
// ABOUTME: Converts an exceeded deadline into ErrTimeout while honouring caller cancellation

package processing

import (
	"context"
	"errors"
	"time"
)

type timeoutAdapter struct {
	next    Adapter
	timeout time.Duration
}

// WithTimeout bounds every call to next by d. A zero or negative d disables it.
func WithTimeout(next Adapter, d time.Duration) Adapter {
	if d <= 0 {
		return next
	}
	return &timeoutAdapter{next: next, timeout: d}
}

// callWithTimeout runs fn with a derived deadline. The backend may ignore ctx,
// so the call runs on its own goroutine and its late result is discarded.
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return zero, ErrTimeout
		}
		return r.val, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}

func (t *timeoutAdapter) Translate(ctx context.Context, in TranslationInput) (*Translation, error) {
	return callWithTimeout(ctx, t.timeout, func(ctx context.Context) (*Translation, error) {
		return t.next.Translate(ctx, in)
	})
}

func (t *timeoutAdapter) Transcribe(ctx context.Context, in AudioInput) (*Transcript, error) {
	return callWithTimeout(ctx, t.timeout, func(ctx context.Context) (*Transcript, error) {
		return t.next.Transcribe(ctx, in)
	})
}

func (t *timeoutAdapter) ExtractText(ctx context.Context, in ImageInput) (*OCRText, error) {
	return callWithTimeout(ctx, t.timeout, func(ctx context.Context) (*OCRText, error) {
		return t.next.ExtractText(ctx, in)
	})
}

func (t *timeoutAdapter) DescribeScene(ctx context.Context, in ImageInput) (*SceneDescription, error) {
	return callWithTimeout(ctx, t.timeout, func(ctx context.Context) (*SceneDescription, error) {
		return t.next.DescribeScene(ctx, in)
	})
}

func (t *timeoutAdapter) Navigate(ctx context.Context, in NavigationInput) (*Route, error) {
	return callWithTimeout(ctx, t.timeout, func(ctx context.Context) (*Route, error) {
		return t.next.Navigate(ctx, in)
	})
}
