// ABOUTME: Metrics decorator recording latency and outcome of every adapter call
// ABOUTME: Outcome is ok, timeout, or error so dashboards can split slow from broken

package processing

import (
	"context"
	"errors"
	"time"

	"github.com/2389/vision-gateway/internal/metrics"
)

type instrumented struct {
	next    Adapter
	metrics *metrics.Metrics
}

// Instrumented reports call durations for next to m. A nil m returns next.
func Instrumented(next Adapter, m *metrics.Metrics) Adapter {
	if m == nil {
		return next
	}
	return &instrumented{next: next, metrics: m}
}

func observe[T any](m *metrics.Metrics, f Feature, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	m.ObserveProcessing(string(f), Outcome(err), time.Since(start))
	return v, err
}

// Outcome classifies an adapter error for metrics and usage records.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func (i *instrumented) Translate(ctx context.Context, in TranslationInput) (*Translation, error) {
	return observe(i.metrics, FeatureTranslation, func() (*Translation, error) { return i.next.Translate(ctx, in) })
}

func (i *instrumented) Transcribe(ctx context.Context, in AudioInput) (*Transcript, error) {
	return observe(i.metrics, FeatureSpeech, func() (*Transcript, error) { return i.next.Transcribe(ctx, in) })
}

func (i *instrumented) ExtractText(ctx context.Context, in ImageInput) (*OCRText, error) {
	return observe(i.metrics, FeatureOCR, func() (*OCRText, error) { return i.next.ExtractText(ctx, in) })
}

func (i *instrumented) DescribeScene(ctx context.Context, in ImageInput) (*SceneDescription, error) {
	return observe(i.metrics, FeatureScene, func() (*SceneDescription, error) { return i.next.DescribeScene(ctx, in) })
}

func (i *instrumented) Navigate(ctx context.Context, in NavigationInput) (*Route, error) {
	return observe(i.metrics, FeatureNavigation, func() (*Route, error) { return i.next.Navigate(ctx, in) })
}
