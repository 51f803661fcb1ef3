// ABOUTME: Deterministic in-process backend used by default and in tests
// ABOUTME: Returns canned results after a configurable, cancellable delay

package processing

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const simulatedModel = "simulated"

// Simulated answers every feature locally without any external service.
type Simulated struct {
	latency time.Duration
}

// NewSimulated creates a simulated backend that waits latency before answering.
func NewSimulated(latency time.Duration) *Simulated {
	return &Simulated{latency: latency}
}

func (s *Simulated) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Translate prefixes the text with the upper-cased target language.
func (s *Simulated) Translate(ctx context.Context, in TranslationInput) (*Translation, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return &Translation{
		OriginalText:   in.Text,
		TranslatedText: fmt.Sprintf("[%s] %s", strings.ToUpper(in.TargetLanguage), in.Text),
		SourceLanguage: in.SourceLanguage,
		TargetLanguage: in.TargetLanguage,
		Confidence:     0.5,
		Model:          simulatedModel,
	}, nil
}

// Transcribe picks a canned sentence by audio length.
func (s *Simulated) Transcribe(ctx context.Context, in AudioInput) (*Transcript, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	var text string
	switch n := len(in.Audio); {
	case n < 50_000:
		text = "Hello, this is a short audio message."
	case n < 200_000:
		text = "This is a medium length audio recording with multiple sentences and some content."
	default:
		text = "This is a longer audio recording that contains multiple sentences, various topics, and extended content."
	}
	return &Transcript{
		Text:       text,
		Language:   orDefault(in.Language, "en"),
		Confidence: 0.75,
		Model:      simulatedModel,
	}, nil
}

// ExtractText returns a single sample text block.
func (s *Simulated) ExtractText(ctx context.Context, in ImageInput) (*OCRText, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	const text = "This is a sample document with horizontal text layout."
	return &OCRText{
		Text:       text,
		Language:   orDefault(in.Language, "en"),
		Confidence: 0.75,
		Blocks:     []TextBlock{{Text: text, Confidence: 0.75, BoundingBox: []int{50, 50, 590, 430}}},
		Model:      simulatedModel,
	}, nil
}

var simulatedObjects = []DetectedObject{
	{Name: "person", Category: "person", Confidence: 0.95},
	{Name: "chair", Category: "furniture", Confidence: 0.87},
	{Name: "table", Category: "furniture", Confidence: 0.92},
	{Name: "book", Category: "object", Confidence: 0.78},
	{Name: "lamp", Category: "furniture", Confidence: 0.83},
	{Name: "window", Category: "structure", Confidence: 0.90},
	{Name: "door", Category: "structure", Confidence: 0.85},
	{Name: "plant", Category: "nature", Confidence: 0.72},
}

// DescribeScene describes a fixed set of objects at the requested detail level.
func (s *Simulated) DescribeScene(ctx context.Context, in ImageInput) (*SceneDescription, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	level := NormalizeDetailLevel(in.DetailLevel)
	objects := append([]DetectedObject(nil), simulatedObjects...)
	return &SceneDescription{
		Description: describeObjects(objects, level),
		DetailLevel: level,
		Objects:     objects,
		Confidence:  0.85,
		Model:       simulatedModel,
	}, nil
}

// Navigate returns a four step walking route ending at the destination.
func (s *Simulated) Navigate(ctx context.Context, in NavigationInput) (*Route, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return simulatedRoute(in), nil
}

func simulatedRoute(in NavigationInput) *Route {
	steps := []RouteStep{
		{Instruction: "Head north from your current location", Distance: 100, Duration: 120, Maneuver: "straight", Warnings: []string{}},
		{Instruction: "Turn right onto Main Street", Distance: 200, Duration: 240, Maneuver: "turn-right", Warnings: []string{"Busy intersection ahead"}},
		{Instruction: "Continue straight for 300 meters", Distance: 300, Duration: 360, Maneuver: "straight", Warnings: []string{}},
		{Instruction: "Arrive at " + in.Destination, Maneuver: "arrive", Warnings: []string{}},
	}
	r := &Route{
		Destination:          in.Destination,
		Origin:               in.Origin,
		Mode:                 orDefault(in.Mode, "walking"),
		Steps:                steps,
		WheelchairAccessible: true,
	}
	for _, st := range steps {
		r.Distance += st.Distance
		r.Duration += st.Duration
	}
	return r
}

// NormalizeDetailLevel maps the legacy low/medium/high levels onto
// basic/detailed/comprehensive. Unknown or empty values become detailed.
func NormalizeDetailLevel(level string) string {
	switch strings.ToLower(level) {
	case "basic", "low":
		return "basic"
	case "comprehensive", "high":
		return "comprehensive"
	default:
		return "detailed"
	}
}

func describeObjects(objects []DetectedObject, level string) string {
	if len(objects) == 0 {
		return "Scene with various objects."
	}
	names := make([]string, 0, len(objects))
	for _, o := range objects {
		names = append(names, o.Name)
	}

	switch level {
	case "basic":
		return fmt.Sprintf("Scene contains %s.", strings.Join(names[:min(3, len(names))], ", "))
	case "comprehensive":
		parts := []string{fmt.Sprintf("This scene contains %d detected objects", len(objects))}
		byCategory := map[string][]string{}
		var order []string
		for _, o := range objects {
			if _, ok := byCategory[o.Category]; !ok {
				order = append(order, o.Category)
			}
			byCategory[o.Category] = append(byCategory[o.Category], o.Name)
		}
		for _, c := range order {
			items := byCategory[c]
			parts = append(parts, fmt.Sprintf("%s: %s", c, strings.Join(items[:min(3, len(items))], ", ")))
		}
		return strings.Join(parts, ". ") + "."
	default:
		shown := make([]string, 0, 5)
		for _, n := range names[:min(5, len(names))] {
			shown = append(shown, "a "+n)
		}
		return fmt.Sprintf("The scene shows %s.", strings.Join(shown, ", "))
	}
}

func orDefault(v, def string) string {
	if v == "" || v == "auto" {
		return def
	}
	return v
}
