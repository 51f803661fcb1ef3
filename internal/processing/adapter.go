// ABOUTME: Processing Adapter boundary between the gateway and the AI backends
// ABOUTME: One typed method per feature; backends and decorators all satisfy Adapter

package processing

import (
	"context"
	"errors"
)

//go:generate go run go.uber.org/mock/mockgen -source=adapter.go -destination=../mocks/mock_adapter.go -package=mocks

// Feature names a processing capability. Used for metrics and usage records.
type Feature string

const (
	FeatureTranslation Feature = "translation"
	FeatureSpeech      Feature = "speech"
	FeatureOCR         Feature = "ocr"
	FeatureScene       Feature = "scene"
	FeatureNavigation  Feature = "navigation"
)

var (
	// ErrTimeout means the backend did not answer within the configured budget.
	ErrTimeout = errors.New("processing timed out")
	// ErrUnavailable means the backend could not be reached or refused the call.
	ErrUnavailable = errors.New("processing backend unavailable")
	// ErrUnsupported means the backend has no implementation for the feature.
	ErrUnsupported = errors.New("feature not supported by processing backend")
)

// TranslationInput is a validated translation request.
type TranslationInput struct {
	Text           string
	SourceLanguage string
	TargetLanguage string
}

// Translation is the result of a translation call.
type Translation struct {
	OriginalText   string  `json:"originalText"`
	TranslatedText string  `json:"translatedText"`
	SourceLanguage string  `json:"sourceLanguage"`
	TargetLanguage string  `json:"targetLanguage"`
	Confidence     float64 `json:"confidence"`
	Model          string  `json:"model"`
	Cached         bool    `json:"cached,omitempty"`
}

// AudioInput is decoded audio for transcription.
type AudioInput struct {
	Audio    []byte
	MIME     string
	Language string
}

// Transcript is the result of speech recognition.
type Transcript struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model"`
}

// ImageInput is a decoded image for OCR or scene description.
type ImageInput struct {
	Image       []byte
	MIME        string
	Language    string
	DetailLevel string
}

// TextBlock is one recognised region of an image.
type TextBlock struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	BoundingBox []int   `json:"bbox,omitempty"`
}

// OCRText is the result of text extraction.
type OCRText struct {
	Text       string      `json:"text"`
	Language   string      `json:"language"`
	Confidence float64     `json:"confidence"`
	Blocks     []TextBlock `json:"blocks"`
	Model      string      `json:"model"`
}

// DetectedObject is one object found in a scene.
type DetectedObject struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// SceneDescription is the result of scene analysis.
type SceneDescription struct {
	Description string           `json:"description"`
	DetailLevel string           `json:"detailLevel"`
	Objects     []DetectedObject `json:"objects"`
	Confidence  float64          `json:"confidence"`
	Model       string           `json:"model"`
}

// Coordinates is a position on the map.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NavigationInput is a validated navigation request.
type NavigationInput struct {
	Destination string
	Origin      *Coordinates
	Mode        string
}

// RouteStep is a single instruction of a route.
type RouteStep struct {
	Instruction string   `json:"instruction"`
	Distance    float64  `json:"distance"`
	Duration    float64  `json:"duration"`
	Maneuver    string   `json:"maneuver"`
	Warnings    []string `json:"warnings"`
}

// Route is the result of a navigation request.
type Route struct {
	Destination          string       `json:"destination"`
	Origin               *Coordinates `json:"origin,omitempty"`
	Mode                 string       `json:"mode"`
	Distance             float64      `json:"distance"`
	Duration             float64      `json:"duration"`
	Steps                []RouteStep  `json:"steps"`
	WheelchairAccessible bool         `json:"wheelchairAccessible"`
}

// Adapter is the single boundary to AI processing. Implementations must be
// safe for concurrent use and must honour ctx cancellation.
type Adapter interface {
	Translate(ctx context.Context, in TranslationInput) (*Translation, error)
	Transcribe(ctx context.Context, in AudioInput) (*Transcript, error)
	ExtractText(ctx context.Context, in ImageInput) (*OCRText, error)
	DescribeScene(ctx context.Context, in ImageInput) (*SceneDescription, error)
	Navigate(ctx context.Context, in NavigationInput) (*Route, error)
}
