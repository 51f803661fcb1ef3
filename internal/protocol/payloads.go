// ABOUTME: Typed request payloads decoded from client envelopes
// ABOUTME: Decode turns an Envelope into exactly one Request variant per known kind

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for events outside the closed client set.
	ErrUnknownKind = errors.New("unknown event kind")
	// ErrMalformedPayload is returned when data cannot be decoded into the kind's payload.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Request is implemented by every decoded client payload.
type Request interface {
	Kind() Kind
}

// JoinChannel is produced for join-translation, join-accessibility and join-analytics.
type JoinChannel struct {
	Event   Kind   `json:"-"`
	Channel string `json:"-"`
}

func (j JoinChannel) Kind() Kind { return j.Event }

type TranslationRequest struct {
	Text           string `json:"text" validate:"notblank,max=5000"`
	SourceLanguage string `json:"sourceLanguage,omitempty" validate:"omitempty,max=16"`
	TargetLanguage string `json:"targetLanguage" validate:"notblank,max=16"`
}

func (TranslationRequest) Kind() Kind { return KindTranslationRequest }

type SpeechStart struct {
	Language string `json:"language,omitempty" validate:"omitempty,max=16"`
}

func (SpeechStart) Kind() Kind { return KindSpeechStart }

// SpeechAudio carries base64 audio, optionally as a data URL.
type SpeechAudio struct {
	AudioData string `json:"audioData" validate:"notblank"`
	Language  string `json:"language,omitempty" validate:"omitempty,max=16"`
}

func (SpeechAudio) Kind() Kind { return KindSpeechAudio }

// OCRRequest carries a base64 image, optionally as a data URL.
type OCRRequest struct {
	ImageData string `json:"imageData" validate:"notblank"`
	Language  string `json:"language,omitempty" validate:"omitempty,max=16"`
}

func (OCRRequest) Kind() Kind { return KindOCRRequest }

type SceneRequest struct {
	ImageData   string `json:"imageData,omitempty"`
	DetailLevel string `json:"detailLevel" validate:"notblank,oneof=basic detailed comprehensive low medium high"`
}

func (SceneRequest) Kind() Kind { return KindSceneRequest }

type ConversationJoin struct {
	SessionID string `json:"sessionId" validate:"notblank,max=128"`
}

func (ConversationJoin) Kind() Kind { return KindConversationJoin }

type ConversationLeave struct {
	SessionID string `json:"sessionId" validate:"notblank,max=128"`
}

func (ConversationLeave) Kind() Kind { return KindConversationLeave }

type ConversationMessage struct {
	SessionID      string `json:"sessionId" validate:"notblank,max=128"`
	Message        string `json:"message" validate:"notblank,max=4000"`
	SourceLanguage string `json:"sourceLanguage,omitempty" validate:"omitempty,max=16"`
	TargetLanguage string `json:"targetLanguage,omitempty" validate:"omitempty,max=16"`
	ClientMsgID    string `json:"clientMsgId,omitempty" validate:"omitempty,max=64"`
}

func (ConversationMessage) Kind() Kind { return KindConversationMessage }

// Obstacle reports a detected obstacle. Distance is a pointer so a missing value is distinguishable from zero.
type Obstacle struct {
	Distance  *float64 `json:"distance" validate:"required,gte=0"`
	Direction string   `json:"direction,omitempty" validate:"omitempty,max=32"`
	Type      string   `json:"type,omitempty" validate:"omitempty,max=64"`
}

func (Obstacle) Kind() Kind { return KindAccessibilityObstacle }

type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

type NavigationRequest struct {
	Destination     string       `json:"destination" validate:"notblank,max=256"`
	CurrentLocation *Coordinates `json:"currentLocation,omitempty" validate:"omitempty"`
	Mode            string       `json:"mode,omitempty" validate:"omitempty,oneof=walking wheelchair transit"`
}

func (NavigationRequest) Kind() Kind { return KindAccessibilityNavigation }

// joinChannels maps join-* kinds to the fixed channel they subscribe to.
var joinChannels = map[Kind]string{
	KindJoinTranslation:   "translation",
	KindJoinAccessibility: "accessibility",
	KindJoinAnalytics:     "analytics",
}

// Decode converts an envelope into its typed payload.
func Decode(env Envelope) (Request, error) {
	if ch, ok := joinChannels[env.Event]; ok {
		return JoinChannel{Event: env.Event, Channel: ch}, nil
	}

	switch env.Event {
	case KindTranslationRequest:
		return decodeInto[TranslationRequest](env)
	case KindSpeechStart:
		return decodeInto[SpeechStart](env)
	case KindSpeechAudio:
		return decodeInto[SpeechAudio](env)
	case KindOCRRequest:
		return decodeInto[OCRRequest](env)
	case KindSceneRequest:
		return decodeInto[SceneRequest](env)
	case KindConversationJoin:
		return decodeInto[ConversationJoin](env)
	case KindConversationLeave:
		return decodeInto[ConversationLeave](env)
	case KindConversationMessage:
		return decodeInto[ConversationMessage](env)
	case KindAccessibilityObstacle:
		return decodeInto[Obstacle](env)
	case KindAccessibilityNavigation:
		return decodeInto[NavigationRequest](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Event)
	}
}

func decodeInto[T Request](env Envelope) (Request, error) {
	var payload T
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		// An absent payload decodes to the zero value; validation decides if that is acceptable.
		return payload, nil
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, env.Event, err)
	}
	return payload, nil
}
