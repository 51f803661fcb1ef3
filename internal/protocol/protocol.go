// ABOUTME: Wire envelope and event kinds for the realtime gateway protocol
// ABOUTME: Every frame is {"event": kind, "data": payload} in both directions

package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind names an event on the wire.
type Kind string

// Client-originated kinds. The set is closed; anything else is rejected.
const (
	KindJoinTranslation         Kind = "join-translation"
	KindJoinAccessibility       Kind = "join-accessibility"
	KindJoinAnalytics           Kind = "join-analytics"
	KindTranslationRequest      Kind = "translation:request"
	KindSpeechStart             Kind = "speech:start"
	KindSpeechAudio             Kind = "speech:audio"
	KindOCRRequest              Kind = "ocr:request"
	KindSceneRequest            Kind = "scene:request"
	KindConversationJoin        Kind = "conversation:join"
	KindConversationLeave       Kind = "conversation:leave"
	KindConversationMessage     Kind = "conversation:message"
	KindAccessibilityObstacle   Kind = "accessibility:obstacle"
	KindAccessibilityNavigation Kind = "accessibility:navigation"
)

// Server-originated kinds.
const (
	KindChannelJoined         Kind = "channel:joined"
	KindTranslationResult     Kind = "translation:result"
	KindSpeechStatus          Kind = "speech:status"
	KindSpeechResult          Kind = "speech:result"
	KindOCRResult             Kind = "ocr:result"
	KindSceneResult           Kind = "scene:result"
	KindConversationJoined    Kind = "conversation:joined"
	KindConversationLeft      Kind = "conversation:left"
	KindAccessibilityFeedback Kind = "accessibility:feedback"
	KindNavigationResult      Kind = "accessibility:navigation:result"
	KindAnalyticsUsage        Kind = "analytics:usage"
	KindSystemHeartbeat       Kind = "system:heartbeat"
	KindSystemError           Kind = "system:error"
)

// resultKinds maps each client kind to the event its outcome is reported on.
var resultKinds = map[Kind]Kind{
	KindJoinTranslation:         KindChannelJoined,
	KindJoinAccessibility:       KindChannelJoined,
	KindJoinAnalytics:           KindChannelJoined,
	KindTranslationRequest:      KindTranslationResult,
	KindSpeechStart:             KindSpeechStatus,
	KindSpeechAudio:             KindSpeechResult,
	KindOCRRequest:              KindOCRResult,
	KindSceneRequest:            KindSceneResult,
	KindConversationJoin:        KindConversationJoined,
	KindConversationLeave:       KindConversationLeft,
	KindConversationMessage:     KindConversationMessage,
	KindAccessibilityObstacle:   KindAccessibilityFeedback,
	KindAccessibilityNavigation: KindNavigationResult,
}

// ResultKind returns the event a request's outcome is delivered on.
// Unknown kinds report on system:error.
func ResultKind(k Kind) Kind {
	if rk, ok := resultKinds[k]; ok {
		return rk
	}
	return KindSystemError
}

// Known reports whether k is a client kind the gateway accepts.
func Known(k Kind) bool {
	_, ok := resultKinds[k]
	return ok
}

// Envelope is a single wire frame.
type Envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Result is the payload of every request outcome.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success wraps data in a successful Result.
func Success(data any) Result {
	return Result{Success: true, Data: data}
}

// Failure builds a failed Result carrying a user-visible message.
func Failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

// NewEnvelope marshals data once so the frame can be fanned out to many sessions.
func NewEnvelope(kind Kind, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	return Envelope{Event: kind, Data: raw}, nil
}

// MustEnvelope is NewEnvelope for payloads that cannot fail to encode.
func MustEnvelope(kind Kind, data any) Envelope {
	env, err := NewEnvelope(kind, data)
	if err != nil {
		panic(err)
	}
	return env
}
