// ABOUTME: Tests for envelope encoding and payload decoding
// ABOUTME: Covers the closed kind set, result routing, and malformed data

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_KnownKinds(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want Request
	}{
		{
			name: "join translation has no payload",
			env:  Envelope{Event: KindJoinTranslation},
			want: JoinChannel{Event: KindJoinTranslation, Channel: "translation"},
		},
		{
			name: "translation request",
			env:  Envelope{Event: KindTranslationRequest, Data: json.RawMessage(`{"text":"Hello","targetLanguage":"es"}`)},
			want: TranslationRequest{Text: "Hello", TargetLanguage: "es"},
		},
		{
			name: "conversation message",
			env:  Envelope{Event: KindConversationMessage, Data: json.RawMessage(`{"sessionId":"room1","message":"hi"}`)},
			want: ConversationMessage{SessionID: "room1", Message: "hi"},
		},
		{
			name: "null data decodes to zero payload",
			env:  Envelope{Event: KindSpeechStart, Data: json.RawMessage(`null`)},
			want: SpeechStart{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.env.Event, got.Kind())
		})
	}
}

func TestDecode_ObstacleDistance(t *testing.T) {
	got, err := Decode(Envelope{Event: KindAccessibilityObstacle, Data: json.RawMessage(`{"distance":2.5,"direction":"left"}`)})
	require.NoError(t, err)

	obstacle, ok := got.(Obstacle)
	require.True(t, ok)
	require.NotNil(t, obstacle.Distance)
	assert.InDelta(t, 2.5, *obstacle.Distance, 0.0001)
	assert.Equal(t, "left", obstacle.Direction)
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode(Envelope{Event: "payments:charge"})
	require.ErrorIs(t, err, ErrUnknownKind)
	assert.False(t, Known("payments:charge"))
	assert.Equal(t, KindSystemError, ResultKind("payments:charge"))
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode(Envelope{Event: KindAccessibilityObstacle, Data: json.RawMessage(`{"distance":"far"}`)})
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestResultKind(t *testing.T) {
	assert.Equal(t, KindTranslationResult, ResultKind(KindTranslationRequest))
	assert.Equal(t, KindSpeechStatus, ResultKind(KindSpeechStart))
	assert.Equal(t, KindSpeechResult, ResultKind(KindSpeechAudio))
	assert.Equal(t, KindAccessibilityFeedback, ResultKind(KindAccessibilityObstacle))
	assert.Equal(t, KindNavigationResult, ResultKind(KindAccessibilityNavigation))
	assert.Equal(t, KindConversationMessage, ResultKind(KindConversationMessage))
	assert.Equal(t, KindChannelJoined, ResultKind(KindJoinAnalytics))
}

func TestNewEnvelope_WireShape(t *testing.T) {
	env, err := NewEnvelope(KindTranslationResult, Failure("text is required"))
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"translation:result","data":{"success":false,"error":"text is required"}}`, string(raw))

	env = MustEnvelope(KindSystemHeartbeat, map[string]int{"activeConnections": 2})
	raw, err = json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"system:heartbeat","data":{"activeConnections":2}}`, string(raw))
}
