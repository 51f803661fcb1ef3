// ABOUTME: Tests for the event dispatcher and its feature handlers
// ABOUTME: Uses real sessions and router with a gomock processing adapter

package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/2389/vision-gateway/internal/auth"
	"github.com/2389/vision-gateway/internal/channel"
	"github.com/2389/vision-gateway/internal/mocks"
	"github.com/2389/vision-gateway/internal/moderation"
	"github.com/2389/vision-gateway/internal/processing"
	"github.com/2389/vision-gateway/internal/protocol"
	"github.com/2389/vision-gateway/internal/session"
	"github.com/2389/vision-gateway/internal/store"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// wavHeader is enough of a WAV file for content sniffing.
var wavHeader = []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00")

type harness struct {
	dispatcher *Dispatcher
	registry   *session.Registry
	router     *channel.Router
	adapter    *mocks.MockAdapter
	usage      *store.MockStore
}

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	router := channel.NewRouter(nil)
	adapter := mocks.NewMockAdapter(ctrl)
	usage := store.NewMockStore()
	mod, err := moderation.New([]string{"darn"}, "***")
	require.NoError(t, err)

	o := Options{
		Router:    router,
		Adapter:   adapter,
		Usage:     usage,
		Moderator: mod,
	}
	for _, fn := range opts {
		fn(&o)
	}
	d := New(o)
	t.Cleanup(d.Close)

	return &harness{
		dispatcher: d,
		registry:   session.NewRegistry(router, session.Options{QueueSize: 16}),
		router:     router,
		adapter:    adapter,
		usage:      usage,
	}
}

func (h *harness) open(t *testing.T, userID, tier string) *session.Session {
	t.Helper()
	s, err := h.registry.Open(t.Context(), auth.Identity{UserID: userID, Email: userID + "@example.com", Tier: tier})
	require.NoError(t, err)
	return s
}

func (h *harness) send(t *testing.T, s *session.Session, kind protocol.Kind, data any) {
	t.Helper()
	env, err := protocol.NewEnvelope(kind, data)
	require.NoError(t, err)
	h.dispatcher.Handle(s, env)
}

type frame struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func next(t *testing.T, s *session.Session) (protocol.Kind, frame) {
	t.Helper()
	select {
	case env := <-s.Outbound():
		var f frame
		require.NoError(t, json.Unmarshal(env.Data, &f))
		return env.Event, f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an outbound frame")
		return "", frame{}
	}
}

func assertSilent(t *testing.T, s *session.Session) {
	t.Helper()
	select {
	case env := <-s.Outbound():
		t.Fatalf("unexpected frame %s: %s", env.Event, env.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		distance float64
		want     string
	}{
		{0, "high"},
		{0.5, "high"},
		{0.99, "high"},
		{1, "medium"},
		{2, "medium"},
		{2.99, "medium"},
		{3, "low"},
		{5, "low"},
		{100, "low"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Severity(tt.distance), "distance %v", tt.distance)
	}
}

func TestObstacle_NeverCallsAdapter(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "free")
	h.adapter.EXPECT().Translate(gomock.Any(), gomock.Any()).Times(0)

	for _, tc := range []struct {
		distance float64
		want     string
	}{{0.5, "high"}, {2, "medium"}, {5, "low"}} {
		h.send(t, s, protocol.KindAccessibilityObstacle, map[string]any{"distance": tc.distance, "direction": "left"})
		kind, f := next(t, s)
		require.Equal(t, protocol.KindAccessibilityFeedback, kind)
		require.True(t, f.Success)

		var fb Feedback
		require.NoError(t, json.Unmarshal(f.Data, &fb))
		assert.Equal(t, tc.want, fb.Severity)
		assert.Contains(t, fb.Message, "to the left")
	}
}

func TestObstacleFeedback_Message(t *testing.T) {
	tests := []struct {
		name      string
		distance  float64
		direction string
		kind      string
		want      string
	}{
		{"default type ahead", 5, "", "", "Obstacle 5.0 meters ahead"},
		{"ascii type", 0.5, "left", "pole", "Stop. Pole 0.5 meters to the left"},
		{"multibyte first rune", 2, "left", "élan", "Caution. Élan 2.0 meters to the left"},
		{"non-latin type", 4, "forward", "ступенька", "Ступенька 4.0 meters ahead"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := obstacleFeedback(tt.distance, tt.direction, tt.kind)
			assert.Equal(t, tt.want, fb.Message)
			assert.Equal(t, tt.kind, fb.Type)
		})
	}
}

func TestObstacle_MissingDistance(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "free")

	h.send(t, s, protocol.KindAccessibilityObstacle, map[string]any{"type": "pole"})
	kind, f := next(t, s)
	assert.Equal(t, protocol.KindAccessibilityFeedback, kind)
	assert.False(t, f.Success)
	assert.Equal(t, "distance is required", f.Error)

	h.send(t, s, protocol.KindAccessibilityObstacle, map[string]any{"distance": -1})
	_, f = next(t, s)
	assert.False(t, f.Success)
	assert.Equal(t, "distance must be at least 0", f.Error)
}

func TestTranslation_EmptyTextNeverReachesAdapter(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "free")
	h.adapter.EXPECT().Translate(gomock.Any(), gomock.Any()).Times(0)

	for _, text := range []string{"", "   "} {
		h.send(t, s, protocol.KindTranslationRequest, map[string]any{"text": text, "targetLanguage": "es"})
		kind, f := next(t, s)
		assert.Equal(t, protocol.KindTranslationResult, kind)
		assert.False(t, f.Success)
		assert.Equal(t, "text is required", f.Error)
	}

	h.send(t, s, protocol.KindTranslationRequest, map[string]any{"text": "Hello"})
	_, f := next(t, s)
	assert.False(t, f.Success)
	assert.Equal(t, "targetLanguage is required", f.Error)
}

func TestTranslation_ExactlyOneResult(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "premium")

	h.adapter.EXPECT().
		Translate(gomock.Any(), processing.TranslationInput{Text: "Hello", SourceLanguage: "en", TargetLanguage: "es"}).
		Return(&processing.Translation{OriginalText: "Hello", TranslatedText: "Hola", SourceLanguage: "en", TargetLanguage: "es"}, nil).
		Times(1)

	h.send(t, s, protocol.KindTranslationRequest, map[string]any{"text": "Hello", "sourceLanguage": "en", "targetLanguage": "es"})

	kind, f := next(t, s)
	require.Equal(t, protocol.KindTranslationResult, kind)
	require.True(t, f.Success)
	var tr processing.Translation
	require.NoError(t, json.Unmarshal(f.Data, &tr))
	assert.Equal(t, "Hola", tr.TranslatedText)

	assertSilent(t, s)

	records := h.usage.UsageRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "u1", records[0].UserID)
	assert.Equal(t, "translation", records[0].Feature)
	assert.True(t, records[0].Success)
}

func TestTranslation_DetectsSourceLanguage(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "free")

	done := make(chan processing.TranslationInput, 1)
	h.adapter.EXPECT().Translate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in processing.TranslationInput) (*processing.Translation, error) {
			done <- in
			return &processing.Translation{TranslatedText: "x"}, nil
		})

	h.send(t, s, protocol.KindTranslationRequest, map[string]any{
		"text":           "Bonjour tout le monde, je suis vraiment très content de vous retrouver aujourd'hui, comment allez-vous?",
		"sourceLanguage": "auto",
		"targetLanguage": "en",
	})
	_, f := next(t, s)
	require.True(t, f.Success)
	in := <-done
	assert.Equal(t, "fr", in.SourceLanguage)
}

func TestTranslation_ShortTextKeepsAutoSource(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "free")

	done := make(chan processing.TranslationInput, 1)
	h.adapter.EXPECT().Translate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in processing.TranslationInput) (*processing.Translation, error) {
			done <- in
			return &processing.Translation{TranslatedText: "Hola"}, nil
		})

	h.send(t, s, protocol.KindTranslationRequest, map[string]any{"text": "Hello", "targetLanguage": "es"})
	_, f := next(t, s)
	require.True(t, f.Success)
	in := <-done
	assert.Equal(t, "auto", in.SourceLanguage)
	assert.Equal(t, "Hello", in.Text)
}

func TestDetectLanguage_UnreliableGuessesStayAuto(t *testing.T) {
	for _, text := range []string{"Hello", "hi", "Bonjour", "Hello, how are you today?"} {
		assert.Equal(t, "auto", detectLanguage(text), "text %q", text)
	}
}

func TestProcessing_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", processing.ErrTimeout, "processing timed out"},
		{"unavailable", processing.ErrUnavailable, "processing failed"},
		{"other", errors.New("model exploded: secret detail"), "processing failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			s := h.open(t, "u1", "free")
			h.adapter.EXPECT().Navigate(gomock.Any(), gomock.Any()).Return(nil, tt.err)

			h.send(t, s, protocol.KindAccessibilityNavigation, map[string]any{"destination": "Library"})
			kind, f := next(t, s)
			assert.Equal(t, protocol.KindNavigationResult, kind)
			assert.False(t, f.Success)
			assert.Equal(t, tt.want, f.Error)

			records := h.usage.UsageRecords()
			require.Len(t, records, 1)
			assert.False(t, records[0].Success)
		})
	}
}

func TestProcessing_ResultDroppedAfterDisconnect(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "free")

	started := make(chan struct{})
	h.adapter.EXPECT().Navigate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ processing.NavigationInput) (*processing.Route, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})

	h.send(t, s, protocol.KindAccessibilityNavigation, map[string]any{"destination": "Library"})
	<-started
	require.True(t, h.registry.Close(s.ID(), "client went away"))

	h.dispatcher.Close()
	assert.Len(t, s.Outbound(), 0)
	assert.Empty(t, h.usage.UsageRecords())
}

func TestProcessing_PanicIsContained(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "free")

	gomock.InOrder(
		h.adapter.EXPECT().Navigate(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, processing.NavigationInput) (*processing.Route, error) {
				panic("nil map")
			}),
		h.adapter.EXPECT().Navigate(gomock.Any(), gomock.Any()).
			Return(&processing.Route{Destination: "Library"}, nil),
	)

	h.send(t, s, protocol.KindAccessibilityNavigation, map[string]any{"destination": "Library"})
	_, f := next(t, s)
	assert.False(t, f.Success)
	assert.Equal(t, "internal error", f.Error)

	h.send(t, s, protocol.KindAccessibilityNavigation, map[string]any{"destination": "Library"})
	_, f = next(t, s)
	assert.True(t, f.Success)
}

func TestProcessing_PoolFull(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Pool = NewTaskPool(1) })
	s := h.open(t, "u1", "free")

	release := make(chan struct{})
	h.adapter.EXPECT().Navigate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, processing.NavigationInput) (*processing.Route, error) {
			<-release
			return &processing.Route{}, nil
		})

	h.send(t, s, protocol.KindAccessibilityNavigation, map[string]any{"destination": "A"})
	h.send(t, s, protocol.KindAccessibilityNavigation, map[string]any{"destination": "B"})

	_, f := next(t, s)
	assert.False(t, f.Success)
	assert.Equal(t, "server is busy, try again", f.Error)

	close(release)
	_, f = next(t, s)
	assert.True(t, f.Success)
}

func TestOCR_RequiresImage(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "free")

	h.adapter.EXPECT().ExtractText(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in processing.ImageInput) (*processing.OCRText, error) {
			assert.Equal(t, "image/png", in.MIME)
			assert.Equal(t, pngHeader, in.Image)
			return &processing.OCRText{Text: "EXIT"}, nil
		})

	h.send(t, s, protocol.KindOCRRequest, map[string]any{"imageData": base64.StdEncoding.EncodeToString([]byte("just some text"))})
	kind, f := next(t, s)
	assert.Equal(t, protocol.KindOCRResult, kind)
	assert.False(t, f.Success)
	assert.Contains(t, f.Error, "expected an image")

	h.send(t, s, protocol.KindOCRRequest, map[string]any{"imageData": "not base64!!"})
	_, f = next(t, s)
	assert.False(t, f.Success)
	assert.Contains(t, f.Error, "not valid base64")

	h.send(t, s, protocol.KindOCRRequest, map[string]any{"imageData": "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)})
	_, f = next(t, s)
	assert.True(t, f.Success)
}

func TestScene_DetailLevel(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "free")
	h.adapter.EXPECT().DescribeScene(gomock.Any(), processing.ImageInput{DetailLevel: "comprehensive"}).
		Return(&processing.SceneDescription{Description: "A room"}, nil)

	h.send(t, s, protocol.KindSceneRequest, map[string]any{})
	_, f := next(t, s)
	assert.False(t, f.Success)
	assert.Equal(t, "detailLevel is required", f.Error)

	h.send(t, s, protocol.KindSceneRequest, map[string]any{"detailLevel": "extreme"})
	_, f = next(t, s)
	assert.False(t, f.Success)
	assert.Contains(t, f.Error, "detailLevel must be one of")

	h.send(t, s, protocol.KindSceneRequest, map[string]any{"detailLevel": "high"})
	kind, f := next(t, s)
	assert.Equal(t, protocol.KindSceneResult, kind)
	assert.True(t, f.Success)
}

func TestSpeech_StatusThenResult(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "free")
	h.adapter.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
		Return(&processing.Transcript{Text: "hello"}, nil)

	h.send(t, s, protocol.KindSpeechStart, map[string]any{"language": "en"})
	kind, f := next(t, s)
	assert.Equal(t, protocol.KindSpeechStatus, kind)
	assert.JSONEq(t, `{"status":"listening","language":"en"}`, string(f.Data))

	h.send(t, s, protocol.KindSpeechAudio, map[string]any{"audioData": ""})
	kind, f = next(t, s)
	assert.Equal(t, protocol.KindSpeechResult, kind)
	assert.Equal(t, "audioData is required", f.Error)

	h.send(t, s, protocol.KindSpeechAudio, map[string]any{"audioData": base64.StdEncoding.EncodeToString(wavHeader)})
	kind, f = next(t, s)
	assert.Equal(t, protocol.KindSpeechStatus, kind)
	assert.JSONEq(t, `{"status":"processing"}`, string(f.Data))
	kind, f = next(t, s)
	assert.Equal(t, protocol.KindSpeechResult, kind)
	assert.True(t, f.Success)
}

func TestUnknownAndMalformed(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "u1", "free")

	h.dispatcher.Handle(s, protocol.Envelope{Event: "launch:rockets"})
	kind, f := next(t, s)
	assert.Equal(t, protocol.KindSystemError, kind)
	assert.Contains(t, f.Error, "launch:rockets")

	h.dispatcher.Handle(s, protocol.Envelope{Event: protocol.KindTranslationRequest, Data: json.RawMessage(`{"text": 42}`)})
	kind, f = next(t, s)
	assert.Equal(t, protocol.KindTranslationResult, kind)
	assert.Equal(t, "malformed payload", f.Error)
}

func TestJoinChannels(t *testing.T) {
	h := newHarness(t)
	free := h.open(t, "u1", "free")
	ent := h.open(t, "u2", "enterprise")

	h.send(t, free, protocol.KindJoinTranslation, nil)
	kind, f := next(t, free)
	assert.Equal(t, protocol.KindChannelJoined, kind)
	assert.JSONEq(t, `{"channel":"translation"}`, string(f.Data))
	assert.True(t, h.router.IsMember(free.ID(), channel.Translation))

	h.send(t, free, protocol.KindJoinAnalytics, nil)
	_, f = next(t, free)
	assert.False(t, f.Success)
	assert.False(t, h.router.IsMember(free.ID(), channel.Analytics))

	h.send(t, ent, protocol.KindJoinAnalytics, nil)
	_, f = next(t, ent)
	assert.True(t, f.Success)
	assert.True(t, h.router.IsMember(ent.ID(), channel.Analytics))
}

func TestAnalytics_UsageBroadcast(t *testing.T) {
	h := newHarness(t)
	watcher := h.open(t, "boss", "enterprise")
	user := h.open(t, "u1", "free")
	require.NoError(t, h.router.Join(watcher, channel.Analytics))

	h.adapter.EXPECT().Navigate(gomock.Any(), gomock.Any()).Return(&processing.Route{}, nil)
	h.send(t, user, protocol.KindAccessibilityNavigation, map[string]any{"destination": "Park"})
	_, f := next(t, user)
	require.True(t, f.Success)

	select {
	case env := <-watcher.Outbound():
		assert.Equal(t, protocol.KindAnalyticsUsage, env.Event)
		var ev map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &ev))
		assert.Equal(t, "u1", ev["userId"])
		assert.Equal(t, "navigation", ev["feature"])
		assert.Equal(t, true, ev["success"])
	case <-time.After(2 * time.Second):
		t.Fatal("no analytics:usage frame")
	}
}

func TestConversation_Room(t *testing.T) {
	h := newHarness(t)
	a := h.open(t, "alice", "free")
	b := h.open(t, "bob", "free")
	c := h.open(t, "carol", "free")
	outsider := h.open(t, "dave", "free")

	for _, s := range []*session.Session{a, b, c} {
		h.send(t, s, protocol.KindConversationJoin, map[string]any{"sessionId": "room1"})
		kind, f := next(t, s)
		require.Equal(t, protocol.KindConversationJoined, kind)
		require.True(t, f.Success)
	}
	assert.Equal(t, 3, h.router.MemberCount(channel.Conversation("room1")))

	h.send(t, a, protocol.KindConversationMessage, map[string]any{"sessionId": "room1", "message": "hi all", "sourceLanguage": "en"})

	for _, s := range []*session.Session{b, c} {
		kind, f := next(t, s)
		require.Equal(t, protocol.KindConversationMessage, kind)
		require.True(t, f.Success)
		var msg ChatMessage
		require.NoError(t, json.Unmarshal(f.Data, &msg))
		assert.Equal(t, "hi all", msg.Message)
		assert.Equal(t, "alice", msg.SenderID)
		assert.Equal(t, "room1", msg.SessionID)
		assert.Len(t, msg.ID, 26)
	}
	assertSilent(t, a)
	assertSilent(t, outsider)

	h.send(t, outsider, protocol.KindConversationMessage, map[string]any{"sessionId": "room1", "message": "let me in"})
	_, f := next(t, outsider)
	assert.False(t, f.Success)
	assertSilent(t, b)

	h.send(t, c, protocol.KindConversationLeave, map[string]any{"sessionId": "room1"})
	kind, _ := next(t, c)
	assert.Equal(t, protocol.KindConversationLeft, kind)
	h.send(t, a, protocol.KindConversationMessage, map[string]any{"sessionId": "room1", "message": "bye"})
	_, f = next(t, b)
	assert.True(t, f.Success)
	assertSilent(t, c)
}

func TestConversation_DedupeAndModeration(t *testing.T) {
	h := newHarness(t)
	a := h.open(t, "alice", "free")
	b := h.open(t, "bob", "free")
	for _, s := range []*session.Session{a, b} {
		h.send(t, s, protocol.KindConversationJoin, map[string]any{"sessionId": "room1"})
		next(t, s)
	}

	payload := map[string]any{"sessionId": "room1", "message": "well darn", "clientMsgId": "m-1"}
	h.send(t, a, protocol.KindConversationMessage, payload)
	h.send(t, a, protocol.KindConversationMessage, payload)

	_, f := next(t, b)
	var msg ChatMessage
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	assert.Equal(t, "well ***", msg.Message)
	assert.True(t, msg.Moderated)
	assert.Equal(t, "m-1", msg.ClientMsgID)
	assertSilent(t, b)
}
