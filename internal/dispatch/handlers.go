// ABOUTME: Feature handlers invoked by the dispatcher after decoding and validation
// ABOUTME: Channel joins, processing requests, conversation fan-out, and obstacle feedback

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/oklog/ulid/v2"

	"github.com/2389/vision-gateway/internal/channel"
	"github.com/2389/vision-gateway/internal/processing"
	"github.com/2389/vision-gateway/internal/protocol"
	"github.com/2389/vision-gateway/internal/session"
)

func (d *Dispatcher) handleJoin(s *session.Session, r protocol.JoinChannel) {
	kind := protocol.KindChannelJoined
	if r.Channel == channel.Analytics && !d.analyticsAllowed(s.Identity().Tier) {
		d.metrics.Event(string(r.Event), "forbidden")
		d.fail(s, kind, fmt.Sprintf("the analytics channel is not available on the %s tier", s.Identity().Tier))
		return
	}
	if err := d.router.Join(s, r.Channel); err != nil {
		d.fail(s, kind, "could not join channel")
		return
	}
	d.metrics.Event(string(r.Event), "ok")
	d.ok(s, kind, map[string]string{"channel": r.Channel})
}

// detectLanguage guesses the ISO 639-1 code of text. Short or ambiguous text
// yields unreliable guesses, so anything below the reliability threshold
// stays "auto" and the backend decides.
func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "auto"
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return "auto"
}

func (d *Dispatcher) handleTranslation(s *session.Session, r protocol.TranslationRequest) {
	in := processing.TranslationInput{
		Text:           r.Text,
		SourceLanguage: r.SourceLanguage,
		TargetLanguage: r.TargetLanguage,
	}
	if in.SourceLanguage == "" || in.SourceLanguage == "auto" {
		in.SourceLanguage = detectLanguage(r.Text)
	}
	process(d, s, processing.FeatureTranslation, protocol.KindTranslationResult,
		func(ctx context.Context) (*processing.Translation, error) {
			return d.adapter.Translate(ctx, in)
		})
}

type speechStatus struct {
	Status   string `json:"status"`
	Language string `json:"language,omitempty"`
}

func (d *Dispatcher) handleSpeechStart(s *session.Session, r protocol.SpeechStart) {
	d.metrics.Event(string(r.Kind()), "ok")
	d.ok(s, protocol.KindSpeechStatus, speechStatus{Status: "listening", Language: r.Language})
}

func (d *Dispatcher) handleSpeechAudio(s *session.Session, r protocol.SpeechAudio) {
	audio, mime, err := decodeAudio(r.AudioData)
	if err != nil {
		d.metrics.Event(string(r.Kind()), "invalid")
		d.fail(s, protocol.KindSpeechResult, "audioData: "+err.Error())
		return
	}
	d.ok(s, protocol.KindSpeechStatus, speechStatus{Status: "processing", Language: r.Language})

	in := processing.AudioInput{Audio: audio, MIME: mime, Language: r.Language}
	process(d, s, processing.FeatureSpeech, protocol.KindSpeechResult,
		func(ctx context.Context) (*processing.Transcript, error) {
			return d.adapter.Transcribe(ctx, in)
		})
}

func (d *Dispatcher) handleOCR(s *session.Session, r protocol.OCRRequest) {
	img, mime, err := decodeImage(r.ImageData)
	if err != nil {
		d.metrics.Event(string(r.Kind()), "invalid")
		d.fail(s, protocol.KindOCRResult, "imageData: "+err.Error())
		return
	}
	in := processing.ImageInput{Image: img, MIME: mime, Language: r.Language}
	process(d, s, processing.FeatureOCR, protocol.KindOCRResult,
		func(ctx context.Context) (*processing.OCRText, error) {
			return d.adapter.ExtractText(ctx, in)
		})
}

func (d *Dispatcher) handleScene(s *session.Session, r protocol.SceneRequest) {
	in := processing.ImageInput{DetailLevel: processing.NormalizeDetailLevel(r.DetailLevel)}
	// Clients streaming from a camera may send only the level; the image is optional.
	if r.ImageData != "" {
		img, mime, err := decodeImage(r.ImageData)
		if err != nil {
			d.metrics.Event(string(r.Kind()), "invalid")
			d.fail(s, protocol.KindSceneResult, "imageData: "+err.Error())
			return
		}
		in.Image, in.MIME = img, mime
	}
	process(d, s, processing.FeatureScene, protocol.KindSceneResult,
		func(ctx context.Context) (*processing.SceneDescription, error) {
			return d.adapter.DescribeScene(ctx, in)
		})
}

func (d *Dispatcher) handleNavigation(s *session.Session, r protocol.NavigationRequest) {
	in := processing.NavigationInput{Destination: r.Destination, Mode: r.Mode}
	if r.CurrentLocation != nil {
		in.Origin = &processing.Coordinates{Latitude: r.CurrentLocation.Latitude, Longitude: r.CurrentLocation.Longitude}
	}
	process(d, s, processing.FeatureNavigation, protocol.KindNavigationResult,
		func(ctx context.Context) (*processing.Route, error) {
			return d.adapter.Navigate(ctx, in)
		})
}

func (d *Dispatcher) handleObstacle(s *session.Session, r protocol.Obstacle) {
	d.metrics.Event(string(r.Kind()), "ok")
	d.ok(s, protocol.KindAccessibilityFeedback, obstacleFeedback(*r.Distance, r.Direction, r.Type))
}

type conversationAck struct {
	SessionID    string `json:"sessionId"`
	Participants int    `json:"participants"`
}

func (d *Dispatcher) handleConversationJoin(s *session.Session, r protocol.ConversationJoin) {
	name := channel.Conversation(r.SessionID)
	if err := d.router.Join(s, name); err != nil {
		d.fail(s, protocol.KindConversationJoined, "could not join conversation")
		return
	}
	d.metrics.Event(string(r.Kind()), "ok")
	d.logger.Debug("conversation joined", "session_id", s.ID(), "conversation", r.SessionID)
	d.ok(s, protocol.KindConversationJoined, conversationAck{
		SessionID:    r.SessionID,
		Participants: d.router.MemberCount(name),
	})
}

func (d *Dispatcher) handleConversationLeave(s *session.Session, r protocol.ConversationLeave) {
	d.router.Leave(s.ID(), channel.Conversation(r.SessionID))
	d.metrics.Event(string(r.Kind()), "ok")
	d.ok(s, protocol.KindConversationLeft, map[string]string{"sessionId": r.SessionID})
}

// ChatMessage is the data of a conversation:message broadcast.
type ChatMessage struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	SenderID       string    `json:"senderId"`
	Message        string    `json:"message"`
	SourceLanguage string    `json:"sourceLanguage"`
	TargetLanguage string    `json:"targetLanguage,omitempty"`
	ClientMsgID    string    `json:"clientMsgId,omitempty"`
	Moderated      bool      `json:"moderated,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// handleConversationMessage fans a message out to the other members of the
// conversation. The sender gets nothing back on success.
func (d *Dispatcher) handleConversationMessage(s *session.Session, r protocol.ConversationMessage) {
	name := channel.Conversation(r.SessionID)
	if !d.router.IsMember(s.ID(), name) {
		d.metrics.Event(string(r.Kind()), "forbidden")
		d.fail(s, protocol.KindConversationMessage, "join the conversation before sending messages")
		return
	}

	userID := s.Identity().UserID
	if r.ClientMsgID != "" && d.dedupe.Seen(userID+"\x00"+r.SessionID+"\x00"+r.ClientMsgID) {
		d.metrics.Event(string(r.Kind()), "duplicate")
		d.logger.Debug("duplicate conversation message dropped",
			"session_id", s.ID(), "conversation", r.SessionID, "client_msg_id", r.ClientMsgID)
		return
	}

	text, moderated := d.moderator.Censor(r.Message)
	if moderated {
		d.logger.Info("conversation message moderated", "user_id", userID, "conversation", r.SessionID)
	}
	source := r.SourceLanguage
	if source == "" || source == "auto" {
		source = detectLanguage(r.Message)
	}

	msg := ChatMessage{
		ID:             ulid.Make().String(),
		SessionID:      r.SessionID,
		SenderID:       userID,
		Message:        text,
		SourceLanguage: source,
		TargetLanguage: r.TargetLanguage,
		ClientMsgID:    r.ClientMsgID,
		Moderated:      moderated,
		Timestamp:      d.now().UTC(),
	}
	env, err := protocol.NewEnvelope(protocol.KindConversationMessage, protocol.Success(msg))
	if err != nil {
		d.fail(s, protocol.KindConversationMessage, msgInternal)
		return
	}
	delivered := d.router.Broadcast(name, env, s.ID())
	d.metrics.Event(string(r.Kind()), "ok")
	d.logger.Debug("conversation message", "conversation", r.SessionID, "message_id", msg.ID, "delivered", delivered)
}
