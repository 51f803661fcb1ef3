// ABOUTME: Backend built on the OpenAI API: chat completions for text and vision, Whisper for speech
// ABOUTME: Works against any OpenAI-compatible endpoint selected by base_url

package processing

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultTranscribeModel = "whisper-1"
	translationPrompt      = "You are a professional translator. Translate the user's text from %s to %s. Reply with the translation only."
	ocrPrompt              = "Extract every piece of readable text from this image. Reply with the text only, preserving line breaks."
)

// OpenAIBackend implements Adapter with the OpenAI client.
type OpenAIBackend struct {
	client          openai.Client
	model           string
	transcribeModel string
}

// NewOpenAIBackend creates a backend. Empty baseURL uses api.openai.com.
func NewOpenAIBackend(apiKey, baseURL, model, transcribeModel string) *OpenAIBackend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	if transcribeModel == "" {
		transcribeModel = defaultTranscribeModel
	}
	return &OpenAIBackend{
		client:          openai.NewClient(opts...),
		model:           model,
		transcribeModel: transcribeModel,
	}
}

func (o *OpenAIBackend) complete(ctx context.Context, msgs ...openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
	})
	if err != nil {
		return "", backendError(ctx, "openai", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *OpenAIBackend) Translate(ctx context.Context, in TranslationInput) (*Translation, error) {
	text, err := o.complete(ctx,
		openai.SystemMessage(fmt.Sprintf(translationPrompt, orDefault(in.SourceLanguage, "the detected language"), in.TargetLanguage)),
		openai.UserMessage(in.Text),
	)
	if err != nil {
		return nil, err
	}
	return &Translation{
		OriginalText:   in.Text,
		TranslatedText: text,
		SourceLanguage: in.SourceLanguage,
		TargetLanguage: in.TargetLanguage,
		Confidence:     0.9,
		Model:          o.model,
	}, nil
}

func (o *OpenAIBackend) Transcribe(ctx context.Context, in AudioInput) (*Transcript, error) {
	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(o.transcribeModel),
		File:  openai.File(bytes.NewReader(in.Audio), "audio"+extensionFor(in.MIME), in.MIME),
	}
	if in.Language != "" && in.Language != "auto" {
		params.Language = openai.String(in.Language)
	}
	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, backendError(ctx, "openai", err)
	}
	return &Transcript{
		Text:       strings.TrimSpace(resp.Text),
		Language:   orDefault(in.Language, "auto"),
		Confidence: 0.9,
		Model:      o.transcribeModel,
	}, nil
}

func (o *OpenAIBackend) vision(ctx context.Context, prompt string, in ImageInput) (string, error) {
	return o.complete(ctx, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL(in.MIME, in.Image)}),
	}))
}

func (o *OpenAIBackend) ExtractText(ctx context.Context, in ImageInput) (*OCRText, error) {
	text, err := o.vision(ctx, ocrPrompt, in)
	if err != nil {
		return nil, err
	}
	return &OCRText{
		Text:       text,
		Language:   orDefault(in.Language, "auto"),
		Confidence: 0.9,
		Blocks:     []TextBlock{{Text: text, Confidence: 0.9}},
		Model:      o.model,
	}, nil
}

func (o *OpenAIBackend) DescribeScene(ctx context.Context, in ImageInput) (*SceneDescription, error) {
	level := NormalizeDetailLevel(in.DetailLevel)
	text, err := o.vision(ctx, scenePrompt(level), in)
	if err != nil {
		return nil, err
	}
	return &SceneDescription{
		Description: text,
		DetailLevel: level,
		Objects:     []DetectedObject{},
		Confidence:  0.9,
		Model:       o.model,
	}, nil
}

// Navigate has no model-backed implementation; routes are generated locally.
func (o *OpenAIBackend) Navigate(ctx context.Context, in NavigationInput) (*Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return simulatedRoute(in), nil
}

func scenePrompt(level string) string {
	switch level {
	case "basic":
		return "In one short sentence, list the main objects in this image for a blind user."
	case "comprehensive":
		return "Describe this scene in detail for a blind user: objects, their positions, people, lighting, and any hazards."
	default:
		return "Describe this scene for a blind user in two or three sentences, mentioning where the main objects are."
	}
}

// backendError maps a client error to ErrUnavailable unless the caller gave up.
func backendError(ctx context.Context, backend string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, backend, err)
}

func extensionFor(mime string) string {
	switch {
	case strings.Contains(mime, "webm"):
		return ".webm"
	case strings.Contains(mime, "ogg"):
		return ".ogg"
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return ".mp3"
	case strings.Contains(mime, "mp4"), strings.Contains(mime, "m4a"):
		return ".m4a"
	case strings.Contains(mime, "flac"):
		return ".flac"
	default:
		return ".wav"
	}
}
