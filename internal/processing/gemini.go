// ABOUTME: Backend built on the Gemini API via google.golang.org/genai
// ABOUTME: Text, image, and audio prompts all go through Models.GenerateContent

package processing

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiBackend implements Adapter with a genai client.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a backend for the Gemini developer API.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (g *GeminiBackend) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", backendError(ctx, "gemini", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no text", ErrUnavailable)
	}
	return text, nil
}

func (g *GeminiBackend) withMedia(ctx context.Context, prompt string, data []byte, mime string) (string, error) {
	return g.generate(ctx, []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(data, mime),
		}, genai.RoleUser),
	})
}

func (g *GeminiBackend) Translate(ctx context.Context, in TranslationInput) (*Translation, error) {
	prompt := fmt.Sprintf(translationPrompt, orDefault(in.SourceLanguage, "the detected language"), in.TargetLanguage)
	text, err := g.generate(ctx, genai.Text(prompt+"\n\n"+in.Text))
	if err != nil {
		return nil, err
	}
	return &Translation{
		OriginalText:   in.Text,
		TranslatedText: text,
		SourceLanguage: in.SourceLanguage,
		TargetLanguage: in.TargetLanguage,
		Confidence:     0.9,
		Model:          g.model,
	}, nil
}

func (g *GeminiBackend) Transcribe(ctx context.Context, in AudioInput) (*Transcript, error) {
	prompt := "Transcribe this audio verbatim. Reply with the transcript only."
	if in.Language != "" && in.Language != "auto" {
		prompt += " The speaker uses language code " + in.Language + "."
	}
	text, err := g.withMedia(ctx, prompt, in.Audio, in.MIME)
	if err != nil {
		return nil, err
	}
	return &Transcript{Text: text, Language: orDefault(in.Language, "auto"), Confidence: 0.9, Model: g.model}, nil
}

func (g *GeminiBackend) ExtractText(ctx context.Context, in ImageInput) (*OCRText, error) {
	text, err := g.withMedia(ctx, ocrPrompt, in.Image, in.MIME)
	if err != nil {
		return nil, err
	}
	return &OCRText{
		Text:       text,
		Language:   orDefault(in.Language, "auto"),
		Confidence: 0.9,
		Blocks:     []TextBlock{{Text: text, Confidence: 0.9}},
		Model:      g.model,
	}, nil
}

func (g *GeminiBackend) DescribeScene(ctx context.Context, in ImageInput) (*SceneDescription, error) {
	level := NormalizeDetailLevel(in.DetailLevel)
	text, err := g.withMedia(ctx, scenePrompt(level), in.Image, in.MIME)
	if err != nil {
		return nil, err
	}
	return &SceneDescription{
		Description: text,
		DetailLevel: level,
		Objects:     []DetectedObject{},
		Confidence:  0.9,
		Model:       g.model,
	}, nil
}

// Navigate has no model-backed implementation; routes are generated locally.
func (g *GeminiBackend) Navigate(ctx context.Context, in NavigationInput) (*Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return simulatedRoute(in), nil
}
