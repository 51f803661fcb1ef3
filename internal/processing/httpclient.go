// ABOUTME: Backend that calls the Vision AI service REST API under /api/v1
// ABOUTME: Binary payloads travel as data URLs; navigation is answered locally

package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPBackend talks to the AI service over JSON/HTTP.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPBackend creates a client for the service rooted at baseURL.
// A nil client uses http.DefaultClient; timeouts come from the caller's ctx.
func NewHTTPBackend(baseURL, apiKey string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// apiError is the error body FastAPI returns.
type apiError struct {
	Detail any `json:"detail"`
}

func (h *HTTPBackend) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		return fmt.Errorf("%w: %s returned %d: %v", ErrUnavailable, path, resp.StatusCode, apiErr.Detail)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func dataURL(mime string, data []byte) string {
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Translate calls POST /api/v1/translation/translate.
func (h *HTTPBackend) Translate(ctx context.Context, in TranslationInput) (*Translation, error) {
	req := struct {
		Text       string `json:"text"`
		SourceLang string `json:"source_lang"`
		TargetLang string `json:"target_lang"`
	}{in.Text, in.SourceLanguage, in.TargetLanguage}
	var resp struct {
		TranslatedText string  `json:"translated_text"`
		SourceLang     string  `json:"source_lang"`
		TargetLang     string  `json:"target_lang"`
		Confidence     float64 `json:"confidence"`
		ModelUsed      string  `json:"model_used"`
	}
	if err := h.post(ctx, "/api/v1/translation/translate", req, &resp); err != nil {
		return nil, err
	}
	return &Translation{
		OriginalText:   in.Text,
		TranslatedText: resp.TranslatedText,
		SourceLanguage: orDefault(resp.SourceLang, in.SourceLanguage),
		TargetLanguage: orDefault(resp.TargetLang, in.TargetLanguage),
		Confidence:     resp.Confidence,
		Model:          resp.ModelUsed,
	}, nil
}

// Transcribe calls POST /api/v1/speech/speech-to-text.
func (h *HTTPBackend) Transcribe(ctx context.Context, in AudioInput) (*Transcript, error) {
	req := struct {
		AudioURL string `json:"audio_url"`
		Language string `json:"language"`
	}{dataURL(in.MIME, in.Audio), orDefault(in.Language, "auto")}
	var resp struct {
		Text       string  `json:"text"`
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
		ModelUsed  string  `json:"model_used"`
	}
	if err := h.post(ctx, "/api/v1/speech/speech-to-text", req, &resp); err != nil {
		return nil, err
	}
	return &Transcript{Text: resp.Text, Language: resp.Language, Confidence: resp.Confidence, Model: resp.ModelUsed}, nil
}

// ExtractText calls POST /api/v1/ocr/extract-text.
func (h *HTTPBackend) ExtractText(ctx context.Context, in ImageInput) (*OCRText, error) {
	req := struct {
		ImageURL string `json:"image_url"`
		Language string `json:"language"`
	}{dataURL(in.MIME, in.Image), orDefault(in.Language, "auto")}
	var resp struct {
		Text          string  `json:"text"`
		Language      string  `json:"language"`
		Confidence    float64 `json:"confidence"`
		BoundingBoxes []struct {
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
			BBox       []int   `json:"bbox"`
		} `json:"bounding_boxes"`
		ModelUsed string `json:"model_used"`
	}
	if err := h.post(ctx, "/api/v1/ocr/extract-text", req, &resp); err != nil {
		return nil, err
	}
	out := &OCRText{
		Text:       resp.Text,
		Language:   resp.Language,
		Confidence: resp.Confidence,
		Blocks:     make([]TextBlock, 0, len(resp.BoundingBoxes)),
		Model:      resp.ModelUsed,
	}
	for _, b := range resp.BoundingBoxes {
		out.Blocks = append(out.Blocks, TextBlock{Text: b.Text, Confidence: b.Confidence, BoundingBox: b.BBox})
	}
	return out, nil
}

// DescribeScene calls POST /api/v1/accessibility/scene-description. The
// service still speaks the low/medium/high detail levels.
func (h *HTTPBackend) DescribeScene(ctx context.Context, in ImageInput) (*SceneDescription, error) {
	level := NormalizeDetailLevel(in.DetailLevel)
	legacy := map[string]string{"basic": "low", "detailed": "medium", "comprehensive": "high"}[level]

	req := struct {
		ImageURL    string `json:"image_url"`
		DetailLevel string `json:"detail_level"`
	}{dataURL(in.MIME, in.Image), legacy}
	var resp struct {
		Description string  `json:"description"`
		Confidence  float64 `json:"confidence"`
		Objects     []struct {
			Name       string  `json:"name"`
			Category   string  `json:"category"`
			Confidence float64 `json:"confidence"`
		} `json:"objects"`
	}
	if err := h.post(ctx, "/api/v1/accessibility/scene-description", req, &resp); err != nil {
		return nil, err
	}
	out := &SceneDescription{
		Description: resp.Description,
		DetailLevel: level,
		Confidence:  resp.Confidence,
		Objects:     make([]DetectedObject, 0, len(resp.Objects)),
		Model:       "vision-ai",
	}
	for _, o := range resp.Objects {
		out.Objects = append(out.Objects, DetectedObject{Name: o.Name, Category: o.Category, Confidence: o.Confidence})
	}
	return out, nil
}

// Navigate is not exposed by the AI service; routes are generated locally.
func (h *HTTPBackend) Navigate(ctx context.Context, in NavigationInput) (*Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return simulatedRoute(in), nil
}

