// Package gemini wraps the Google GenAI SDK for the pipeline's three call
// shapes: schema-constrained JSON generation, free-form text generation, and
// a multi-turn image-generation chat session.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"instaroom/internal/config"
)

// ErrNoImage is returned by an image session turn that produced no image part.
var ErrNoImage = errors.New("gemini: response contained no image")

// Part is one piece of model input: text, or raw image bytes with a MIME type.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an inline image part. Empty mimeType defaults to JPEG,
// which is what Instagram CDN URLs serve.
func ImagePart(data []byte, mimeType string) Part {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return Part{Data: data, MIMEType: mimeType}
}

// StructuredCall is a schema-constrained JSON generation request. The decoded
// response is written into Out, which must be a pointer.
type StructuredCall struct {
	Parts       []Part
	Schema      *genai.Schema
	Temperature float32
	Out         any
}

// TextCall is a free-form text generation request.
type TextCall struct {
	Parts       []Part
	Temperature float32
}

// ImageSession is one continuous multi-turn exchange with the image model.
// Later turns see the context established by earlier turns.
type ImageSession interface {
	Send(ctx context.Context, parts []Part) ([]byte, error)
}

// Client is the process-wide Gemini handle. Construct once and inject;
// there is no package-level singleton.
type Client struct {
	gc         *genai.Client
	flashModel string
	imageModel string
	log        *zap.Logger
}

// NewClient creates a Gemini client. A missing API key is a configuration
// error and fails here, at the point of first use.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is not set")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Client{
		gc:         gc,
		flashModel: cfg.FlashModel,
		imageModel: cfg.ImageGenModel,
		log:        log.Named("gemini"),
	}, nil
}

// GenerateJSON runs a structured-output call against the flash model and
// decodes the JSON response into call.Out.
func (c *Client) GenerateJSON(ctx context.Context, call StructuredCall) error {
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: toGenaiParts(call.Parts),
	}}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(call.Temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   call.Schema,
	}

	resp, err := c.gc.Models.GenerateContent(ctx, c.flashModel, contents, cfg)
	if err != nil {
		return fmt.Errorf("gemini: generate content: %w", err)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return errors.New("gemini: empty structured response")
	}

	if err := json.Unmarshal([]byte(raw), call.Out); err != nil {
		c.log.Warn("structured response did not match schema",
			zap.Int("response_len", len(raw)), zap.Error(err))
		return fmt.Errorf("gemini: decode structured response: %w", err)
	}
	return nil
}

// GenerateText runs a free-form text call against the flash model.
func (c *Client) GenerateText(ctx context.Context, call TextCall) (string, error) {
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: toGenaiParts(call.Parts),
	}}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(call.Temperature),
	}

	resp, err := c.gc.Models.GenerateContent(ctx, c.flashModel, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return "", errors.New("gemini: empty text response")
	}
	return raw, nil
}

// NewImageSession opens a multi-turn chat against the image model. Both
// viewpoints of one room must go through the same session so the model keeps
// the room's geometry across the 180° turn.
func (c *Client) NewImageSession(ctx context.Context) (ImageSession, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: "16:9",
		},
	}

	chat, err := c.gc.Chats.Create(ctx, c.imageModel, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: create image chat: %w", err)
	}
	return &chatSession{chat: chat, log: c.log.Named("imagechat")}, nil
}

type chatSession struct {
	chat *genai.Chat
	log  *zap.Logger
}

// Send delivers one turn and extracts the first inline image from the reply.
func (s *chatSession) Send(ctx context.Context, parts []Part) ([]byte, error) {
	converted := make([]genai.Part, 0, len(parts))
	for _, p := range toGenaiParts(parts) {
		converted = append(converted, *p)
	}

	resp, err := s.chat.SendMessage(ctx, converted...)
	if err != nil {
		return nil, fmt.Errorf("gemini: image chat turn: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		s.log.Warn("image chat turn returned no candidates")
		return nil, ErrNoImage
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}

	s.log.Warn("image chat turn returned no image part",
		zap.Int("parts", len(resp.Candidates[0].Content.Parts)))
	return nil, ErrNoImage
}

func toGenaiParts(parts []Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if len(p.Data) > 0 {
			out = append(out, &genai.Part{
				InlineData: &genai.Blob{MIMEType: p.MIMEType, Data: p.Data},
			})
			continue
		}
		out = append(out, &genai.Part{Text: p.Text})
	}
	return out
}
