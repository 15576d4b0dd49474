package provider

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"mayagen/internal/domain"
	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.ImageProvider = (*GeminiAdapter)(nil)

// GeminiAdapter renders through Google's Imagen models via the official
// genai SDK.
type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
}

func NewGeminiAdapter(ctx context.Context, apiKey, defaultModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "imagen-3.0-generate-002"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) Render(ctx context.Context, job *model.Job) ([]byte, error) {
	if job.Kind == model.JobKindImageEdit {
		return nil, domain.NewProviderError(g.Name(), "image editing not supported", nil)
	}
	modelName := job.Model
	if modelName == "" {
		modelName = g.defaultModel
	}

	resp, err := g.client.Models.GenerateImages(ctx, modelName, fullPrompt(job),
		&genai.GenerateImagesConfig{
			NumberOfImages: 1,
			OutputMIMEType: "image/png",
			AspectRatio:    aspectRatio(job.Width, job.Height),
			NegativePrompt: job.NegativePrompt,
		})
	if err != nil {
		return nil, domain.NewProviderError(g.Name(), "generate images", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, domain.NewProviderError(g.Name(), "no image in response", nil)
	}
	return resp.GeneratedImages[0].Image.ImageBytes, nil
}

// aspectRatio maps pixel dimensions onto the closest ratio the API accepts.
func aspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return "1:1"
	}
	r := float64(width) / float64(height)
	switch {
	case r > 1.55:
		return "16:9"
	case r > 1.15:
		return "4:3"
	case r > 0.87:
		return "1:1"
	case r > 0.64:
		return "3:4"
	default:
		return "9:16"
	}
}
