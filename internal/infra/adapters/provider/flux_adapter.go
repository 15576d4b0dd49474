package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"mayagen/internal/domain"
	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.ImageProvider = (*FluxAdapter)(nil)

// InputReader loads a previously uploaded source image for edit jobs.
type InputReader interface {
	ReadInput(path string) ([]byte, error)
}

// FluxAdapter talks to an Azure AI Foundry deployment of FLUX.1-Kontext-pro.
// Text-to-image goes through the OpenAI-compatible images endpoint; edits
// go through the Black Forest Labs provider route, which takes the source
// image base64-encoded in the JSON body:
//
//	POST {bflEndpoint}/providers/blackforestlabs/v1/flux-kontext-pro?api-version=preview
type FluxAdapter struct {
	client       openai.Client
	apiKey       string
	editURL      string
	defaultModel string
	inputs       InputReader
	httpClient   *http.Client
}

func NewFluxAdapter(apiKey, openaiEndpoint, bflEndpoint, defaultModel string, inputs InputReader) (*FluxAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("flux api key empty")
	}
	if defaultModel == "" {
		defaultModel = "FLUX.1-Kontext-pro"
	}
	return &FluxAdapter{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(openaiEndpoint),
		),
		apiKey:       apiKey,
		editURL:      strings.TrimRight(bflEndpoint, "/") + "/providers/blackforestlabs/v1/flux-kontext-pro",
		defaultModel: defaultModel,
		inputs:       inputs,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

func (f *FluxAdapter) Name() string { return "flux" }

func (f *FluxAdapter) Render(ctx context.Context, job *model.Job) ([]byte, error) {
	if job.Kind == model.JobKindImageEdit {
		return f.edit(ctx, job)
	}
	return f.generate(ctx, job)
}

func (f *FluxAdapter) generate(ctx context.Context, job *model.Job) ([]byte, error) {
	modelName := job.Model
	if modelName == "" {
		modelName = f.defaultModel
	}
	res, err := f.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: fullPrompt(job),
		Model:  openai.ImageModel(modelName),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize(fmt.Sprintf("%dx%d", job.Width, job.Height)),
	})
	if err != nil {
		return nil, domain.NewProviderError(f.Name(), "images.generate", err)
	}
	if len(res.Data) == 0 {
		return nil, domain.NewProviderError(f.Name(), "no image data in response", nil)
	}
	img := res.Data[0]
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, domain.NewProviderError(f.Name(), "decode b64_json", err)
		}
		return data, nil
	}
	if img.URL != "" {
		data, err := f.download(ctx, img.URL)
		if err != nil {
			return nil, domain.NewProviderError(f.Name(), "download image", err)
		}
		return data, nil
	}
	return nil, domain.NewProviderError(f.Name(), "response carried neither b64_json nor url", nil)
}

func (f *FluxAdapter) edit(ctx context.Context, job *model.Job) ([]byte, error) {
	if job.InputImagePath == "" {
		return nil, domain.NewProviderError(f.Name(), "edit job has no input image", nil)
	}
	source, err := f.inputs.ReadInput(job.InputImagePath)
	if err != nil {
		return nil, domain.NewProviderError(f.Name(), "read input image", err)
	}
	modelName := job.Model
	if modelName == "" {
		modelName = f.defaultModel
	}

	body, err := json.Marshal(map[string]interface{}{
		"prompt":        fullPrompt(job),
		"input_image":   base64.StdEncoding.EncodeToString(source),
		"model":         strings.ToLower(modelName),
		"output_format": "png",
		"width":         job.Width,
		"height":        job.Height,
	})
	if err != nil {
		return nil, domain.NewProviderError(f.Name(), "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.editURL+"?api-version=preview", bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewProviderError(f.Name(), "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewProviderError(f.Name(), "edit request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, domain.NewProviderError(f.Name(),
			fmt.Sprintf("edit http %d: %s", resp.StatusCode, snippet), nil)
	}

	var payload struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.NewProviderError(f.Name(), "decode response", err)
	}
	if len(payload.Data) == 0 {
		return nil, domain.NewProviderError(f.Name(), "no image data in response", nil)
	}
	if payload.Data[0].B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(payload.Data[0].B64JSON)
		if err != nil {
			return nil, domain.NewProviderError(f.Name(), "decode b64_json", err)
		}
		return data, nil
	}
	if payload.Data[0].URL != "" {
		data, err := f.download(ctx, payload.Data[0].URL)
		if err != nil {
			return nil, domain.NewProviderError(f.Name(), "download image", err)
		}
		return data, nil
	}
	return nil, domain.NewProviderError(f.Name(), "response carried neither b64_json nor url", nil)
}

func (f *FluxAdapter) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d fetching image url", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// fullPrompt folds the negative prompt into the positive one for providers
// without a dedicated negative input.
func fullPrompt(job *model.Job) string {
	if job.NegativePrompt == "" {
		return job.Prompt
	}
	return job.Prompt + ". Avoid: " + job.NegativePrompt
}
