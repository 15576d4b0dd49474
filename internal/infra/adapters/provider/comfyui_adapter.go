package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"

	"mayagen/internal/domain"
	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.ImageProvider = (*ComfyUIAdapter)(nil)

// ComfyUIAdapter renders through a local ComfyUI server. A workflow graph
// is loaded from disk per model, the prompt and resolution are injected
// into its nodes, and the job is queued over ComfyUI's HTTP API:
//
//	POST /prompt                -> {"prompt_id": ...}
//	GET  /history/{prompt_id}   -> outputs once execution finishes
//	GET  /view?filename=...     -> image bytes
type ComfyUIAdapter struct {
	serverAddress string // host:port, no scheme
	workflows     map[string]string
	clientID      string
	pollInterval  time.Duration
	timeout       time.Duration
	client        *http.Client
}

func NewComfyUIAdapter(serverAddress string, workflows map[string]string, timeout time.Duration) (*ComfyUIAdapter, error) {
	if serverAddress == "" {
		return nil, errors.New("comfyui server address empty")
	}
	if len(workflows) == 0 {
		return nil, errors.New("comfyui: no workflow files configured")
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ComfyUIAdapter{
		serverAddress: serverAddress,
		workflows:     workflows,
		clientID:      uuid.NewString(),
		pollInterval:  time.Second,
		timeout:       timeout,
		client:        &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *ComfyUIAdapter) Name() string { return "comfyui" }

type comfyNode struct {
	ClassType string                 `json:"class_type"`
	Inputs    map[string]interface{} `json:"inputs"`
	Meta      json.RawMessage        `json:"_meta,omitempty"`
}

func (c *ComfyUIAdapter) Render(ctx context.Context, job *model.Job) ([]byte, error) {
	if job.Kind == model.JobKindImageEdit {
		return nil, domain.NewProviderError(c.Name(), "image editing not supported", nil)
	}

	workflow, err := c.loadWorkflow(job.Model)
	if err != nil {
		return nil, domain.NewProviderError(c.Name(), "load workflow", err)
	}
	injectPrompt(workflow, job.Prompt, job.NegativePrompt)
	injectResolution(workflow, job.Width, job.Height)

	promptID, err := c.queuePrompt(ctx, workflow)
	if err != nil {
		return nil, domain.NewProviderError(c.Name(), "queue prompt", err)
	}

	outputs, err := c.waitForOutputs(ctx, promptID)
	if err != nil {
		return nil, domain.NewProviderError(c.Name(), "wait for execution", err)
	}

	data, err := c.fetchFirstImage(ctx, outputs)
	if err != nil {
		return nil, domain.NewProviderError(c.Name(), "fetch output image", err)
	}
	return data, nil
}

func (c *ComfyUIAdapter) loadWorkflow(modelName string) (map[string]*comfyNode, error) {
	path, ok := c.workflows[modelName]
	if !ok {
		path, ok = c.workflows["default"]
		if !ok {
			return nil, fmt.Errorf("no workflow for model %q", modelName)
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var workflow map[string]*comfyNode
	if err := json.Unmarshal(raw, &workflow); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}
	return workflow, nil
}

// injectPrompt replaces the text of the first positive CLIPTextEncode node.
// When a negative prompt is present and the graph carries a second encode
// node, it goes there.
func injectPrompt(workflow map[string]*comfyNode, prompt, negative string) {
	first := true
	for _, node := range workflow {
		if node.ClassType != "CLIPTextEncode" {
			continue
		}
		if first {
			node.Inputs["text"] = prompt
			first = false
			continue
		}
		if negative != "" {
			node.Inputs["text"] = negative
		}
		return
	}
}

func injectResolution(workflow map[string]*comfyNode, width, height int) {
	for _, node := range workflow {
		if node.ClassType == "EmptyLatentImage" {
			node.Inputs["width"] = width
			node.Inputs["height"] = height
			return
		}
	}
}

func (c *ComfyUIAdapter) queuePrompt(ctx context.Context, workflow map[string]*comfyNode) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"prompt":    workflow,
		"client_id": c.clientID,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://%s/prompt", c.serverAddress), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("comfyui http %d", resp.StatusCode)
	}
	var payload struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.PromptID == "" {
		return "", errors.New("empty prompt_id in response")
	}
	return payload.PromptID, nil
}

type comfyImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type comfyNodeOutput struct {
	Images []comfyImageRef `json:"images"`
}

// waitForOutputs polls /history until the prompt shows up with outputs,
// or the render timeout elapses.
func (c *ComfyUIAdapter) waitForOutputs(ctx context.Context, promptID string) (map[string]comfyNodeOutput, error) {
	deadline := time.Now().Add(c.timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("generation timed out after %s", c.timeout)
		}

		outputs, done, err := c.fetchHistory(ctx, promptID)
		if err != nil {
			return nil, err
		}
		if done {
			return outputs, nil
		}
	}
}

func (c *ComfyUIAdapter) fetchHistory(ctx context.Context, promptID string) (map[string]comfyNodeOutput, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("http://%s/history/%s", c.serverAddress, promptID), nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("comfyui history http %d", resp.StatusCode)
	}

	var history map[string]struct {
		Outputs map[string]comfyNodeOutput `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, false, err
	}
	entry, ok := history[promptID]
	if !ok || len(entry.Outputs) == 0 {
		return nil, false, nil
	}
	return entry.Outputs, true, nil
}

func (c *ComfyUIAdapter) fetchFirstImage(ctx context.Context, outputs map[string]comfyNodeOutput) ([]byte, error) {
	for _, out := range outputs {
		for _, img := range out.Images {
			q := url.Values{}
			q.Set("filename", img.Filename)
			q.Set("subfolder", img.Subfolder)
			q.Set("type", img.Type)

			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				fmt.Sprintf("http://%s/view?%s", c.serverAddress, q.Encode()), nil)
			if err != nil {
				return nil, err
			}
			resp, err := c.client.Do(req)
			if err != nil {
				return nil, err
			}
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 300 {
				return nil, fmt.Errorf("comfyui view http %d", resp.StatusCode)
			}
			return data, nil
		}
	}
	return nil, errors.New("no image found in outputs")
}
