package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaURL = "http://localhost:11434"
	generateEndpoint = "/api/generate"
)

// Ollama calls a local Ollama server's generate endpoint.
type Ollama struct {
	BaseURL     string
	Model       string
	Temperature float64
	HTTPClient  *http.Client
}

func NewOllama(cfg Config) *Ollama {
	base := strings.TrimRight(cfg.Endpoint, "/")
	if base == "" {
		base = defaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = "qwen:7b"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Ollama{
		BaseURL:     base,
		Model:       model,
		Temperature: cfg.Temperature,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (o *Ollama) Name() string { return "ollama" }

// Judge asks the model for a rating.
func (o *Ollama) Judge(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(generateRequest{
		Model:   o.Model,
		Prompt:  BuildPrompt(req),
		Format:  "json",
		Options: map[string]any{"temperature": o.Temperature},
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+generateEndpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.HTTPClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return Response{}, fmt.Errorf("send request: %w", err)
		}
		// Connection-level failures are usually a restarting server.
		return Response{}, &RetryableError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Response{}, &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("ollama API error: %s", strings.TrimSpace(string(respBody)))
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return Response{}, fmt.Errorf("ollama API error: %s", out.Error)
	}
	return Parse(out.Response)
}
