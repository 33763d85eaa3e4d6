// Package judge talks to LLM backends that rate chunk quality.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dgallion1/chunkgate/internal/record"
)

// Request is one chunk to be rated.
type Request struct {
	Content string
	Context string // short description of where the chunk came from
}

// Response is a parsed rating.
type Response struct {
	Quality    record.Quality `json:"quality"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason,omitempty"`
}

// Judge rates one chunk per call. Implementations make a single attempt;
// retry and budget accounting belong to the caller.
type Judge interface {
	Judge(ctx context.Context, req Request) (Response, error)
	Name() string
}

// ErrMalformed is returned when the model's answer cannot be parsed into a rating.
var ErrMalformed = errors.New("malformed judge response")

// Config selects and configures a backend.
type Config struct {
	Provider    string // ollama, openai, anthropic
	Model       string
	Endpoint    string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
}

// New builds the backend named by cfg.Provider.
func New(cfg Config) (Judge, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		return NewOllama(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "anthropic", "claude":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic judge requires an api key")
		}
		return NewAnthropic(cfg), nil
	}
	return nil, fmt.Errorf("unknown judge provider %q", cfg.Provider)
}

var (
	codeBlockRe  = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	jsonObjectRe = regexp.MustCompile(`(?s)\{[^{}]*\}`)
)

// Parse extracts a rating from raw model output. The first flat JSON object in
// the text is used; "low" and "reject" are accepted as aliases for fair and poor.
func Parse(text string) (Response, error) {
	text = stripCodeBlock(text)
	obj := jsonObjectRe.FindString(text)
	if obj == "" {
		return Response{}, fmt.Errorf("%w: no json object in %q", ErrMalformed, truncate(text, 200))
	}

	var raw struct {
		Quality    string   `json:"quality"`
		Confidence *float64 `json:"confidence"`
		Reason     string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	q := record.Quality(strings.ToLower(strings.TrimSpace(raw.Quality)))
	switch q {
	case "low":
		q = record.QualityFair
	case "reject":
		q = record.QualityPoor
	}
	if !q.Valid() {
		return Response{}, fmt.Errorf("%w: unknown quality %q", ErrMalformed, raw.Quality)
	}

	conf := 0.5
	if raw.Confidence != nil {
		conf = *raw.Confidence
	}
	if conf < 0 || conf > 1 {
		return Response{}, fmt.Errorf("%w: confidence %v out of range", ErrMalformed, conf)
	}
	return Response{Quality: q, Confidence: conf, Reason: raw.Reason}, nil
}

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}
