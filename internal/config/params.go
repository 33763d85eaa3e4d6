package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgallion1/chunkgate/internal/chunker"
	"github.com/dgallion1/chunkgate/internal/judge"
	"github.com/dgallion1/chunkgate/internal/validate"
)

// StrategyInfo describes the preset a parameter set was built from.
type StrategyInfo struct {
	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Description string `yaml:"description" json:"description"`
}

// ChunkParams configures the chunker and its token counter.
type ChunkParams struct {
	chunker.Config `yaml:",inline"`
	Counter        string `yaml:"counter" json:"counter"`
}

// SemanticParams configures the LLM gate.
type SemanticParams struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	Provider       string  `yaml:"provider" json:"provider"`
	Model          string  `yaml:"model" json:"model"`
	Endpoint       string  `yaml:"endpoint" json:"endpoint"`
	Temperature    float64 `yaml:"temperature" json:"temperature"`
	MaxCalls       int     `yaml:"max_calls" json:"max_calls"`
	OnlyEdge       bool    `yaml:"only_edge" json:"only_edge"`
	Band           float64 `yaml:"band" json:"band"`
	RetryTimes     int     `yaml:"retry_times" json:"retry_times"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// RuntimeParams controls checkpointing and input handling.
type RuntimeParams struct {
	CheckpointEvery  int  `yaml:"checkpoint_every" json:"checkpoint_every"`
	EnableCheckpoint bool `yaml:"enable_checkpoint" json:"enable_checkpoint"`
	Resume           bool `yaml:"resume" json:"resume"`
	Normalize        bool `yaml:"normalize" json:"normalize"`
}

// Params is the immutable, fully resolved parameter set for a run.
type Params struct {
	Strategy StrategyInfo        `yaml:"strategy" json:"strategy"`
	Chunk    ChunkParams         `yaml:"chunk" json:"chunk"`
	Quality  validate.RuleConfig `yaml:"quality" json:"quality"`
	Semantic SemanticParams      `yaml:"semantic" json:"semantic"`
	Runtime  RuntimeParams       `yaml:"runtime" json:"runtime"`
}

// Defaults returns the built-in parameter set every merge starts from.
func Defaults() Params {
	return Params{
		Strategy: StrategyInfo{Name: DefaultStrategy},
		Chunk:    ChunkParams{Config: chunker.DefaultConfig(), Counter: "words"},
		Quality:  validate.DefaultRuleConfig(),
		Semantic: SemanticParams{
			Enabled:        true,
			Provider:       "ollama",
			Model:          "qwen:7b",
			Endpoint:       "http://localhost:11434",
			Temperature:    0.1,
			MaxCalls:       500,
			OnlyEdge:       true,
			Band:           0.1,
			RetryTimes:     judge.DefaultRetries,
			TimeoutSeconds: 60,
		},
		Runtime: RuntimeParams{
			CheckpointEvery:  50,
			EnableCheckpoint: true,
			Resume:           true,
			Normalize:        true,
		},
	}
}

func (p Params) Validate() error {
	var errs []error
	if err := p.Chunk.Config.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("chunk: %w", err))
	}
	if _, err := chunker.CounterFor(p.Chunk.Counter); err != nil {
		errs = append(errs, fmt.Errorf("chunk.counter: %w", err))
	}
	if err := p.Quality.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("quality: %w", err))
	}
	if p.Semantic.Enabled {
		if p.Semantic.Model == "" {
			errs = append(errs, errors.New("semantic.model is required when semantic validation is enabled"))
		}
		if p.Semantic.Endpoint == "" && p.Semantic.Provider == "ollama" {
			errs = append(errs, errors.New("semantic.endpoint is required for the ollama provider"))
		}
		if p.Semantic.MaxCalls < 0 {
			errs = append(errs, errors.New("semantic.max_calls must be non-negative"))
		}
		if p.Semantic.Band < 0 || p.Semantic.Band > 1 {
			errs = append(errs, errors.New("semantic.band must be in [0, 1]"))
		}
		if p.Semantic.TimeoutSeconds <= 0 {
			errs = append(errs, errors.New("semantic.timeout_seconds must be positive"))
		}
	}
	if p.Runtime.CheckpointEvery <= 0 {
		errs = append(errs, errors.New("runtime.checkpoint_every must be positive"))
	}
	return errors.Join(errs...)
}

// JudgeConfig builds the judge client settings.
func (p Params) JudgeConfig(apiKey string) judge.Config {
	return judge.Config{
		Provider:    p.Semantic.Provider,
		Model:       p.Semantic.Model,
		Endpoint:    p.Semantic.Endpoint,
		APIKey:      apiKey,
		Temperature: p.Semantic.Temperature,
		Timeout:     p.timeout(),
	}
}

// SemanticConfig builds the semantic gate settings.
func (p Params) SemanticConfig() validate.SemanticConfig {
	return validate.SemanticConfig{
		Enabled:          p.Semantic.Enabled,
		OnlyEdge:         p.Semantic.OnlyEdge,
		Band:             p.Semantic.Band,
		RequiredMinScore: p.Quality.RequiredMinScore,
		Retries:          p.Semantic.RetryTimes,
		Timeout:          p.timeout(),
	}
}

func (p Params) timeout() time.Duration {
	return time.Duration(p.Semantic.TimeoutSeconds) * time.Second
}
