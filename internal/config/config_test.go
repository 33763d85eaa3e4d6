package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("WORKER_COUNT", "-1")
	t.Setenv("JOB_TTL", "90m")
	cfg := Load()
	require.Equal(t, "8090", cfg.Port)
	require.Equal(t, 2, cfg.WorkerCount)
	require.Equal(t, 90*time.Minute, cfg.JobTTL)
	require.True(t, cfg.PDFFallbackPdftotext)
}

func TestProviderKey(t *testing.T) {
	cfg := Config{AnthropicAPIKey: "a", OpenAIAPIKey: "o"}
	require.Equal(t, "a", cfg.ProviderKey("anthropic"))
	require.Equal(t, "o", cfg.ProviderKey("OpenAI"))
	require.Empty(t, cfg.ProviderKey("ollama"))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestMergePriority(t *testing.T) {
	preset := map[string]any{"chunk": map[string]any{"size": 1000, "overlap": 100}}
	user := map[string]any{"chunk": map[string]any{"size": 900}}
	cli := map[string]any{}
	SetPath(cli, "chunk.size", 700)

	p, err := Merge(Defaults(), preset, user, cli)
	require.NoError(t, err)
	require.Equal(t, 700, p.Chunk.Size)
	require.Equal(t, 100, p.Chunk.Overlap)
	require.Equal(t, Defaults().Chunk.MinChunkSize, p.Chunk.MinChunkSize)
	require.Equal(t, Defaults().Quality, p.Quality)
}

func TestMergeDoesNotMutateLayers(t *testing.T) {
	user := map[string]any{"quality": map[string]any{"min_length": 10}}
	_, err := Merge(Defaults(), user)
	require.NoError(t, err)
	_, err = Merge(Defaults(), map[string]any{"quality": map[string]any{"max_noise_ratio": 0.5}})
	require.NoError(t, err)
	require.Len(t, user["quality"], 1)
}

func TestMergeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		layer map[string]any
	}{
		{"overlap not below size", map[string]any{"chunk": map[string]any{"size": 100, "overlap": 100}}},
		{"noise ratio above one", map[string]any{"quality": map[string]any{"max_noise_ratio": 1.5}}},
		{"missing model", map[string]any{"semantic": map[string]any{"enabled": true, "model": ""}}},
		{"unknown key", map[string]any{"chunk": map[string]any{"sise": 100}}},
		{"unknown counter", map[string]any{"chunk": map[string]any{"counter": "bytes"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(Defaults(), tt.layer)
			require.Error(t, err)
		})
	}
}

func TestResolvePresets(t *testing.T) {
	ctx := context.Background()

	p, err := Resolve(ctx, "", "", nil)
	require.NoError(t, err)
	require.Equal(t, "balanced", p.Strategy.Name)
	require.True(t, p.Semantic.OnlyEdge)

	p, err = Resolve(ctx, "fast", "", nil)
	require.NoError(t, err)
	require.False(t, p.Semantic.Enabled)
	require.Equal(t, 1000, p.Chunk.Size)

	p, err = Resolve(ctx, "high_quality", "", nil)
	require.NoError(t, err)
	require.False(t, p.Semantic.OnlyEdge)

	_, err = Resolve(ctx, "turbo", "", nil)
	require.Error(t, err)
}

func TestResolveUserFileAndExpert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk:\n  size: 400\n  overlap: 40\nsemantic:\n  enabled: false\n"), 0o644))
	ctx := context.Background()

	p, err := Resolve(ctx, "high_quality", path, map[string]any{"quality": map[string]any{"min_length": 50}})
	require.NoError(t, err)
	require.Equal(t, 400, p.Chunk.Size)
	require.False(t, p.Semantic.Enabled)
	require.Equal(t, 50, p.Quality.MinLength)
	require.Equal(t, 0.2, p.Quality.MaxNoiseRatio) // from the preset

	p, err = Resolve(ctx, "expert", path, nil)
	require.NoError(t, err)
	require.Equal(t, "expert", p.Strategy.Name)
	require.Equal(t, Defaults().Quality.MaxNoiseRatio, p.Quality.MaxNoiseRatio)

	_, err = Resolve(ctx, "balanced", filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestStrategies(t *testing.T) {
	got := Strategies()
	require.Len(t, got, len(StrategyNames))
	for i, s := range got {
		require.Equal(t, StrategyNames[i], s.Name)
		require.NotEmpty(t, s.Description)
	}
}

func TestSemanticConfigUsesQualityThreshold(t *testing.T) {
	p := Defaults()
	p.Quality.RequiredMinScore = 0.7
	sc := p.SemanticConfig()
	require.Equal(t, 0.7, sc.RequiredMinScore)
	require.Equal(t, 60*time.Second, sc.Timeout)
	require.Equal(t, "ollama", p.JudgeConfig("").Provider)
}
