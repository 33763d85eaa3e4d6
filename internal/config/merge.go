package config

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"slices"
	"strings"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// Strategy names in display order.
var StrategyNames = []string{"fast", "balanced", "high_quality", "expert"}

const (
	DefaultStrategy = "balanced"
	ExpertStrategy  = "expert"
)

// Merge deep-merges layers over defaults, lowest priority first, and decodes
// the result. Unknown keys are errors. Merge does no I/O.
func Merge(defaults Params, layers ...map[string]any) (Params, error) {
	base, err := toMap(defaults)
	if err != nil {
		return Params{}, err
	}
	for _, layer := range layers {
		deepMerge(base, layer)
	}

	data, err := yaml.Marshal(base)
	if err != nil {
		return Params{}, fmt.Errorf("encode merged config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var out Params
	if err := dec.Decode(&out); err != nil {
		return Params{}, fmt.Errorf("decode merged config: %w", err)
	}
	if err := out.Validate(); err != nil {
		return Params{}, fmt.Errorf("invalid config: %w", err)
	}
	return out, nil
}

// Resolve loads the preset and the optional user file, then merges them with
// overrides. Priority: overrides > user file > preset > defaults. The expert
// strategy only contributes its description.
func Resolve(ctx context.Context, strategy, userURL string, overrides map[string]any) (Params, error) {
	if strategy == "" {
		strategy = DefaultStrategy
	}
	preset, err := LoadPreset(strategy)
	if err != nil {
		return Params{}, err
	}
	if strategy == ExpertStrategy {
		preset = map[string]any{"strategy": preset["strategy"]}
	}

	var user map[string]any
	if userURL != "" {
		data, err := afs.New().DownloadWithURL(ctx, userURL)
		if err != nil {
			return Params{}, fmt.Errorf("read config %s: %w", userURL, err)
		}
		if user, err = parseYAML(data); err != nil {
			return Params{}, fmt.Errorf("parse config %s: %w", userURL, err)
		}
	}
	return Merge(Defaults(), preset, user, overrides)
}

// LoadPreset returns the raw layer for a named strategy.
func LoadPreset(name string) (map[string]any, error) {
	if !slices.Contains(StrategyNames, name) {
		return nil, fmt.Errorf("invalid strategy %q, available: %s", name, strings.Join(StrategyNames, ", "))
	}
	data, err := presetFS.ReadFile("presets/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("read preset %s: %w", name, err)
	}
	return parseYAML(data)
}

// Strategies lists the built-in presets.
func Strategies() []StrategyInfo {
	var out []StrategyInfo
	for _, name := range StrategyNames {
		layer, err := LoadPreset(name)
		if err != nil {
			continue
		}
		p, err := Merge(Defaults(), map[string]any{"strategy": layer["strategy"]})
		if err != nil {
			continue
		}
		out = append(out, p.Strategy)
	}
	return out
}

// SetPath sets a dotted key such as "chunk.size" in a nested layer.
func SetPath(layer map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	m := layer
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

func parseYAML(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func toMap(p Params) (map[string]any, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	return parseYAML(data)
}

// deepMerge copies src into dst, recursing where both sides hold maps.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		sv, srcIsMap := v.(map[string]any)
		dv, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			deepMerge(dv, sv)
			continue
		}
		if srcIsMap {
			cp := map[string]any{}
			deepMerge(cp, sv)
			dst[k] = cp
			continue
		}
		dst[k] = v
	}
}
