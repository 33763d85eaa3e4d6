package validate

import (
	"strings"
	"testing"

	"github.com/dgallion1/chunkgate/internal/record"
)

func cand(content string) record.Candidate {
	return record.Candidate{DocumentID: "doc", PageStart: 1, PageEnd: 1, Content: content}
}

func prose(n int) string {
	return strings.Repeat("plain words make good text ", n)
}

func TestRuleValidator(t *testing.T) {
	v := NewRuleValidator(RuleConfig{MinLength: 50, MaxNoiseRatio: 0.3, RequiredMinScore: 0.6})

	tests := []struct {
		name       string
		content    string
		seq        int
		prevHash   uint64
		wantAccept bool
		wantReason record.Reason
	}{
		{"clean prose", prose(5), 0, 0, true, ""},
		{"too short", "short text", 0, 0, false, record.ReasonLength},
		{"ninety percent noise", strings.Repeat("a#$%^&*()!@", 10), 0, 0, false, record.ReasonNoise},
		{"whitespace only", strings.Repeat(" \n", 40), 0, 0, false, record.ReasonStructural},
		{"duplicate of previous", prose(5), 1, record.ContentHash(prose(5)), false, record.ReasonStructural},
		{"first chunk has no previous", prose(5), 0, record.ContentHash(prose(5)), true, ""},
		{"zero hash is still a hash", prose(5), 3, 0, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cand(tt.content)
			c.SequenceIndex = tt.seq
			got := v.Validate(c, tt.prevHash)
			if got.RuleAccepted != tt.wantAccept {
				t.Fatalf("accepted = %v, want %v (score %.3f, reason %q)", got.RuleAccepted, tt.wantAccept, got.RuleScore, got.Reason)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if got.RuleScore < 0 || got.RuleScore > 1 {
				t.Errorf("score out of range: %f", got.RuleScore)
			}
		})
	}
}

func TestRuleValidator_NoiseScenario(t *testing.T) {
	// 90% noise, well above min length.
	content := strings.Repeat("a!!!!!!!!!", 30)
	if r := NoiseRatio(content); r < 0.89 || r > 0.91 {
		t.Fatalf("noise ratio = %f, want 0.9", r)
	}
	got := NewRuleValidator(RuleConfig{MinLength: 50, MaxNoiseRatio: 0.3, RequiredMinScore: 0.6}).Validate(cand(content), 0)
	if got.RuleAccepted {
		t.Fatal("expected rejection")
	}
	if got.Reason != record.ReasonNoise {
		t.Errorf("reason = %q, want noise", got.Reason)
	}
}

func TestRuleValidator_ScoreBelowThresholdWithoutHardViolation(t *testing.T) {
	// Noise just under the ceiling lowers the score without a hard violation.
	content := strings.Repeat("abcdefg,.,", 20)
	v := NewRuleValidator(RuleConfig{MinLength: 10, MaxNoiseRatio: 0.31, RequiredMinScore: 0.95})
	got := v.Validate(cand(content), 0)
	if got.RuleAccepted {
		t.Fatalf("expected rejection, score %f", got.RuleScore)
	}
	if got.Reason != record.ReasonNoise {
		t.Errorf("reason = %q, want noise", got.Reason)
	}
}

func TestRuleValidator_TieFavorsLength(t *testing.T) {
	// Empty content: length and structural both score 0; length wins the tie.
	got := NewRuleValidator(DefaultRuleConfig()).Validate(cand(""), 0)
	if got.Reason != record.ReasonLength {
		t.Errorf("reason = %q, want length", got.Reason)
	}
}

func TestRuleValidator_ReasonsAreClosedSet(t *testing.T) {
	v := NewRuleValidator(DefaultRuleConfig())
	allowed := map[record.Reason]bool{record.ReasonLength: true, record.ReasonNoise: true, record.ReasonStructural: true}
	inputs := []string{"", "x", strings.Repeat("#", 500), prose(20), "���", strings.Repeat("ok ", 100)}
	for _, in := range inputs {
		got := v.Validate(cand(in), 0)
		if got.RuleAccepted {
			if got.Reason != "" {
				t.Errorf("accepted verdict carries reason %q", got.Reason)
			}
			continue
		}
		if !allowed[got.Reason] {
			t.Errorf("unexpected reason %q for %q", got.Reason, in)
		}
	}
}

func TestNoiseRatio(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"abc def", 0},
		{"ab!!", 0.5},
		{"\x01\x02ab", 0.5},
		{"\ue000a", 0.5},
	}
	for _, tt := range tests {
		if got := NoiseRatio(tt.in); got != tt.want {
			t.Errorf("NoiseRatio(%q) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestRuleConfigValidate(t *testing.T) {
	if err := DefaultRuleConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if err := (RuleConfig{MaxNoiseRatio: 1.5}).Validate(); err == nil {
		t.Error("expected error for noise ratio above 1")
	}
}
