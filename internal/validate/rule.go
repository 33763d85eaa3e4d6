// Package validate decides whether chunk candidates are kept, first with
// deterministic rules and then, for selected candidates, with an LLM judge.
package validate

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/chunkgate/internal/record"
)

// Criterion weights. They sum to 1.
const (
	WeightLength     = 0.30
	WeightNoise      = 0.40
	WeightStructural = 0.30
)

// RuleConfig holds the deterministic acceptance thresholds.
type RuleConfig struct {
	MinLength        int     `yaml:"min_length" json:"min_length"`
	MaxNoiseRatio    float64 `yaml:"max_noise_ratio" json:"max_noise_ratio"`
	RequiredMinScore float64 `yaml:"required_min_score" json:"required_min_score"`
}

// DefaultRuleConfig returns the balanced defaults.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{MinLength: 200, MaxNoiseRatio: 0.3, RequiredMinScore: 0.6}
}

func (c RuleConfig) Validate() error {
	if c.MinLength < 0 {
		return errors.New("min_length must be non-negative")
	}
	if c.MaxNoiseRatio <= 0 || c.MaxNoiseRatio > 1 {
		return errors.New("max_noise_ratio must be in (0, 1]")
	}
	if c.RequiredMinScore < 0 || c.RequiredMinScore > 1 {
		return errors.New("required_min_score must be in [0, 1]")
	}
	return nil
}

// RuleValidator scores candidates on length, noise and structure.
type RuleValidator struct {
	cfg RuleConfig
}

func NewRuleValidator(cfg RuleConfig) RuleValidator {
	return RuleValidator{cfg: cfg}
}

// Config returns the thresholds in use.
func (v RuleValidator) Config() RuleConfig { return v.cfg }

type criterion struct {
	reason   record.Reason
	score    float64
	violated bool
}

// Validate scores c. prevHash is the content hash of the preceding candidate
// in the same document; it is ignored for the first candidate, which has none.
func (v RuleValidator) Validate(c record.Candidate, prevHash uint64) record.Verdict {
	length := utf8.RuneCountInString(c.Content)
	ratio := NoiseRatio(c.Content)

	crits := [3]criterion{
		{reason: record.ReasonLength, score: lengthScore(length, v.cfg.MinLength), violated: length < v.cfg.MinLength},
		{reason: record.ReasonNoise, score: noiseScore(ratio, v.cfg.MaxNoiseRatio), violated: ratio > v.cfg.MaxNoiseRatio},
		{reason: record.ReasonStructural, score: 1},
	}
	if strings.TrimSpace(c.Content) == "" || (c.SequenceIndex > 0 && record.ContentHash(c.Content) == prevHash) {
		crits[2].score = 0
		crits[2].violated = true
	}

	score := WeightLength*crits[0].score + WeightNoise*crits[1].score + WeightStructural*crits[2].score
	score = clamp(score)

	hard := crits[0].violated || crits[1].violated || crits[2].violated
	verdict := record.Verdict{RuleScore: score}
	if !hard && score >= v.cfg.RequiredMinScore {
		verdict.RuleAccepted = true
		return verdict
	}
	verdict.Reason = worst(crits, hard)
	return verdict
}

// worst picks the criterion with the largest deficit. Array order is the
// tie-break precedence.
func worst(crits [3]criterion, onlyViolated bool) record.Reason {
	best := -1.0
	var reason record.Reason
	for _, c := range crits {
		if onlyViolated && !c.violated {
			continue
		}
		if d := 1 - c.score; d > best {
			best = d
			reason = c.reason
		}
	}
	return reason
}

func lengthScore(length, minLength int) float64 {
	if minLength <= 0 {
		return 1
	}
	return clamp(float64(length) / float64(minLength))
}

func noiseScore(ratio, maxRatio float64) float64 {
	if maxRatio <= 0 {
		if ratio == 0 {
			return 1
		}
		return 0
	}
	return clamp(1 - ratio/maxRatio)
}

// NoiseRatio is the share of non-whitespace runes that are not letters or
// digits. Control, private-use and replacement characters always count.
func NoiseRatio(s string) float64 {
	var total, noise int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		switch {
		case r == utf8.RuneError, unicode.IsControl(r), unicode.Is(unicode.Co, r):
			noise++
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			noise++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(noise) / float64(total)
}

func clamp(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
