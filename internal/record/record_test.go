package record

import (
	"strings"
	"testing"
)

func TestChunkIDDeterministic(t *testing.T) {
	c := Candidate{DocumentID: "doc", PageStart: 1, PageEnd: 3, Content: "alpha beta", SequenceIndex: 2}
	a := ChunkID(c)
	b := ChunkID(c)
	if a != b {
		t.Fatalf("ids differ: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "chunk_") || len(a) != len("chunk_")+32 {
		t.Errorf("unexpected id format: %s", a)
	}

	c.SequenceIndex = 3
	if ChunkID(c) == a {
		t.Error("id should change with sequence index")
	}
	c.SequenceIndex = 2
	c.Content = "alpha gamma"
	if ChunkID(c) == a {
		t.Error("id should change with content")
	}
}

func TestPageEmpty(t *testing.T) {
	tests := []struct {
		name string
		page PageRecord
		want bool
	}{
		{"text", PageRecord{Text: "hello", Confidence: 1}, false},
		{"blank", PageRecord{Text: " \n\t", Confidence: 1}, true},
		{"zero confidence", PageRecord{Text: "hello", Confidence: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.page.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerdictAccepted(t *testing.T) {
	if (Verdict{RuleAccepted: true}).Accepted() != true {
		t.Error("rule-accepted without llm should be accepted")
	}
	if (Verdict{RuleAccepted: true, LLMQuality: QualityPoor}).Accepted() {
		t.Error("poor should reject")
	}
	if (Verdict{RuleAccepted: false, LLMQuality: QualityGood}).Accepted() {
		t.Error("good must not override a rule rejection")
	}
}

func TestNewHasherMatchesContentHash(t *testing.T) {
	h := NewHasher()
	h.Write([]byte("some "))
	h.Write([]byte("content"))
	if h.Sum64() != ContentHash("some content") {
		t.Error("streaming hash differs from ContentHash")
	}
}
