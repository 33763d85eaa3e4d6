// Package record holds the value types that flow through the chunking pipeline.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/minio/highwayhash"
)

// ContentType classifies a page record.
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentTable   ContentType = "table"
	ContentImage   ContentType = "image"
	ContentScanned ContentType = "scanned-low-confidence"
)

// PageRecord is one unit of extracted document content.
type PageRecord struct {
	PageNumber  int         `json:"page_number"` // 1-based, strictly increasing
	ContentType ContentType `json:"content_type"`
	Text        string      `json:"text"`
	Confidence  float64     `json:"confidence"`
	BBox        [4]float64  `json:"bbox"`
	BlockID     string      `json:"block_id"`
}

// Empty reports whether the page carries no usable text.
func (p PageRecord) Empty() bool {
	return p.Confidence <= 0 || isBlank(p.Text)
}

// Candidate is a chunk produced by the chunker but not yet validated.
type Candidate struct {
	DocumentID    string `json:"document_id"`
	PageStart     int    `json:"page_start"`
	PageEnd       int    `json:"page_end"`
	Content       string `json:"content"`
	TokenCount    int    `json:"token_count"`
	CharCount     int    `json:"char_count"`
	SequenceIndex int    `json:"sequence_index"`
	First         bool   `json:"-"`
	Last          bool   `json:"-"`
}

// Quality is the semantic judge's rating.
type Quality string

const (
	QualityGood Quality = "good"
	QualityFair Quality = "fair"
	QualityPoor Quality = "poor"
)

// Valid reports whether q is one of the three known ratings.
func (q Quality) Valid() bool {
	switch q {
	case QualityGood, QualityFair, QualityPoor:
		return true
	}
	return false
}

// Reason is the closed set of rejection causes.
type Reason string

const (
	ReasonLength     Reason = "length"
	ReasonNoise      Reason = "noise"
	ReasonStructural Reason = "structural"
	ReasonSemantic   Reason = "semantic"
)

// Verdict is the outcome of validating one candidate.
type Verdict struct {
	RuleScore     float64  `json:"rule_score"`
	RuleAccepted  bool     `json:"rule_accepted"`
	Reason        Reason   `json:"rejection_reason,omitempty"`
	LLMQuality    Quality  `json:"llm_quality,omitempty"`
	LLMConfidence *float64 `json:"llm_confidence,omitempty"`
}

// Accepted is the final decision after both layers.
func (v Verdict) Accepted() bool {
	return v.RuleAccepted && v.LLMQuality != QualityPoor
}

// AcceptedChunk is written to the accepted sink.
type AcceptedChunk struct {
	ChunkID string `json:"chunk_id"`
	Candidate
	RuleScore     float64  `json:"rule_score"`
	LLMQuality    Quality  `json:"llm_quality,omitempty"`
	LLMConfidence *float64 `json:"llm_confidence,omitempty"`
}

// RejectedRecord is written to the rejected sink.
type RejectedRecord struct {
	ChunkID string `json:"chunk_id"`
	Candidate
	Verdict Verdict `json:"verdict"`
}

// NewAccepted builds the accepted-sink record for c.
func NewAccepted(c Candidate, v Verdict) AcceptedChunk {
	return AcceptedChunk{
		ChunkID:       ChunkID(c),
		Candidate:     c,
		RuleScore:     v.RuleScore,
		LLMQuality:    v.LLMQuality,
		LLMConfidence: v.LLMConfidence,
	}
}

// NewRejected builds the rejected-sink record for c.
func NewRejected(c Candidate, v Verdict) RejectedRecord {
	return RejectedRecord{ChunkID: ChunkID(c), Candidate: c, Verdict: v}
}

var hashKey = []byte("chunkgate-content-hash-key-00000")

// ContentHash is a fast 64-bit fingerprint of chunk content.
func ContentHash(content string) uint64 {
	return highwayhash.Sum64([]byte(content), hashKey)
}

// NewHasher returns a streaming hasher that agrees with ContentHash.
func NewHasher() hash.Hash64 {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		panic(err) // key length is fixed at 32 bytes
	}
	return h
}

// ChunkID derives a deterministic identifier from document, position and content.
func ChunkID(c Candidate) string {
	key := fmt.Sprintf("%s|%d|%d|%d|%016x", c.DocumentID, c.PageStart, c.PageEnd, c.SequenceIndex, ContentHash(c.Content))
	sum := sha256.Sum256([]byte(key))
	return "chunk_" + hex.EncodeToString(sum[:16])
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
