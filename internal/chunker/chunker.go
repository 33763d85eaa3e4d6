package chunker

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/chunkgate/internal/record"
)

// Config controls chunking behavior. Sizes are in tokens.
type Config struct {
	Size         int `yaml:"size" json:"size"`
	Overlap      int `yaml:"overlap" json:"overlap"`
	MinChunkSize int `yaml:"min_chunk_size" json:"min_chunk_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Size:         800,
		Overlap:      150,
		MinChunkSize: 100,
	}
}

// Validate rejects configurations the chunker cannot honor.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return errors.New("chunk size must be positive")
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return errors.New("chunk overlap must be in [0, size)")
	}
	if c.MinChunkSize < 0 || c.MinChunkSize > c.Size {
		return errors.New("min chunk size must be in [0, size]")
	}
	return nil
}

// Word is one whitespace-delimited token of the carry window.
type Word struct {
	Text    string `json:"t"`
	Page    int    `json:"p"`
	Overlap bool   `json:"o,omitempty"`
}

// State is the serializable carry-over of a Chunker between pages.
type State struct {
	Window      []Word `json:"window,omitempty"`
	WindowStart int    `json:"window_start,omitempty"`
	LastPage    int    `json:"last_page,omitempty"`
	Sequence    int    `json:"sequence"`

	Held *record.Candidate `json:"held,omitempty"`
}

// Chunker turns an ordered stream of pages into token-bounded candidates whose
// boundaries overlap by Config.Overlap tokens.
type Chunker struct {
	docID   string
	cfg     Config
	counter TokenCounter

	window      []Word
	windowStart int // first page covered by the window, 0 when none
	lastPage    int
	seq         int

	// held is the newest cut, kept back until fresh words arrive after it
	// or the document ends and it becomes the last candidate.
	held *record.Candidate
}

// New returns a Chunker for one document. A nil counter counts words.
func New(docID string, cfg Config, counter TokenCounter) *Chunker {
	if counter == nil {
		counter = WordCounter{}
	}
	return &Chunker{docID: docID, cfg: cfg, counter: counter}
}

// Feed adds one page and returns any candidates that became complete.
// Empty or zero-confidence pages add no tokens but stay inside the page range.
func (c *Chunker) Feed(p record.PageRecord) []record.Candidate {
	c.lastPage = p.PageNumber
	if c.windowStart == 0 {
		c.windowStart = p.PageNumber
	}
	if p.Empty() {
		return nil
	}

	var out []record.Candidate
	words := strings.Fields(p.Text)
	// Words go in at most Size at a time. Every word counts as at least one
	// token, so the window never grows far past Size before a cut and each
	// count stays bounded regardless of page length.
	for len(words) > 0 {
		n := min(len(words), c.cfg.Size)
		for _, w := range words[:n] {
			c.window = append(c.window, Word{Text: w, Page: p.PageNumber})
		}
		words = words[n:]
		for c.count(c.window) >= c.cfg.Size {
			out = c.release(out)
			cand := c.cut()
			c.held = &cand
		}
	}
	if c.fresh() {
		out = c.release(out)
	}
	return out
}

// Finish flushes the remaining window as the final candidate. When the window
// only holds overlap carried from the previous chunk, the held candidate is
// the last one and its range stretches to the last page fed.
func (c *Chunker) Finish() []record.Candidate {
	if !c.fresh() {
		c.window = nil
		c.windowStart = 0
		if c.held == nil {
			return nil
		}
		last := *c.held
		c.held = nil
		last.Last = true
		last.PageEnd = max(last.PageEnd, c.lastPage)
		return []record.Candidate{last}
	}
	out := c.release(nil)
	cand := c.candidate(c.window, c.windowStart, c.lastPage)
	cand.Last = true
	c.window = nil
	c.windowStart = 0
	return append(out, cand)
}

// release appends the held candidate, if any, to out.
func (c *Chunker) release(out []record.Candidate) []record.Candidate {
	if c.held == nil {
		return out
	}
	out = append(out, *c.held)
	c.held = nil
	return out
}

// fresh reports whether the window holds words not yet emitted.
func (c *Chunker) fresh() bool {
	for _, w := range c.window {
		if !w.Overlap {
			return true
		}
	}
	return false
}

// Sequence is the index the next candidate will receive.
func (c *Chunker) Sequence() int { return c.seq }

// State snapshots the carry-over for checkpointing.
func (c *Chunker) State() State {
	w := make([]Word, len(c.window))
	copy(w, c.window)
	s := State{Window: w, WindowStart: c.windowStart, LastPage: c.lastPage, Sequence: c.seq}
	if c.held != nil {
		held := *c.held
		s.Held = &held
	}
	return s
}

// Restore resumes from a snapshot taken with State.
func (c *Chunker) Restore(s State) {
	c.window = make([]Word, len(s.Window))
	copy(c.window, s.Window)
	c.windowStart = s.WindowStart
	c.lastPage = s.LastPage
	c.seq = s.Sequence
	c.held = nil
	if s.Held != nil {
		held := *s.Held
		// Edge flags are not serialized.
		held.First = held.SequenceIndex == 0
		c.held = &held
	}
}

// cut emits the shortest window prefix reaching Size and keeps the overlap.
func (c *Chunker) cut() record.Candidate {
	// smallest k with count(window[:k]) >= Size
	lo, hi := 1, len(c.window)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.count(c.window[:mid]) >= c.cfg.Size {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	k := lo
	chunk := c.window[:k]
	cand := c.candidate(chunk, c.windowStart, chunk[k-1].Page)

	// smallest j with count(chunk[j:]) <= Overlap
	j := k
	if c.cfg.Overlap > 0 {
		lo, hi = 1, k
		for lo < hi {
			mid := (lo + hi) / 2
			if c.count(chunk[mid:]) <= c.cfg.Overlap {
				hi = mid
			} else {
				lo = mid + 1
			}
		}
		j = lo
	}

	next := make([]Word, 0, k-j+len(c.window)-k)
	for _, w := range chunk[j:] {
		w.Overlap = true
		next = append(next, w)
	}
	next = append(next, c.window[k:]...)
	c.window = next
	if len(next) > 0 {
		c.windowStart = next[0].Page
	} else {
		c.windowStart = 0
	}
	return cand
}

func (c *Chunker) candidate(words []Word, start, end int) record.Candidate {
	content := join(words)
	if start == 0 || start > end {
		start = end
	}
	cand := record.Candidate{
		DocumentID:    c.docID,
		PageStart:     start,
		PageEnd:       end,
		Content:       content,
		TokenCount:    c.counter.Count(content),
		CharCount:     utf8.RuneCountInString(content),
		SequenceIndex: c.seq,
		First:         c.seq == 0,
	}
	c.seq++
	return cand
}

func (c *Chunker) count(words []Word) int {
	if _, ok := c.counter.(WordCounter); ok {
		return len(words)
	}
	return c.counter.Count(join(words))
}

func join(words []Word) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w.Text)
	}
	return b.String()
}
