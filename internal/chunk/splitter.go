package chunk

import (
	"unicode"

	"github.com/docsift/docsift/internal/model"
)

// Splitter turns normalized document text into overlapping chunks using a
// sliding window over a whitespace tokenization. Boundaries are a pure
// function of text and configuration: identical input always yields
// bit-identical offsets, which keeps provenance stable across re-ingestion.
type Splitter struct {
	maxTokens int
	overlap   int
	minTokens int
}

// NewSplitter creates a splitter from chunking configuration, clamping
// degenerate values to something workable.
func NewSplitter(cfg model.ChunkingConfig) *Splitter {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	overlap := cfg.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxTokens {
		overlap = maxTokens / 2
	}
	minTokens := cfg.MinTokens
	if minTokens < 0 {
		minTokens = 0
	}
	return &Splitter{
		maxTokens: maxTokens,
		overlap:   overlap,
		minTokens: minTokens,
	}
}

// token records a word's byte span within the source text.
type token struct {
	start int
	end   int
}

// Split chunks the document text. Empty or whitespace-only text yields no
// chunks and no error. Text shorter than one window yields a single chunk
// covering the whole tokenized span. A trailing window below the minimum
// token count is merged into the previous chunk so near-empty fragments
// never pollute retrieval.
func (s *Splitter) Split(documentID, text string) []model.Chunk {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	stride := s.maxTokens - s.overlap
	if stride < 1 {
		stride = 1
	}

	var spans [][2]int // Token index ranges [from, to)
	for from := 0; from < len(tokens); from += stride {
		to := from + s.maxTokens
		if to >= len(tokens) {
			spans = append(spans, [2]int{from, len(tokens)})
			break
		}
		spans = append(spans, [2]int{from, to})
	}

	// Merge a short trailing fragment into its predecessor.
	if len(spans) > 1 {
		last := spans[len(spans)-1]
		if last[1]-last[0] < s.minTokens {
			spans = spans[:len(spans)-1]
			spans[len(spans)-1][1] = last[1]
		}
	}

	chunks := make([]model.Chunk, 0, len(spans))
	for i, span := range spans {
		start := tokens[span[0]].start
		end := tokens[span[1]-1].end
		chunks = append(chunks, model.Chunk{
			ID:          model.ChunkID(documentID, i),
			DocumentID:  documentID,
			Text:        text[start:end],
			StartOffset: start,
			EndOffset:   end,
			Sequence:    i,
		})
	}
	return chunks
}

// tokenize scans the text into whitespace-delimited word spans, recording
// byte offsets so chunk boundaries can be mapped back into the source.
func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, token{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{start: start, end: len(text)})
	}
	return tokens
}
