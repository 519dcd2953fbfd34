package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingEmbedder is a local, deterministic embedder using signed feature
// hashing over unigrams and bigrams. It needs no backend and no corpus
// preparation, which makes it the offline and test default. Retrieval
// quality is lexical rather than semantic; production setups should point
// at a real embedding backend.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder creates a feature-hashing embedder.
func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashingEmbedder{dimension: dimension}
}

// Name returns the backend name.
func (e *HashingEmbedder) Name() string { return "hashing" }

// Dimension returns the configured vector length.
func (e *HashingEmbedder) Dimension() int { return e.dimension }

// Embed hashes each term into a bucket with a hash-derived sign, then
// L2-normalizes. Identical text always yields an identical vector.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)

	terms := hashTerms(text)
	for _, term := range terms {
		h := fnv.New32a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum32()

		bucket := int(sum % uint32(e.dimension))
		// One hash bit decides the sign, which keeps colliding terms from
		// always reinforcing each other.
		if sum&0x80000000 != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if mag > 0 {
		norm := float32(math.Sqrt(mag))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return batchOneByOne(ctx, e, texts)
}

// hashTerms lowercases and splits on non-alphanumerics, emitting unigrams
// plus adjacent bigrams.
func hashTerms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	terms := make([]string, 0, len(words)*2)
	terms = append(terms, words...)
	for i := 0; i+1 < len(words); i++ {
		terms = append(terms, words[i]+" "+words[i+1])
	}
	return terms
}
