package memory

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const defaultLocalDims = 384

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// LocalEmbedder embeds text by feature hashing. It needs no network and is
// deterministic, which makes it the offline and test backend.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder returns an embedder producing dims-sized vectors.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = defaultLocalDims
	}
	return &LocalEmbedder{dims: dims}
}

func (e *LocalEmbedder) Name() string { return "local" }

// Dimensions returns the embedding dimension.
func (e *LocalEmbedder) Dimensions() int { return e.dims }

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, e.dims)

	tf := make(map[string]int)
	for _, token := range tokenize(text) {
		tf[token]++
	}

	for token, count := range tf {
		weight := float32(1.0 + math.Log(float64(count)))

		// Three hashes per token spread collisions
		for seed, scale := range []float32{1, 0.5, 0.25} {
			h := hashString(token, uint64(seed))
			pos := int(h % uint64(e.dims))
			if h&1 == 0 {
				embedding[pos] += weight * scale
			} else {
				embedding[pos] -= weight * scale
			}
		}

		// Character bigrams let inflections land near each other
		if len(token) > 3 {
			for i := 0; i < len(token)-1; i++ {
				h := hashString(token[i:i+2], 3)
				pos := int(h % uint64(e.dims))
				if h&1 == 0 {
					embedding[pos] += 0.1
				} else {
					embedding[pos] -= 0.1
				}
			}
		}
	}

	normalize(embedding)
	return embedding, nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i], _ = e.Embed(ctx, text)
	}
	return results, nil
}

// tokenize lower-cases text and keeps alphanumeric runs of two or more.
func tokenize(text string) []string {
	var tokens []string
	for _, m := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(m) >= 2 {
			tokens = append(tokens, m)
		}
	}
	return tokens
}

func hashString(s string, seed uint64) uint64 {
	h := fnv.New64a()
	h.Write([]byte{byte(seed), byte(seed >> 8)})
	h.Write([]byte(s))
	return h.Sum64()
}

// normalize scales v to unit length in place.
func normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(float64(sum)))
	for i := range v {
		v[i] /= norm
	}
}
