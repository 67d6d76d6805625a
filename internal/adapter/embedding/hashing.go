package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"sort"

	"smartindex/internal/adapter/analyzer"
)

// biasWeight is the weight of the component every non-empty text shares.
// It keeps unrelated texts at a small positive similarity instead of exactly
// zero, which is how dense sentence models behave.
const biasWeight = 0.5

// HashingEmbedder maps text into a fixed-dimension vector by feature
// hashing analyzer tokens. It runs locally and is deterministic.
type HashingEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

// NewHashingEmbedder creates a hashing embedder. dimension must be at least 2:
// slot 0 is reserved for the shared bias component.
func NewHashingEmbedder(dimension int, stemming bool) *HashingEmbedder {
	if dimension < 2 {
		dimension = 2
	}
	return &HashingEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(stemming),
	}
}

func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashingEmbedder) embed(text string) []float32 {
	vec := make([]float64, e.dimension)

	tf := e.tokenizer.TermFrequencies(text)
	if len(tf) == 0 {
		return make([]float32, e.dimension)
	}

	// Sorted so floating point accumulation order never depends on map order.
	terms := make([]string, 0, len(tf))
	for term := range tf {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	for _, term := range terms {
		vec[e.bucket(term)] += 1 + math.Log(float64(tf[term]))
	}
	vec[0] = biasWeight

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dimension)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *HashingEmbedder) bucket(term string) int {
	h := fnv.New64a()
	h.Write([]byte(term))
	return 1 + int(h.Sum64()%uint64(e.dimension-1))
}

func (e *HashingEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashingEmbedder) ModelName() string {
	if e.tokenizer.Stemming() {
		return "hash-stem"
	}
	return "hash"
}

// Normalize scales v to unit L2 length. The zero vector is returned as is.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
