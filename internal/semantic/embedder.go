package semantic

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"strings"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/apperrors"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/semvec"
)

// HashingEmbedder is the local, CPU-only query embedder: a
// feature-hashing bag-of-tokens projection into the shared 384-dim
// space, using a quantised weight table loaded once at startup. Built
// directly against semvec's int8 quantisation primitives rather than
// shelling out to an external runtime, since there is no local
// text-embedding inference to call out to.
type HashingEmbedder struct {
	dims        int
	numBuckets  int
	weights     []int8 // numBuckets * dims, row-major
	queryPrefix string
}

// LoadHashingEmbedder reads a quantised projection-matrix file (numBuckets
// rows of dims int8 weights, row-major, no header) from path. A load
// error here is not fatal to the process: the caller should keep a nil
// embedder and let Engine.Available report false.
func LoadHashingEmbedder(path string, dims int, queryPrefix string) (*HashingEmbedder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewEmbeddingFailure("semantic.LoadHashingEmbedder", err)
	}
	return newHashingEmbedderFromWeights(semvec.DecodeInt8(data), dims, queryPrefix)
}

func newHashingEmbedderFromWeights(weights []int8, dims int, queryPrefix string) (*HashingEmbedder, error) {
	if dims <= 0 {
		return nil, apperrors.NewEmbeddingFailure("semantic.LoadHashingEmbedder", fmt.Errorf("dims must be positive, got %d", dims))
	}
	if len(weights)%dims != 0 {
		return nil, apperrors.NewEmbeddingFailure("semantic.LoadHashingEmbedder",
			fmt.Errorf("weight table length %d is not a multiple of dims %d", len(weights), dims))
	}
	return &HashingEmbedder{
		dims:        dims,
		numBuckets:  len(weights) / dims,
		weights:     weights,
		queryPrefix: queryPrefix,
	}, nil
}

// EmbedQuery implements core.QueryEmbedder: mean-pool the hashed-bucket
// rows for every token in text, L2-normalise, and quantise to int8.
func (h *HashingEmbedder) EmbedQuery(ctx context.Context, text string) ([]int8, error) {
	prefixed := h.queryPrefix + text
	tokens := strings.Fields(strings.ToLower(prefixed))
	if len(tokens) == 0 {
		return nil, apperrors.NewEmbeddingFailure("semantic.EmbedQuery", fmt.Errorf("empty query after tokenisation"))
	}

	sum := make([]float32, h.dims)
	for _, tok := range tokens {
		bucket := h.hashToken(tok)
		row := h.weights[bucket*h.dims : (bucket+1)*h.dims]
		dequant := semvec.DequantizeInt8(row)
		for i, v := range dequant {
			sum[i] += v
		}
	}
	for i := range sum {
		sum[i] /= float32(len(tokens))
	}

	normalized := semvec.Normalize(sum)
	return semvec.QuantizeInt8(normalized), nil
}

func (h *HashingEmbedder) hashToken(tok string) int {
	f := fnv.New64a()
	_, _ = f.Write([]byte(tok))
	return int(f.Sum64() % uint64(h.numBuckets))
}
