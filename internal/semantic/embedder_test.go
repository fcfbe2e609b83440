package semantic

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/apperrors"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/semvec"
)

func fakeWeights(numBuckets, dims int) []int8 {
	w := make([]int8, numBuckets*dims)
	for b := 0; b < numBuckets; b++ {
		w[b*dims+(b%dims)] = 100
	}
	return w
}

func TestEmbedQueryProducesUnitNormalizedVector(t *testing.T) {
	weights := fakeWeights(64, 8)
	emb, err := newHashingEmbedderFromWeights(weights, 8, "query: ")
	if err != nil {
		t.Fatalf("newHashingEmbedderFromWeights: %v", err)
	}

	vec, err := emb.EmbedQuery(context.Background(), "a painting of a ship")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("len(vec) = %d, want 8", len(vec))
	}

	// Rounding to int8 moves each component by at most 0.5/127, so the
	// dequantised norm can differ from 1 by up to sqrt(dims)*0.5/127.
	dequant := semvec.DequantizeInt8(vec)
	var sumSq float64
	for _, x := range dequant {
		sumSq += float64(x) * float64(x)
	}
	bound := math.Sqrt(float64(len(dequant))) * 0.5 / semvec.QuantScale
	if math.Abs(math.Sqrt(sumSq)-1) > bound && !isZero(dequant) {
		t.Errorf("expected a unit-normalised (or zero) vector, got %v", dequant)
	}
}

func TestEmbedQueryIsDeterministic(t *testing.T) {
	weights := fakeWeights(64, 8)
	emb, err := newHashingEmbedderFromWeights(weights, 8, "query: ")
	if err != nil {
		t.Fatalf("newHashingEmbedderFromWeights: %v", err)
	}

	a, err := emb.EmbedQuery(context.Background(), "windmill landscape")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	b, err := emb.EmbedQuery(context.Background(), "windmill landscape")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding is not deterministic at index %d: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestEmbedQueryEmptyTextIsEmbeddingFailure(t *testing.T) {
	weights := fakeWeights(64, 8)
	emb, err := newHashingEmbedderFromWeights(weights, 8, "")
	if err != nil {
		t.Fatalf("newHashingEmbedderFromWeights: %v", err)
	}

	_, err = emb.EmbedQuery(context.Background(), "   ")
	var ef *apperrors.EmbeddingFailure
	if !errors.As(err, &ef) {
		t.Fatalf("expected *apperrors.EmbeddingFailure, got %v", err)
	}
}

func TestLoadHashingEmbedderRejectsMisalignedWeights(t *testing.T) {
	_, err := newHashingEmbedderFromWeights(make([]int8, 10), 8, "")
	if err == nil {
		t.Fatalf("expected an error for a weight table not divisible by dims")
	}
}

func TestLoadHashingEmbedderRejectsNonPositiveDims(t *testing.T) {
	_, err := newHashingEmbedderFromWeights(make([]int8, 16), 0, "")
	if err == nil {
		t.Fatalf("expected an error for non-positive dims")
	}
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
