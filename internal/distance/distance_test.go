package distance

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineBounds(t *testing.T) {
	a := []float32{1, 0, 0, 0}
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-6)

	b := []float32{0, 1, 0, 0}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-6)

	c := []float32{-1, 0, 0, 0}
	assert.InDelta(t, -1.0, CosineSimilarity(a, c), 1e-6)
}

func TestCosineZeroNorm(t *testing.T) {
	zero := make([]float32, 16)
	other := make([]float32, 16)
	other[0] = 1
	assert.Equal(t, float32(0), CosineSimilarity(zero, other))
}

func TestCosineClampedRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(200)
		a := randVec(rng, n)
		b := randVec(rng, n)
		sim := CosineSimilarity(a, b)
		require.True(t, sim >= -1 && sim <= 1, "sim=%v out of range", sim)
	}
}

func TestKernelEquivalenceUnrolledVsScalar(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	lengths := []int{32, 64, 96, 128, 256}
	for _, n := range lengths {
		a := randVec(rng, n)
		b := randVec(rng, n)

		dUnrolled, naU, nbU := cosineAccumUnrolled(a, b)
		dScalar, naS, nbS := cosineAccumScalar(a, b)
		assert.InEpsilon(t, float64(dScalar)+1, float64(dUnrolled)+1, 1e-6)
		assert.InEpsilon(t, float64(naS)+1, float64(naU)+1, 1e-6)
		assert.InEpsilon(t, float64(nbS)+1, float64(nbU)+1, 1e-6)

		l2U := l2SquaredUnrolled(a, b)
		l2S := l2SquaredScalar(a, b)
		assert.InEpsilon(t, float64(l2S)+1, float64(l2U)+1, 1e-6)
	}
}

func TestKernelEquivalenceShortTail(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 1; n <= 31; n++ {
		a := randVec(rng, n)
		b := randVec(rng, n)
		assert.InDelta(t, float64(L2Squared(a, b)), float64(l2SquaredScalar(a, b)), 1e-4)
		assert.InDelta(t, float64(CosineSimilarity(a, b)), float64(cosineScalarSimilarity(a, b)), 1e-4)
	}
}

func cosineScalarSimilarity(a, b []float32) float32 {
	dot, na, nb := cosineAccumScalar(a, b)
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp32(dot/float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb))), -1, 1)
}

func TestDistanceLengthMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		CosineSimilarity([]float32{1, 2}, []float32{1})
	})
	assert.Panics(t, func() {
		L2([]float32{1, 2}, []float32{1})
	})
}

func TestInnerProductMatchesDotProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.InDelta(t, 32.0, InnerProduct(a, b), 1e-5)
	assert.InDelta(t, -32.0, NegativeInnerProduct(a, b), 1e-5)
}

func TestInnerProductLengthMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		InnerProduct([]float32{1, 2}, []float32{1})
	})
}

func randVec(rng *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}
