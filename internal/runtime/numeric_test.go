package runtime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumeric_Reductions(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		code string
		want float64
	}{
		{`np.sum([1, 2, 3, 4])`, 10},
		{`np.mean([1, 2, 3, 4])`, 2.5},
		{`np.median([3, 1, 2])`, 2},
		{`np.median([4, 1, 3, 2])`, 2.5},
		{`np.std([2, 4, 4, 4, 5, 5, 7, 9])`, 2},
		{`np.var([2, 4, 4, 4, 5, 5, 7, 9])`, 4},
		{`np.min([3, -1, 2])`, -1},
		{`np.max([3, -1, 2])`, 3},
		{`np.argmax([3, 9, 2])`, 1},
		{`np.argmin([3, 9, 2])`, 2},
		{`np.percentile([1, 2, 3, 4, 5], 50)`, 3},
		{`np.percentile([1, 2, 3, 4], 25)`, 1.75},
		{`np.sum([])`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			v := run(t, env, tt.code)
			assert.InDelta(t, tt.want, v.ToFloat(), 1e-9)
		})
	}
}

func TestNumeric_EmptyReductionThrows(t *testing.T) {
	env := newTestEnv(t)
	err := runErr(t, env, `np.mean([])`)
	assert.Contains(t, err.Error(), "np.mean: empty array")
}

func TestNumeric_Constructors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		code string
		want []float64
	}{
		{`np.arange(4)`, []float64{0, 1, 2, 3}},
		{`np.arange(1, 2, 0.25)`, []float64{1, 1.25, 1.5, 1.75}},
		{`np.arange(3, 1)`, []float64{}},
		{`np.linspace(0, 1, 5)`, []float64{0, 0.25, 0.5, 0.75, 1}},
		{`np.zeros(3)`, []float64{0, 0, 0}},
		{`np.ones(2)`, []float64{1, 1}},
		{`np.cumsum([1, 2, 3])`, []float64{1, 3, 6}},
		{`np.unique([3, 1, 3, 2, 1])`, []float64{1, 2, 3}},
		{`np.round([1.234, 5.678], 1)`, []float64{1.2, 5.7}},
		{`np.abs([-1, 2, -3])`, []float64{1, 2, 3}},
		{`np.array([1, null, 3])`, []float64{1, math.NaN(), 3}},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, ok := run(t, env, tt.code).Export().([]float64)
			require.True(t, ok, "expected a numeric array")
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				if math.IsNaN(tt.want[i]) {
					assert.True(t, math.IsNaN(got[i]))
					continue
				}
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestNumeric_ArraysBehaveLikeArrays(t *testing.T) {
	env := newTestEnv(t)
	v := run(t, env, `
		const xs = np.arange(5);
		xs.length + ":" + xs[2] + ":" + xs.filter(x => x > 2).length`)
	assert.Equal(t, "5:2:2", v.String())
}

func TestNumeric_Scalars(t *testing.T) {
	env := newTestEnv(t)
	assert.InDelta(t, 3.0, run(t, env, `np.sqrt(9)`).ToFloat(), 1e-9)
	assert.InDelta(t, math.Pi, run(t, env, `np.pi`).ToFloat(), 1e-12)
	assert.True(t, math.IsNaN(run(t, env, `np.nan`).ToFloat()))
}

func TestNumeric_Corrcoef(t *testing.T) {
	env := newTestEnv(t)
	v := run(t, env, `np.corrcoef([1, 2, 3], [2, 4, 6])[0][1]`)
	assert.InDelta(t, 1.0, v.ToFloat(), 1e-9)
}

func TestNumeric_ArangeZeroStep(t *testing.T) {
	env := newTestEnv(t)
	err := runErr(t, env, `np.arange(0, 5, 0)`)
	assert.Contains(t, err.Error(), "step must not be zero")
}

func TestPercentile(t *testing.T) {
	assert.InDelta(t, 2.5, percentile([]float64{4, 1, 3, 2}, 0.5), 1e-9)
	assert.Equal(t, 1.0, percentile([]float64{1, 2}, 0))
	assert.True(t, math.IsNaN(percentile(nil, 0.5)))
	assert.True(t, math.IsNaN(percentile([]float64{1}, 2)))
}
